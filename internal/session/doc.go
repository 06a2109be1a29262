// Package session paces a single study sitting through its stage plan.
//
// A Session owns one Clock and walks a fixed Plan: prediction, reading
// cycles with breaks, brain-dump, AI prediction, compare-and-reveal, gap
// analysis and final writing. Commands return a Transition; everything
// that happens on its own, such as ticks, expiries and notices, is delivered
// to the session's Sink as an Event.
//
// Compare-and-reveal asks the configured generation.TextGenerator for
// feedback on the brain-dump and an expert summary of the goal at the same
// time. A failed or slow request never blocks the learner: its half of the
// Comparison is replaced by a placeholder marked Degraded.
package session
