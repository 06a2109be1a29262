package srs

import (
	"iter"
	"math"
	"time"

	"github.com/phrazzld/metis/internal/domain"
)

// ReviewIntervalDays returns the number of days between a review and the next
// one for an item of the given strength.
//
// Strengths 1, 2 and 3 map to 1, 3 and 7 days. Above that every level multiplies
// the previous interval by GrowthFactor and rounds, so the spacing grows
// super-linearly: 13, 23, 41, 74, ...
func ReviewIntervalDays(strength int) int {
	switch {
	case strength <= 1:
		return 1
	case strength == 2:
		return 3
	}

	days := 7
	for s := 4; s <= strength; s++ {
		days = int(math.Round(float64(days) * GrowthFactor))
	}
	return days
}

// Classify maps the number of days until the next review to a status.
func Classify(daysUntilReview int) domain.Status {
	switch {
	case daysUntilReview <= 0:
		return domain.StatusUrgent
	case daysUntilReview <= 3:
		return domain.StatusNeedsCare
	default:
		return domain.StatusHealthy
	}
}

// StageFor maps a strength to its memory stage.
func StageFor(strength int) domain.MemoryStage {
	switch {
	case strength <= 2:
		return domain.StageShortTerm
	case strength <= 4:
		return domain.StageConsolidating
	default:
		return domain.StageLongTerm
	}
}

// ApplyConfidence returns the strength after a review with the given confidence.
// The result is never below 1.
func ApplyConfidence(strength int, confidence domain.Confidence) int {
	if strength < 1 {
		strength = 1
	}

	switch confidence {
	case domain.ConfidenceConfident:
		return strength + 1
	case domain.ConfidenceGuess:
		return max(1, strength-1)
	default:
		return strength
	}
}

// Retention returns the estimated retention percentage t days after a review.
func Retention(t float64, strength int) float64 {
	if strength < 1 {
		strength = 1
	}
	decayRate := DecayConstant / math.Log(float64(strength)+1.5)
	return 100 * math.Exp(-t*decayRate)
}

// CurvePoint is a single day on a retention curve.
type CurvePoint struct {
	Date      time.Time `json:"date"`
	Retention float64   `json:"retention"`
}

// RetentionCurve yields one point per day for t = 0..horizonDays, starting at
// lastReview. The sequence is lazy and may be iterated any number of times.
func RetentionCurve(lastReview time.Time, strength int, horizonDays int) iter.Seq[CurvePoint] {
	return func(yield func(CurvePoint) bool) {
		for day := 0; day <= horizonDays; day++ {
			p := CurvePoint{
				Date:      lastReview.AddDate(0, 0, day),
				Retention: Retention(float64(day), strength),
			}
			if !yield(p) {
				return
			}
		}
	}
}

// Project computes the derived schedule for an item with the given strength
// whose most recent review happened at lastReview. Days are counted as calendar
// days in loc, so a review late in the evening is due on the same date as one
// early in the morning.
func Project(strength int, lastReview, now time.Time, loc *time.Location) domain.Schedule {
	if loc == nil {
		loc = time.UTC
	}
	if strength < 1 {
		strength = 1
	}

	interval := ReviewIntervalDays(strength)
	reviewDay := startOfDay(lastReview, loc)
	nextReview := reviewDay.AddDate(0, 0, interval)
	daysUntil := calendarDaysBetween(startOfDay(now, loc), nextReview)

	return domain.Schedule{
		IntervalDays:    interval,
		NextReviewDate:  nextReview,
		DaysUntilReview: daysUntil,
		Status:          Classify(daysUntil),
		MemoryStage:     StageFor(strength),
	}
}

// ChallengeKind is the depth of retrieval asked for when reviewing an item.
type ChallengeKind string

// Possible challenge kinds
const (
	ChallengeRecall   ChallengeKind = "recall"
	ChallengeConnect  ChallengeKind = "connect"
	ChallengeCritique ChallengeKind = "critique"
)

// ChallengeFor picks the challenge kind for a strength. Weak items are simply
// recalled, consolidating items are connected to an example, and long-term
// items are critiqued.
func ChallengeFor(strength int) ChallengeKind {
	switch {
	case strength >= 5:
		return ChallengeCritique
	case strength >= 3:
		return ChallengeConnect
	default:
		return ChallengeRecall
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// calendarDaysBetween counts whole dates from a to b. Both must be midnights in
// the same location; rounding absorbs DST shifts.
func calendarDaysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}
