// Package memory stores a learner's memory items and runs their reviews.
//
// Items are kept as opaque JSON records in a store.RecordStore. The derived
// schedule is recomputed with the decay model on every read, so "today" is
// always current even when nothing was written.
package memory
