// Package store defines the persistence contract used by the memory and
// refinement services. Records are opaque JSON documents grouped into
// collections and scoped per user, so the core never depends on a particular
// database technology.
//
// Implementations live in store/memstore (process memory), platform/postgres
// and platform/sqlite.
package store
