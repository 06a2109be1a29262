// Package domain contains the core entities of the memory engine: memory items
// under spaced review, their review history, and refinement batches that age raw
// excerpts toward permanence. It is independent of storage, transport and the
// text-generation service.
package domain
