// Package vectorstore provides the vector store adapter used by both the
// document index and the memory store: upsert, nearest-neighbor query,
// metadata-filtered get, and delete, behind a rich where-clause filter
// algebra so callers never depend on a specific backend's query language.
package vectorstore

import "context"

// Record is a single vector plus its scalar metadata payload.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Result is a single nearest-neighbor hit. Score is similarity, higher is
// closer, independent of the backend's native distance metric.
type Result struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Where is a filter expression evaluated against a record's metadata.
//
// A plain map of field -> scalar is an implicit equality AND across all
// keys: Where{"role": "user", "conversation_id": "abc"}.
//
// Operators nest as a map value: Where{"score": Where{"$gt": 0.5}}.
// Supported operators: $ne, $gt, $gte, $lt, $lte, $in, $nin. Composite
// $and/$or take a []Where: Where{"$or": []Where{...}}.
type Where map[string]any

// Store is the vector store adapter. Collections are named logical
// partitions (the gateway uses one for document chunks, one for memory
// entries); a backend may map them onto physical collections or a single
// collection with a discriminator field.
type Store interface {
	// Upsert inserts or replaces records in collection, batching internally
	// as the backend requires.
	Upsert(ctx context.Context, collection string, records []Record) error
	// Query returns the k nearest records to vector, honoring where.
	Query(ctx context.Context, collection string, vector []float32, k int, where Where) ([]Result, error)
	// Get returns every record matching where, with no similarity ranking.
	Get(ctx context.Context, collection string, where Where) ([]Record, error)
	// Delete removes records by ID. Deleting an ID that does not exist is
	// not an error.
	Delete(ctx context.Context, collection string, ids []string) error
	// EnsureCollection creates collection with the given vector dimension
	// if it does not already exist.
	EnsureCollection(ctx context.Context, collection string, dimension int) error
	Close() error
}
