// Package embedder converts text into embedding vectors for the vector
// store, using the configured embedding endpoint.
package embedder

import (
	"context"

	"github.com/manifold-ai/retromem/internal/config"
)

// Embedder converts text to embedding vectors.
type Embedder interface {
	// EmbedBatch returns one embedding vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns a model identifier string.
	Name() string
	// Dimension returns the embedding dimensionality.
	Dimension() int
	// Ping verifies the embedding service is reachable.
	Ping(ctx context.Context) error
}

// New constructs the HTTP-backed Embedder for the given config.
func New(cfg config.EmbeddingConfig) Embedder {
	return &httpEmbedder{cfg: cfg}
}
