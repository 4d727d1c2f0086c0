// Package vector provides the in-memory cosine similarity index behind evidence retrieval.
package vector

import "context"

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Size() int
	Dimensions() int
	Close() error
}

// VectorResult is a single search hit. ID is the fact id.
type VectorResult struct {
	ID    string
	Score float64 // cosine similarity clamped to [0, 1]
}
