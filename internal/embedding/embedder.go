// Package embedding provides text embedding backends and caching.
package embedding

import (
	"context"
	"fmt"
)

// Embedder produces vector embeddings for text. Implementations must preserve
// input order and return exactly one vector of Dimensions() floats per input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// BatchError reports an embedding failure for a specific input in a batch.
// Index is the position of the failed input in the batch passed to EmbedBatch.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embed input %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
