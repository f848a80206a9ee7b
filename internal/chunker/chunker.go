// Package chunker splits normalized text into overlapping fixed-size token windows.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/climateintel/greenhouse/internal/models"
)

// ErrInvalidChunking reports a chunk size/overlap combination that would
// produce a non-advancing window.
var ErrInvalidChunking = errors.New("invalid chunking configuration")

// Chunker splits text into overlapping word-based chunks.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker with the given window size and overlap, both in
// whitespace-delimited tokens. Returns ErrInvalidChunking unless size > overlap >= 0.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunking, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must be non-negative, got %d", ErrInvalidChunking, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidChunking, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk splits text into chunks of at most c.size tokens; successive windows
// start size-overlap tokens apart. Each chunk carries a copy of metadata plus
// its sequence index and token offsets. Empty or whitespace-only text yields
// nil. The output is deterministic for a given input.
func (c *Chunker) Chunk(text string, metadata map[string]interface{}) []models.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.size - c.overlap
	chunks := make([]models.Chunk, 0, (len(words)+step-1)/step)
	for start := 0; start < len(words); start += step {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		md := make(map[string]interface{}, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
		chunks = append(chunks, models.Chunk{
			Text:          strings.Join(words[start:end], " "),
			SequenceIndex: len(chunks),
			StartOffset:   start,
			EndOffset:     end,
			Metadata:      md,
		})
		if end >= len(words) {
			break
		}
	}
	return chunks
}

// Size returns the window size in tokens.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the window overlap in tokens.
func (c *Chunker) Overlap() int { return c.overlap }
