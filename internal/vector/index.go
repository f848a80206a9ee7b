package vector

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/climateintel/greenhouse/internal/models"
)

var (
	// ErrInvalidArgument reports a non-positive k or a vector whose dimension
	// does not match the index.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDegenerateVector reports a zero-norm vector that cannot be normalized.
	ErrDegenerateVector = errors.New("degenerate vector")
)

// Entry pairs an embedding vector with its source chunk for insertion.
type Entry struct {
	Vector []float32
	Chunk  models.Chunk
}

// Index is an append-only flat vector index. Vectors are stored L2-normalized
// so inner product equals cosine similarity; search is exact brute force.
// The chunk list and vector collection stay positionally aligned: row i of
// vectors belongs to chunks[i], and positions are never reused.
//
// A single RWMutex serializes inserts and flushes against searches; embedding
// work happens outside the index and never holds the lock.
type Index struct {
	dimensions int
	dir        string
	vectors    [][]float32
	chunks     []models.Chunk
	mu         sync.RWMutex
	logger     *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets a logger for snapshot load/flush events.
func WithLogger(l *zap.Logger) Option {
	return func(x *Index) { x.logger = l }
}

// NewIndex creates an index for vectors of the given dimension. dir is the
// snapshot directory; when empty the index is memory-only and flushes are
// no-ops. If a snapshot is present in dir it is loaded; a missing or corrupt
// snapshot starts the index empty (logged, not fatal), so operators can
// re-run ingestion instead of losing the process.
func NewIndex(dimensions int, dir string, opts ...Option) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", ErrInvalidArgument, dimensions)
	}
	x := &Index{
		dimensions: dimensions,
		dir:        dir,
		vectors:    make([][]float32, 0),
		chunks:     make([]models.Chunk, 0),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	x.load()
	return x, nil
}

// Insert normalizes and appends entries in input order and returns the
// position assigned to the first entry. The whole batch is validated before
// anything is appended: a dimension mismatch fails with ErrInvalidArgument, a
// zero-norm vector with ErrDegenerateVector, and in both cases nothing is
// inserted. A snapshot flush happens before Insert returns; if the flush
// fails the append is rolled back so a failed insert inserts nothing.
func (x *Index) Insert(entries []Entry) (int, error) {
	for i, e := range entries {
		if len(e.Vector) != x.dimensions {
			return 0, fmt.Errorf("%w: entry %d has dimension %d, index expects %d",
				ErrInvalidArgument, i, len(e.Vector), x.dimensions)
		}
		if L2Norm(e.Vector) == 0 {
			return 0, fmt.Errorf("%w: entry %d has zero norm", ErrDegenerateVector, i)
		}
	}
	normalizedVecs := make([][]float32, len(entries))
	for i, e := range entries {
		normalizedVecs[i] = normalized(e.Vector)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	start := len(x.vectors)
	if len(entries) == 0 {
		return start, nil
	}
	for i, e := range entries {
		x.vectors = append(x.vectors, normalizedVecs[i])
		x.chunks = append(x.chunks, e.Chunk)
	}
	if err := x.flushLocked(); err != nil {
		x.vectors = x.vectors[:start]
		x.chunks = x.chunks[:start]
		return 0, fmt.Errorf("flush snapshot: %w", err)
	}
	return start, nil
}

// Search returns the top-k stored entries by cosine similarity to query,
// scores non-increasing. Equal scores sort by lowest insertion position so
// results are deterministic. An empty index returns an empty result; k <= 0
// and dimension mismatches fail with ErrInvalidArgument.
func (x *Index) Search(query []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	if len(query) != x.dimensions {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			ErrInvalidArgument, len(query), x.dimensions)
	}
	if L2Norm(query) == 0 {
		return nil, fmt.Errorf("%w: query has zero norm", ErrDegenerateVector)
	}
	q := normalized(query)

	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.vectors) == 0 {
		return nil, nil
	}
	results := make([]models.SearchResult, len(x.vectors))
	for i, vec := range x.vectors {
		results[i] = models.SearchResult{
			Chunk:    x.chunks[i],
			Score:    InnerProduct(q, vec),
			Position: i,
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Position < results[j].Position
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k:k], nil
}

// Size returns the number of stored entries.
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Dimensions returns the fixed vector dimension of the index.
func (x *Index) Dimensions() int { return x.dimensions }

// SourceCounts returns the number of stored chunks per source filename.
// Chunks without filename metadata are counted under "unknown".
func (x *Index) SourceCounts() map[string]int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	counts := make(map[string]int)
	for i := range x.chunks {
		name := x.chunks[i].Filename()
		if name == "" {
			name = "unknown"
		}
		counts[name]++
	}
	return counts
}

// Flush writes a snapshot of the current contents.
func (x *Index) Flush() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.flushLocked()
}
