// Package retrieval orchestrates chunking, embedding, and vector index access.
package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/climateintel/greenhouse/internal/chunker"
	"github.com/climateintel/greenhouse/internal/embedding"
	"github.com/climateintel/greenhouse/internal/extract"
	"github.com/climateintel/greenhouse/internal/models"
	"github.com/climateintel/greenhouse/internal/storage"
	"github.com/climateintel/greenhouse/internal/vector"
)

// Coordinator drives the ingestion path (chunk, embed, insert) and the query
// path (embed, search). Embedding runs before the index lock is taken, so
// expensive model calls never block concurrent searches.
type Coordinator struct {
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	index     *vector.Index
	catalog   storage.Storage
	extractor *extract.Extractor
	logger    *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCatalog sets the document catalog; when set, file ingestion records a
// catalog entry per document.
func WithCatalog(s storage.Storage) Option {
	return func(c *Coordinator) { c.catalog = s }
}

// WithExtractor sets the text extractor used by IngestFile. When unset, files
// are read as plain text.
func WithExtractor(e *extract.Extractor) Option {
	return func(c *Coordinator) { c.extractor = e }
}

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator creates a coordinator over the given chunker, embedder, and index.
func NewCoordinator(ch *chunker.Chunker, emb embedding.Embedder, idx *vector.Index, opts ...Option) *Coordinator {
	c := &Coordinator{
		chunker:  ch,
		embedder: emb,
		index:    idx,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ingest embeds chunks as one batch and inserts the resulting entries in
// order. The call is atomic: an embedding or insert failure inserts nothing.
// Returns the number of chunks inserted.
func (c *Coordinator) Ingest(ctx context.Context, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	entries := make([]vector.Entry, len(chunks))
	for i := range chunks {
		entries[i] = vector.Entry{Vector: vectors[i], Chunk: chunks[i]}
	}
	if _, err := c.index.Insert(entries); err != nil {
		return 0, fmt.Errorf("insert entries: %w", err)
	}
	return len(chunks), nil
}

// Retrieve embeds the query and returns the top-k index matches unchanged.
func (c *Coordinator) Retrieve(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return c.index.Search(vec, k)
}

// Confidence is the mean of the top min(3, len(results)) scores. An empty
// result set yields 0.
func Confidence(results []models.SearchResult) float64 {
	if len(results) == 0 {
		return 0
	}
	n := len(results)
	if n > 3 {
		n = 3
	}
	var sum float64
	for _, r := range results[:n] {
		sum += r.Score
	}
	return sum / float64(n)
}

// IngestFile extracts, normalizes, chunks, and ingests the file at path,
// recording a catalog entry when a catalog is configured. source labels where
// the file came from (upload, watch, cli). Returns the catalog record.
func (c *Coordinator) IngestFile(ctx context.Context, path, source string) (*models.Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	text, err := c.extractText(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	text = chunker.Preprocess(text)
	if text == "" {
		return nil, fmt.Errorf("no text extracted from %s", absPath)
	}
	filename := filepath.Base(absPath)
	meta := map[string]interface{}{
		models.MetaFilename: filename,
		models.MetaFilePath: absPath,
		models.MetaFileType: strings.ToLower(filepath.Ext(absPath)),
	}
	chunks := c.chunker.Chunk(text, meta)
	n, err := c.Ingest(ctx, chunks)
	if err != nil {
		return nil, err
	}
	doc := &models.Document{
		ID:         uuid.New().String(),
		Source:     source,
		Title:      filename,
		Filename:   filename,
		FileType:   strings.ToLower(filepath.Ext(absPath)),
		ChunkCount: n,
	}
	if c.catalog != nil {
		if err := c.catalog.CreateDocument(ctx, doc); err != nil {
			c.logger.Warn("catalog record failed", zap.String("filename", filename), zap.Error(err))
		}
	}
	c.logger.Info("file ingested",
		zap.String("filename", filename), zap.String("source", source), zap.Int("chunks", n))
	return doc, nil
}

// IngestDirectory walks dir and ingests every regular file with a supported
// extension. Returns the number of files ingested and the first error.
func (c *Coordinator) IngestDirectory(ctx context.Context, dir, source string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	n := 0
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !extract.Supported(filepath.Ext(path)) {
			return nil
		}
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, ingestErr := c.IngestFile(ctx, path, source); ingestErr != nil {
			return ingestErr
		}
		n++
		return nil
	})
	return n, err
}

// IndexSize returns the number of entries in the vector index.
func (c *Coordinator) IndexSize() int {
	return c.index.Size()
}

// SourceCounts returns stored chunk counts aggregated per source filename.
func (c *Coordinator) SourceCounts() map[string]int {
	return c.index.SourceCounts()
}

func (c *Coordinator) extractText(path string) (string, error) {
	if c.extractor != nil {
		return c.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}
