package retrieval

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/climateintel/greenhouse/internal/chunker"
	"github.com/climateintel/greenhouse/internal/embedding"
	"github.com/climateintel/greenhouse/internal/models"
	"github.com/climateintel/greenhouse/internal/vector"
)

func newTestCoordinator(t *testing.T, opts ...Option) *Coordinator {
	t.Helper()
	ch, err := chunker.NewChunker(4, 1)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := vector.NewIndex(16, "")
	if err != nil {
		t.Fatal(err)
	}
	return NewCoordinator(ch, embedding.NewMockEmbedder(16), idx, opts...)
}

func TestCoordinator_IngestRetrieve(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	chunks := []models.Chunk{
		{Text: "solar photovoltaic capacity grew rapidly", SequenceIndex: 0},
		{Text: "coal plants face early retirement", SequenceIndex: 1},
	}
	n, err := c.Ingest(ctx, chunks)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Ingest returned %d, want 2", n)
	}
	if c.IndexSize() != 2 {
		t.Errorf("IndexSize=%d, want 2", c.IndexSize())
	}

	// The mock embedder is deterministic, so the exact text retrieves itself
	// with score 1.0.
	results, err := c.Retrieve(ctx, "solar photovoltaic capacity grew rapidly", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Chunk.SequenceIndex != 0 {
		t.Errorf("top result chunk=%d, want 0", results[0].Chunk.SequenceIndex)
	}
	if math.Abs(results[0].Score-1.0) > 1e-5 {
		t.Errorf("score=%v, want 1.0", results[0].Score)
	}
}

func TestCoordinator_IngestEmpty(t *testing.T) {
	c := newTestCoordinator(t)
	n, err := c.Ingest(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("n=%d, want 0", n)
	}
}

type brokenEmbedder struct {
	*embedding.MockEmbedder
}

func (b *brokenEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, &embedding.BatchError{Index: 1, Err: errors.New("text too long")}
}

func TestCoordinator_EmbedFailureInsertsNothing(t *testing.T) {
	ch, _ := chunker.NewChunker(4, 1)
	idx, _ := vector.NewIndex(16, "")
	c := NewCoordinator(ch, &brokenEmbedder{embedding.NewMockEmbedder(16)}, idx)

	_, err := c.Ingest(context.Background(), []models.Chunk{{Text: "a"}, {Text: "b"}})
	if err == nil {
		t.Fatal("expected error")
	}
	var be *embedding.BatchError
	if !errors.As(err, &be) {
		t.Errorf("expected *BatchError in chain, got %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("index should be empty after failed ingest, Size=%d", idx.Size())
	}
}

func TestConfidence(t *testing.T) {
	res := func(scores ...float64) []models.SearchResult {
		out := make([]models.SearchResult, len(scores))
		for i, s := range scores {
			out[i] = models.SearchResult{Score: s}
		}
		return out
	}
	cases := []struct {
		name    string
		results []models.SearchResult
		want    float64
	}{
		{"empty", nil, 0},
		{"single", res(0.8), 0.8},
		{"two", res(0.9, 0.5), 0.7},
		{"mean of top three only", res(0.9, 0.6, 0.3, 0.1), 0.6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Confidence(tc.results); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Confidence=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestCoordinator_IngestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy_brief.txt")
	content := "emissions trading schemes put a price on carbon and reward early movers"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	c := newTestCoordinator(t)
	doc, err := c.IngestFile(context.Background(), path, "cli")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Filename != "policy_brief.txt" || doc.FileType != ".txt" || doc.Source != "cli" {
		t.Errorf("doc=%+v", doc)
	}
	if doc.ChunkCount == 0 || c.IndexSize() != doc.ChunkCount {
		t.Errorf("ChunkCount=%d IndexSize=%d", doc.ChunkCount, c.IndexSize())
	}
	counts := c.SourceCounts()
	if counts["policy_brief.txt"] != doc.ChunkCount {
		t.Errorf("SourceCounts=%v", counts)
	}
}

func TestCoordinator_IngestDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.txt":    "renewable portfolio standards across member states",
		"b.md":     "methane abatement strategies in agriculture",
		"skip.png": "binary-ish",
	}
	for name, text := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0644); err != nil {
			t.Fatal(err)
		}
	}
	c := newTestCoordinator(t)
	n, err := c.IngestDirectory(context.Background(), dir, "watch")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("ingested %d files, want 2 (unsupported extension skipped)", n)
	}
}
