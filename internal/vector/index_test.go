package vector

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/climateintel/greenhouse/internal/models"
)

func entry(text string, vec ...float32) Entry {
	return Entry{Vector: vec, Chunk: models.Chunk{Text: text}}
}

func TestIndex_InsertSearch(t *testing.T) {
	idx, err := NewIndex(4, "")
	if err != nil {
		t.Fatal(err)
	}
	pos, err := idx.Insert([]Entry{
		entry("first", 1, 0, 0, 0),
		entry("second", 0, 1, 0, 0),
		entry("third", 0, 0, 1, 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	if pos != 0 {
		t.Errorf("start position=%d, want 0", pos)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d, want 3", idx.Size())
	}

	results, err := idx.Search([]float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.Text != "first" {
		t.Errorf("top result=%q, want first", results[0].Chunk.Text)
	}
	if math.Abs(results[0].Score-1.0) > 1e-6 {
		t.Errorf("top score=%v, want 1.0", results[0].Score)
	}
	if math.Abs(results[1].Score) > 1e-6 {
		t.Errorf("second score=%v, want 0.0", results[1].Score)
	}
	// Orthogonal entries tie at score 0; the earlier-inserted one wins.
	if results[1].Chunk.Text != "second" {
		t.Errorf("tie should break to earliest insertion, got %q", results[1].Chunk.Text)
	}
}

func TestIndex_SearchOrderingAndTieBreak(t *testing.T) {
	idx, _ := NewIndex(2, "")
	_, err := idx.Insert([]Entry{
		entry("a", 0, 1),
		entry("b", 1, 0),
		entry("c", 0, 1), // same direction as "a", same score
	})
	if err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search([]float32{0, 2}, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not non-increasing at %d: %v > %v", i, results[i].Score, results[i-1].Score)
		}
	}
	if results[0].Chunk.Text != "a" || results[1].Chunk.Text != "c" {
		t.Errorf("tied scores must sort by insertion position, got %q then %q",
			results[0].Chunk.Text, results[1].Chunk.Text)
	}
	if results[0].Position != 0 || results[1].Position != 2 {
		t.Errorf("positions=%d,%d, want 0,2", results[0].Position, results[1].Position)
	}
}

func TestIndex_NormalizationIdempotence(t *testing.T) {
	idx, _ := NewIndex(3, "")
	// Same direction, different magnitudes; both must score 1.0 after normalization.
	if _, err := idx.Insert([]Entry{entry("x", 2, 2, 1), entry("y", 4, 4, 2)}); err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search([]float32{2, 2, 1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range results {
		if math.Abs(r.Score-1.0) > 1e-6 {
			t.Errorf("result %d score=%v, want 1.0", i, r.Score)
		}
	}
}

func TestIndex_SearchInvalidArguments(t *testing.T) {
	idx, _ := NewIndex(3, "")
	if _, err := idx.Search([]float32{1, 0, 0}, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("k=0 should fail with ErrInvalidArgument, got %v", err)
	}
	if _, err := idx.Search([]float32{1, 0, 0}, -5); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("negative k should fail with ErrInvalidArgument, got %v", err)
	}
	if _, err := idx.Search([]float32{1, 0}, 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("dimension mismatch should fail with ErrInvalidArgument, got %v", err)
	}
}

func TestIndex_SearchEmptyIndex(t *testing.T) {
	idx, _ := NewIndex(3, "")
	results, err := idx.Search([]float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("empty index search should not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result, got %d", len(results))
	}
}

func TestIndex_InsertRejectsWholeBatch(t *testing.T) {
	idx, _ := NewIndex(2, "")
	_, err := idx.Insert([]Entry{
		entry("good", 1, 0),
		entry("zero", 0, 0),
	})
	if !errors.Is(err, ErrDegenerateVector) {
		t.Fatalf("expected ErrDegenerateVector, got %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("partial insertion: Size=%d, want 0", idx.Size())
	}

	_, err = idx.Insert([]Entry{
		entry("good", 1, 0),
		entry("wrong dim", 1, 0, 0),
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("partial insertion: Size=%d, want 0", idx.Size())
	}
}

func TestIndex_InsertAssignsStablePositions(t *testing.T) {
	idx, _ := NewIndex(2, "")
	pos, _ := idx.Insert([]Entry{entry("a", 1, 0)})
	if pos != 0 {
		t.Errorf("first batch position=%d", pos)
	}
	pos, _ = idx.Insert([]Entry{entry("b", 0, 1), entry("c", 1, 1)})
	if pos != 1 {
		t.Errorf("second batch position=%d, want 1", pos)
	}
}

func TestIndex_SnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewIndex(3, dir)
	if err != nil {
		t.Fatal(err)
	}
	_, err = idx.Insert([]Entry{
		{Vector: []float32{1, 2, 3}, Chunk: models.Chunk{Text: "one", SequenceIndex: 0, StartOffset: 0, EndOffset: 1,
			Metadata: map[string]interface{}{models.MetaFilename: "a.txt"}}},
		{Vector: []float32{3, 2, 1}, Chunk: models.Chunk{Text: "two", SequenceIndex: 1, StartOffset: 1, EndOffset: 2,
			Metadata: map[string]interface{}{models.MetaFilename: "a.txt"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	query := []float32{1, 1, 1}
	before, err := idx.Search(query, 2)
	if err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewIndex(3, dir)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Size() != idx.Size() {
		t.Fatalf("reloaded Size=%d, want %d", reloaded.Size(), idx.Size())
	}
	after, err := reloaded.Search(query, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Fatalf("result count changed: %d vs %d", len(after), len(before))
	}
	for i := range before {
		if before[i].Score != after[i].Score {
			t.Errorf("result %d score changed: %v vs %v", i, before[i].Score, after[i].Score)
		}
		if before[i].Chunk.Text != after[i].Chunk.Text {
			t.Errorf("result %d chunk changed: %q vs %q", i, before[i].Chunk.Text, after[i].Chunk.Text)
		}
		if before[i].Position != after[i].Position {
			t.Errorf("result %d position changed: %d vs %d", i, before[i].Position, after[i].Position)
		}
	}
}

func TestIndex_LoadCorruptSnapshotStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "vectors.bin"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "chunks.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	idx, err := NewIndex(3, dir)
	if err != nil {
		t.Fatalf("corrupt snapshot must not fail construction: %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("Size=%d, want 0", idx.Size())
	}
}

func TestIndex_LoadRequiresBothArtifacts(t *testing.T) {
	dir := t.TempDir()
	idx, _ := NewIndex(2, dir)
	if _, err := idx.Insert([]Entry{entry("a", 1, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "chunks.json")); err != nil {
		t.Fatal(err)
	}
	reloaded, err := NewIndex(2, dir)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Size() != 0 {
		t.Errorf("index with missing chunk artifact must load empty, Size=%d", reloaded.Size())
	}
}

func TestIndex_SourceCounts(t *testing.T) {
	idx, _ := NewIndex(2, "")
	meta := func(name string) map[string]interface{} {
		return map[string]interface{}{models.MetaFilename: name}
	}
	_, err := idx.Insert([]Entry{
		{Vector: []float32{1, 0}, Chunk: models.Chunk{Text: "a", Metadata: meta("x.pdf")}},
		{Vector: []float32{0, 1}, Chunk: models.Chunk{Text: "b", Metadata: meta("x.pdf")}},
		{Vector: []float32{1, 1}, Chunk: models.Chunk{Text: "c", Metadata: meta("y.txt")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	counts := idx.SourceCounts()
	if counts["x.pdf"] != 2 || counts["y.txt"] != 1 {
		t.Errorf("SourceCounts=%v", counts)
	}
}
