// Package integration exercises the retrieval pipeline with real storage and
// snapshot persistence.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/climateintel/greenhouse/internal/answer"
	"github.com/climateintel/greenhouse/internal/chunker"
	"github.com/climateintel/greenhouse/internal/embedding"
	"github.com/climateintel/greenhouse/internal/extract"
	"github.com/climateintel/greenhouse/internal/retrieval"
	"github.com/climateintel/greenhouse/internal/storage"
	"github.com/climateintel/greenhouse/internal/vector"
)

const dimensions = 8

func TestIntegration_IngestQueryAndReload(t *testing.T) {
	dir := t.TempDir()
	snapshotDir := filepath.Join(dir, "vectorstore")

	catalog, err := storage.NewSQLiteStorage(filepath.Join(dir, "documents.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer catalog.Close()

	embedder := embedding.NewMockEmbedder(dimensions)
	idx, err := vector.NewIndex(dimensions, snapshotDir)
	if err != nil {
		t.Fatal(err)
	}
	ch, err := chunker.NewChunker(32, 4)
	if err != nil {
		t.Fatal(err)
	}
	coord := retrieval.NewCoordinator(ch, embedder, idx,
		retrieval.WithCatalog(catalog),
		retrieval.WithExtractor(extract.NewExtractor()),
	)

	docsDir := t.TempDir()
	docs := map[string]string{
		"mitigation.txt": "Mitigation policy reduces greenhouse gas emissions at the source.",
		"adaptation.txt": "Adaptation policy manages the impacts of a changing climate.",
	}
	for name, content := range docs {
		if err := os.WriteFile(filepath.Join(docsDir, name), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	ctx := context.Background()
	n, err := coord.IngestDirectory(ctx, docsDir, "integration")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("ingested %d files, want 2", n)
	}

	svc := answer.NewService(coord, "", "", zap.NewNop())
	resp := svc.Answer(ctx, "Mitigation policy reduces greenhouse gas emissions at the source.", 2)
	if len(resp.Sources) == 0 || resp.Sources[0].Filename != "mitigation.txt" {
		t.Fatalf("sources = %+v", resp.Sources)
	}
	if resp.ConfidenceScore <= 0 {
		t.Errorf("confidence = %v", resp.ConfidenceScore)
	}

	docCount, err := catalog.CountDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if docCount != 2 {
		t.Errorf("catalog documents = %d, want 2", docCount)
	}

	// A fresh index over the same snapshot directory must see every chunk and
	// return identical results.
	reloaded, err := vector.NewIndex(dimensions, snapshotDir)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Size() != idx.Size() {
		t.Fatalf("reloaded size = %d, want %d", reloaded.Size(), idx.Size())
	}
	coord2 := retrieval.NewCoordinator(ch, embedder, reloaded)
	results, err := coord2.Retrieve(ctx, "Adaptation policy manages the impacts of a changing climate.", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Chunk.Filename() != "adaptation.txt" {
		t.Errorf("reloaded results = %+v", results)
	}
}
