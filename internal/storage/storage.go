// Package storage persists the catalog of ingested source documents.
package storage

import (
	"context"

	"github.com/climateintel/greenhouse/internal/models"
)

// Storage is the document catalog. It is bookkeeping for the status and
// listing endpoints; the vector index snapshot remains the retrieval source
// of truth.
type Storage interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	CountDocuments(ctx context.Context) (int64, error)
	Close() error
}
