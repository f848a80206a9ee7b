// Package models defines core data structures for chunks, documents, and retrieval results.
package models

import "time"

// Metadata keys attached to every chunk produced from a source file.
const (
	MetaFilename = "filename"
	MetaFilePath = "file_path"
	MetaFileType = "file_type"
)

// Chunk is a token-aligned slice of a source document with positional metadata.
// Offsets are in whitespace-delimited tokens; StartOffset is inclusive,
// EndOffset exclusive. SequenceIndex is zero-based and contiguous per document.
type Chunk struct {
	Text          string                 `json:"text"`
	SequenceIndex int                    `json:"sequence_index"`
	StartOffset   int                    `json:"start_offset"`
	EndOffset     int                    `json:"end_offset"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Filename returns the source filename from the chunk metadata, or "" if unset.
func (c *Chunk) Filename() string {
	if c.Metadata == nil {
		return ""
	}
	name, _ := c.Metadata[MetaFilename].(string)
	return name
}

// Document is a catalog record for an ingested source document.
type Document struct {
	ID         string    `json:"id" db:"id"`
	Source     string    `json:"source" db:"source"`
	Title      string    `json:"title" db:"title"`
	Filename   string    `json:"filename" db:"filename"`
	FileType   string    `json:"file_type" db:"file_type"`
	ChunkCount int       `json:"chunk_count" db:"chunk_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
