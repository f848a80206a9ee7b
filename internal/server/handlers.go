package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/climateintel/greenhouse/internal/extract"
	"github.com/climateintel/greenhouse/internal/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"total_chunks": s.coordinator.IndexSize(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var docCount int64
	if s.catalog != nil {
		n, err := s.catalog.CountDocuments(r.Context())
		if err != nil {
			s.logger.Error("status: count documents failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "failed to read catalog")
			return
		}
		docCount = n
	}
	s.respondJSON(w, http.StatusOK, models.IngestionStatus{
		Status:             "ready",
		Message:            "vector index is ready for queries",
		DocumentsProcessed: docCount,
		TotalChunks:        s.coordinator.IndexSize(),
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	counts := s.coordinator.SourceCounts()
	listings := make([]models.DocumentListing, 0, len(counts))
	for filename, chunks := range counts {
		listings = append(listings, models.DocumentListing{Filename: filename, Chunks: chunks})
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].Filename < listings[j].Filename })
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": listings,
		"total":     len(listings),
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.respondError(w, http.StatusBadRequest, "question cannot be empty")
		return
	}
	s.logger.Debug("query request",
		zap.String("question", req.Question), zap.Int("max_results", req.MaxResults))
	resp := s.answerer.Answer(r.Context(), req.Question, req.MaxResults)
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	ext := filepath.Ext(filename)
	if !extract.Supported(ext) {
		s.respondError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported file type %q, allowed: %s", ext, strings.Join(extract.SupportedExtensions(), ", ")))
		return
	}
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		s.logger.Error("upload: create dir failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	path := filepath.Join(s.uploadDir, filename)
	dst, err := os.Create(path)
	if err != nil {
		s.logger.Error("upload: create file failed", zap.String("path", path), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	_, copyErr := io.Copy(dst, file)
	closeErr := dst.Close()
	if copyErr != nil || closeErr != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	doc, err := s.coordinator.IngestFile(r.Context(), path, "upload")
	if err != nil {
		s.logger.Error("upload: ingest failed", zap.String("filename", filename), zap.Error(err))
		s.respondJSON(w, http.StatusOK, models.UploadResponse{
			Filename: filename,
			Status:   "error",
			Message:  "failed to extract text from document",
		})
		return
	}
	s.respondJSON(w, http.StatusOK, models.UploadResponse{
		Filename: filename,
		Status:   "success",
		Message:  fmt.Sprintf("successfully processed %d chunks", doc.ChunkCount),
	})
}

type ingestRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	info, err := os.Stat(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "path does not exist")
		return
	}
	if info.IsDir() {
		n, err := s.coordinator.IngestDirectory(r.Context(), req.Path, "api")
		if err != nil {
			s.logger.Error("ingest directory failed", zap.String("path", req.Path), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "files": n})
		return
	}
	doc, err := s.coordinator.IngestFile(r.Context(), req.Path, "api")
	if err != nil {
		s.logger.Error("ingest file failed", zap.String("path", req.Path), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "chunks": doc.ChunkCount})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
