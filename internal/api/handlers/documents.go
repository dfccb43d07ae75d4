package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cloo-solutions/deskrag/internal/api"
	"github.com/cloo-solutions/deskrag/internal/domain"
	"github.com/cloo-solutions/deskrag/internal/service"
	"github.com/go-chi/chi/v5"
)

// multipartMemory is how much of a multipart form is kept in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

type DocumentService interface {
	Upload(ctx context.Context, input service.UploadInput) (*service.UploadResult, error)
	ListDocuments() service.DocumentsOverview
	Delete(id string) bool
	Clear() int
}

type DocumentHandler struct {
	svc            DocumentService
	maxUploadBytes int64
}

func NewDocumentHandler(svc DocumentService, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

type UploadResponse struct {
	Filename   string `json:"filename"`
	Chunks     int    `json:"chunks"`
	TotalChars int    `json:"totalChars"`
	ArchiveKey string `json:"archiveKey,omitempty"`
	ArchiveURL string `json:"archiveUrl,omitempty"`
}

type StatsResponse struct {
	ChunkCount    int `json:"chunkCount"`
	DocumentCount int `json:"documentCount"`
}

type ChunkSummaryResponse struct {
	ID      string `json:"id"`
	Preview string `json:"preview"`
	Chars   int    `json:"chars"`
}

type DocumentResponse struct {
	Source     string                 `json:"source"`
	ChunkCount int                    `json:"chunkCount"`
	TotalChars int                    `json:"totalChars"`
	UploadedAt string                 `json:"uploadedAt"`
	Chunks     []ChunkSummaryResponse `json:"chunks"`
}

type ListDocumentsResponse struct {
	Stats     StatsResponse      `json:"stats"`
	Documents []DocumentResponse `json:"documents"`
}

func statsToResponse(s domain.StoreStats) StatsResponse {
	return StatsResponse{ChunkCount: s.ChunkCount, DocumentCount: s.DocumentCount}
}

func documentToResponse(d service.DocumentSummary) DocumentResponse {
	chunks := make([]ChunkSummaryResponse, len(d.Chunks))
	for i, c := range d.Chunks {
		chunks[i] = ChunkSummaryResponse{ID: c.ID, Preview: c.Preview, Chars: c.Chars}
	}
	return DocumentResponse{
		Source:     d.Source,
		ChunkCount: d.ChunkCount,
		TotalChars: d.TotalChars,
		UploadedAt: d.UploadedAt.UTC().Format(time.RFC3339),
		Chunks:     chunks,
	}
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.HandleError(w, domain.ErrFileTooLarge)
			return
		}
		api.Error(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		api.HandleError(w, domain.ErrFileTooLarge)
		return
	}

	reader := io.Reader(file)
	if h.maxUploadBytes > 0 {
		reader = io.LimitReader(file, h.maxUploadBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	result, err := h.svc.Upload(r.Context(), service.UploadInput{
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		if api.DomainErrorToHTTP(err) >= http.StatusInternalServerError {
			log.Printf("documents: upload of %s failed: %v", header.Filename, err)
		}
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, UploadResponse{
		Filename:   result.Filename,
		Chunks:     result.Chunks,
		TotalChars: result.TotalChars,
		ArchiveKey: result.ArchiveKey,
		ArchiveURL: result.ArchiveURL,
	})
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	overview := h.svc.ListDocuments()

	documents := make([]DocumentResponse, len(overview.Documents))
	for i, d := range overview.Documents {
		documents[i] = documentToResponse(d)
	}

	api.JSON(w, http.StatusOK, ListDocumentsResponse{
		Stats:     statsToResponse(overview.Stats),
		Documents: documents,
	})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if !h.svc.Delete(id) {
		api.Error(w, http.StatusNotFound, "Chunk not found")
		return
	}

	api.Message(w, http.StatusOK, "Chunk deleted")
}

func (h *DocumentHandler) Clear(w http.ResponseWriter, r *http.Request) {
	removed := h.svc.Clear()
	api.Message(w, http.StatusOK, fmt.Sprintf("Cleared %d documents", removed))
}
