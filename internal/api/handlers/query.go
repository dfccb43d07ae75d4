package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/cloo-solutions/deskrag/internal/api"
	"github.com/cloo-solutions/deskrag/internal/service"
)

// DefaultTopK applies when a query omits topK.
const DefaultTopK = 5

// NoRelevantDocumentsMessage is returned when nothing matched.
const NoRelevantDocumentsMessage = "No relevant documents found"

type RetrievalService interface {
	Retrieve(ctx context.Context, query string, topK int) (service.Retrieval, error)
	Answer(ctx context.Context, message string, retrieval service.Retrieval) (string, error)
}

type QueryHandler struct {
	svc         RetrievalService
	defaultTopK int
}

func NewQueryHandler(svc RetrievalService, defaultTopK int) *QueryHandler {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &QueryHandler{svc: svc, defaultTopK: defaultTopK}
}

type QueryRequest struct {
	Message string `json:"message"`
	TopK    *int   `json:"topK,omitempty"`
}

type SourceResponse struct {
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
	Chunk      int     `json:"chunk"`
	Preview    string  `json:"preview"`
}

type QueryResponse struct {
	Message              string           `json:"message"`
	Answer               string           `json:"answer,omitempty"`
	Sources              []SourceResponse `json:"sources"`
	RetrievalUnavailable bool             `json:"retrievalUnavailable,omitempty"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	topK := h.defaultTopK
	if req.TopK != nil && *req.TopK != 0 {
		topK = *req.TopK
	}
	if topK < 0 {
		api.Error(w, http.StatusBadRequest, "topK must be a positive integer")
		return
	}

	retrieval, err := h.svc.Retrieve(r.Context(), req.Message, topK)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if retrieval.Empty() {
		api.JSON(w, http.StatusOK, QueryResponse{
			Message:              NoRelevantDocumentsMessage,
			Sources:              []SourceResponse{},
			RetrievalUnavailable: retrieval.Unavailable,
		})
		return
	}

	sources := make([]SourceResponse, len(retrieval.Results))
	for i, res := range retrieval.Results {
		sources[i] = SourceResponse{
			Source:     res.Chunk.Source,
			Similarity: res.Score,
			Chunk:      res.Chunk.ChunkIndex,
			Preview:    service.Preview(res.Chunk.Content, service.SourcePreviewChars),
		}
	}

	answer, err := h.svc.Answer(r.Context(), req.Message, retrieval)
	if err != nil {
		log.Printf("query: answer drafting failed, returning sources only: %v", err)
		answer = ""
	}

	api.JSON(w, http.StatusOK, QueryResponse{
		Message: fmt.Sprintf("Found %d relevant chunks", len(sources)),
		Answer:  answer,
		Sources: sources,
	})
}
