package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloo-solutions/deskrag/internal/domain"
	"github.com/cloo-solutions/deskrag/internal/telemetry"
)

// SourcePreviewChars is how many characters of a chunk a query source shows.
const SourcePreviewChars = 200

const answerSystemPrompt = `You are a customer support assistant. Answer the customer's message using only the numbered context passages below. If the passages do not contain the answer, say so briefly. Do not invent policies, prices or order details.`

// Searcher ranks stored chunks against a query.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error)
}

// Answerer drafts a reply from a system prompt and a user message.
type Answerer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Retrieval is the outcome of a similarity query
type Retrieval struct {
	Query   string
	Results []domain.ScoredChunk
	// Unavailable is set when the embedding provider failed and Results is
	// empty for that reason rather than because nothing matched.
	Unavailable bool
}

// Empty reports whether the retrieval found nothing.
func (r Retrieval) Empty() bool {
	return len(r.Results) == 0
}

// RetrievalService answers similarity queries for the chat flow
type RetrievalService struct {
	searcher      Searcher
	answerer      Answerer
	minSimilarity float64
}

// NewRetrievalService creates a new RetrievalService instance. A nil
// answerer disables answer drafting; minSimilarity <= 0 disables filtering.
func NewRetrievalService(searcher Searcher, answerer Answerer, minSimilarity float64) *RetrievalService {
	return &RetrievalService{
		searcher:      searcher,
		answerer:      answerer,
		minSimilarity: minSimilarity,
	}
}

// CanAnswer reports whether answer drafting is configured.
func (s *RetrievalService) CanAnswer() bool {
	return s.answerer != nil
}

// Retrieve returns up to topK chunks for query. An embedding provider failure
// is not returned as an error: the result comes back empty and marked
// Unavailable so the caller can continue without retrieval.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, topK int) (Retrieval, error) {
	result := Retrieval{Query: query, Results: []domain.ScoredChunk{}}
	if topK <= 0 {
		return result, domain.ErrInvalidTopK
	}
	if strings.TrimSpace(query) == "" {
		return result, nil
	}

	matches, err := s.searcher.Search(ctx, query, topK)
	if err != nil {
		if domain.IsEmbeddingProviderError(err) {
			log.Printf("retrieval: embedding provider unavailable: %v", err)
			telemetry.CaptureError(ctx, err)
			result.Unavailable = true
			return result, nil
		}
		return result, err
	}

	for _, m := range matches {
		if s.minSimilarity > 0 && m.Score < s.minSimilarity {
			continue
		}
		result.Results = append(result.Results, m)
	}
	return result, nil
}

// Answer drafts a reply to message grounded on the retrieved chunks. It
// returns "" without calling the model when no answerer is configured or
// nothing was retrieved.
func (s *RetrievalService) Answer(ctx context.Context, message string, retrieval Retrieval) (string, error) {
	if s.answerer == nil || retrieval.Empty() {
		return "", nil
	}

	ctx, span := telemetry.StartSpan(ctx, "retrieval.answer", telemetry.SpanAttributes{
		Operation:  "answer",
		ChunkCount: len(retrieval.Results),
	})
	defer span.End()

	reply, err := s.answerer.Complete(ctx, answerSystemPrompt, BuildAnswerPrompt(message, retrieval.Results))
	if err != nil {
		span.SetError(err)
		return "", fmt.Errorf("failed to draft answer: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// BuildAnswerPrompt lays out retrieved chunks as numbered context passages
// followed by the customer's message.
func BuildAnswerPrompt(message string, results []domain.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] (%s, chunk %d)\n%s\n\n", i+1, r.Chunk.Source, r.Chunk.ChunkIndex, r.Chunk.Content)
	}
	b.WriteString("Customer message:\n")
	b.WriteString(message)
	return b.String()
}
