// Package vectorstore keeps embedded chunks in memory and answers
// brute-force cosine similarity queries over them.
package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/deskrag/internal/domain"
	"github.com/cloo-solutions/deskrag/internal/telemetry"
	"github.com/google/uuid"
)

const (
	// DefaultBatchSize is how many chunks go into one provider call.
	DefaultBatchSize = 64
	// DefaultEmbedTimeout bounds each provider call.
	DefaultEmbedTimeout = 30 * time.Second
)

// Embedder turns text into vectors. Every vector from one embedder must have
// the same length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options tunes a Store.
type Options struct {
	// Dimensions fixes the vector length; 0 learns it from the first ingest.
	Dimensions   int
	BatchSize    int
	EmbedTimeout time.Duration
	// Now and NewID are replaceable for tests.
	Now   func() time.Time
	NewID func() string
}

// Store is the process-wide chunk collection. Construct one with New and
// share it; there is no package-level instance.
type Store struct {
	embedder     Embedder
	batchSize    int
	embedTimeout time.Duration
	now          func() time.Time
	newID        func() string

	mu         sync.RWMutex
	dimensions int
	chunks     map[string]*domain.Chunk
	// order holds ids in insertion order; it always has the same ids as chunks.
	order []string
}

// New creates an empty store backed by embedder.
func New(embedder Embedder, opts Options) *Store {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultEmbedTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Store{
		embedder:     embedder,
		batchSize:    opts.BatchSize,
		embedTimeout: opts.EmbedTimeout,
		now:          opts.Now,
		newID:        opts.NewID,
		dimensions:   opts.Dimensions,
		chunks:       make(map[string]*domain.Chunk),
	}
}

// Ingest embeds drafts and stores them as one unit: either every draft
// becomes a chunk or, on any failure, none does.
func (s *Store) Ingest(ctx context.Context, drafts []domain.ChunkDraft) ([]domain.Chunk, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	for _, d := range drafts {
		if err := domain.ValidateChunkDraft(d); err != nil {
			return nil, err
		}
	}

	ctx, span := telemetry.StartSpan(ctx, "vectorstore.ingest", telemetry.SpanAttributes{
		Operation:  "ingest",
		Source:     drafts[0].Source,
		ChunkCount: len(drafts),
	})
	defer span.End()

	texts := make([]string, len(drafts))
	for i, d := range drafts {
		texts[i] = d.Content
	}

	embeddings, err := s.embedAll(ctx, texts)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	ingestedAt := s.now()
	chunks := make([]domain.Chunk, len(drafts))
	for i, d := range drafts {
		chunks[i] = domain.Chunk{
			ID:         s.newID(),
			Content:    d.Content,
			Source:     d.Source,
			ChunkIndex: d.ChunkIndex,
			IngestedAt: ingestedAt,
			Embedding:  embeddings[i],
		}
	}

	if err := s.insert(chunks); err != nil {
		span.SetError(err)
		return nil, err
	}

	out := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = c.Clone()
	}
	return out, nil
}

func (s *Store) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := s.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (s *Store) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, domain.NewEmbeddingProviderError(err)
	}
	if len(vectors) != len(texts) {
		return nil, domain.NewEmbeddingProviderError(
			fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts)),
		)
	}
	return vectors, nil
}

// insert adds chunks in a single critical section after checking that every
// vector matches the store dimension.
func (s *Store) insert(chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dims := s.dimensions
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return domain.NewEmbeddingProviderError(fmt.Errorf("empty embedding for chunk %d of %s", c.ChunkIndex, c.Source))
		}
		if dims == 0 {
			dims = len(c.Embedding)
		}
		if len(c.Embedding) != dims {
			return domain.NewEmbeddingProviderError(
				fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(c.Embedding), dims),
			)
		}
	}

	for i := range chunks {
		if _, exists := s.chunks[chunks[i].ID]; exists {
			return domain.NewDomainError(domain.ErrCodeInternalError, "duplicate chunk id "+chunks[i].ID)
		}
	}

	s.dimensions = dims
	for i := range chunks {
		c := chunks[i].Clone()
		s.chunks[c.ID] = &c
		s.order = append(s.order, c.ID)
	}
	return nil
}

// Search returns up to topK chunks ranked by cosine similarity to query,
// highest first; equal scores keep insertion order.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		return nil, domain.ErrInvalidTopK
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if s.Len() == 0 {
		return []domain.ScoredChunk{}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "vectorstore.search", telemetry.SpanAttributes{Operation: "search", TopK: topK})
	defer span.End()

	queryVec, err := s.embedQuery(ctx, query)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	snapshot, dims := s.snapshot()
	if dims != 0 && len(queryVec) != dims {
		err := domain.NewEmbeddingProviderError(
			fmt.Errorf("%w: query has %d, store has %d", domain.ErrDimensionMismatch, len(queryVec), dims),
		)
		span.SetError(err)
		return nil, err
	}

	return rank(queryVec, snapshot, topK), nil
}

func (s *Store) embedQuery(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.NewEmbeddingProviderError(err)
	}
	return vec, nil
}

// snapshot copies the chunk pointers in insertion order. Stored chunks are
// never mutated, so sharing them with the scan is safe.
func (s *Store) snapshot() ([]*domain.Chunk, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Chunk, len(s.order))
	for i, id := range s.order {
		out[i] = s.chunks[id]
	}
	return out, s.dimensions
}

func rank(query []float32, chunks []*domain.Chunk, topK int) []domain.ScoredChunk {
	type scored struct {
		chunk *domain.Chunk
		score float64
	}

	results := make([]scored, len(chunks))
	for i, c := range chunks {
		results[i] = scored{chunk: c, score: CosineSimilarity(query, c.Embedding)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if len(results) > topK {
		results = results[:topK]
	}

	out := make([]domain.ScoredChunk, len(results))
	for i, r := range results {
		out[i] = domain.ScoredChunk{Chunk: r.chunk.Clone(), Score: r.score}
	}
	return out
}

// DeleteByID removes one chunk and reports whether it existed.
func (s *Store) DeleteByID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chunks[id]; !ok {
		return false
	}
	delete(s.chunks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear empties the store and returns how many chunks were removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.order)
	s.chunks = make(map[string]*domain.Chunk)
	s.order = nil
	return n
}

// Len returns the number of stored chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Dimensions returns the store's vector length, 0 until it is known.
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}

// Stats counts chunks and distinct sources.
func (s *Store) Stats() domain.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make(map[string]struct{})
	for _, c := range s.chunks {
		sources[c.Source] = struct{}{}
	}
	return domain.StoreStats{
		ChunkCount:    len(s.chunks),
		DocumentCount: len(sources),
	}
}

// ListAll returns copies of every chunk in insertion order as of the call.
func (s *Store) ListAll() []domain.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Chunk, len(s.order))
	for i, id := range s.order {
		out[i] = s.chunks[id].Clone()
	}
	return out
}
