package domain

import (
	"fmt"
	"strings"
	"time"
)

// ChunkDraft is a chunk produced by the chunker that has not been embedded yet.
type ChunkDraft struct {
	Content    string
	Source     string
	ChunkIndex int
}

// Chunk is a stored, embedded fragment of an uploaded document.
type Chunk struct {
	ID         string
	Content    string
	Source     string
	ChunkIndex int
	IngestedAt time.Time
	Embedding  []float32
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// StoreStats summarises the store contents.
type StoreStats struct {
	ChunkCount    int
	DocumentCount int
}

// ValidateChunkDraft validates a draft before it is embedded.
func ValidateChunkDraft(d ChunkDraft) error {
	if strings.TrimSpace(d.Content) == "" {
		return ErrEmptyChunkContent
	}
	if d.ChunkIndex < 0 {
		return NewDomainError(ErrCodeValidation, fmt.Sprintf("chunk index cannot be negative: %d", d.ChunkIndex))
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate stored embeddings.
func (c Chunk) Clone() Chunk {
	out := c
	if c.Embedding != nil {
		out.Embedding = make([]float32, len(c.Embedding))
		copy(out.Embedding, c.Embedding)
	}
	return out
}
