package service

import (
	"context"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloo-solutions/deskrag/internal/domain"
	"github.com/cloo-solutions/deskrag/internal/telemetry"
	"github.com/google/uuid"
)

// ListingPreviewChars is how many characters of a chunk the document listing shows.
const ListingPreviewChars = 100

// Chunker splits an uploaded file into chunk drafts.
type Chunker interface {
	Chunk(ctx context.Context, data []byte, source, mimeType string) ([]domain.ChunkDraft, error)
}

// ChunkStore is the subset of the vector store used for document management.
type ChunkStore interface {
	Ingest(ctx context.Context, drafts []domain.ChunkDraft) ([]domain.Chunk, error)
	DeleteByID(id string) bool
	Clear() int
	Stats() domain.StoreStats
	ListAll() []domain.Chunk
}

// Archive stores original uploads in object storage.
type Archive interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Link(ctx context.Context, key string) (string, error)
}

// UploadInput represents one uploaded file
type UploadInput struct {
	Filename string
	MimeType string
	Data     []byte
}

// UploadResult summarizes an ingested upload
type UploadResult struct {
	Filename   string
	Chunks     int
	TotalChars int
	// ArchiveKey is empty when no archive is configured or archiving failed.
	ArchiveKey string
	// ArchiveURL is a time-limited download link for ArchiveKey, when one
	// could be signed.
	ArchiveURL string
}

// ChunkSummary is one chunk in the document listing
type ChunkSummary struct {
	ID      string
	Preview string
	Chars   int
}

// DocumentSummary groups the chunks that share a source
type DocumentSummary struct {
	Source     string
	ChunkCount int
	TotalChars int
	UploadedAt time.Time
	Chunks     []ChunkSummary
}

// DocumentsOverview is the store contents grouped by source
type DocumentsOverview struct {
	Stats     domain.StoreStats
	Documents []DocumentSummary
}

// DocumentService handles uploads and document management
type DocumentService struct {
	chunker Chunker
	store   ChunkStore
	archive Archive
}

// NewDocumentService creates a new DocumentService instance
func NewDocumentService(chunker Chunker, store ChunkStore) *DocumentService {
	return NewDocumentServiceWithArchive(chunker, store, nil)
}

// NewDocumentServiceWithArchive creates a DocumentService that also archives
// original uploads. A nil archive disables archiving.
func NewDocumentServiceWithArchive(chunker Chunker, store ChunkStore, archive Archive) *DocumentService {
	return &DocumentService{
		chunker: chunker,
		store:   store,
		archive: archive,
	}
}

// Upload chunks a file, embeds and stores the chunks, then archives the
// original. Chunking and embedding failures leave the store unchanged.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if strings.TrimSpace(input.Filename) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "filename is required")
	}

	ctx, span := telemetry.StartSpan(ctx, "documents.upload", telemetry.SpanAttributes{
		Operation: "upload",
		Source:    input.Filename,
	})
	defer span.End()

	drafts, err := s.chunker.Chunk(ctx, input.Data, input.Filename, input.MimeType)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	chunks, err := s.store.Ingest(ctx, drafts)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to ingest %s: %w", input.Filename, err)
	}

	span.SetData("chunk_count", len(chunks))

	result := &UploadResult{
		Filename: input.Filename,
		Chunks:   len(chunks),
	}
	for _, c := range chunks {
		result.TotalChars += utf8.RuneCountInString(c.Content)
	}

	if s.archive != nil {
		key := ArchiveKey(input.Filename)
		if err := s.archive.Put(ctx, key, input.MimeType, input.Data); err != nil {
			log.Printf("documents: failed to archive %s: %v", input.Filename, err)
			telemetry.CaptureError(ctx, err)
		} else {
			result.ArchiveKey = key
			if link, err := s.archive.Link(ctx, key); err != nil {
				log.Printf("documents: failed to sign link for %s: %v", key, err)
			} else {
				result.ArchiveURL = link
			}
		}
	}

	telemetry.AddBreadcrumb(ctx, "documents", fmt.Sprintf("ingested %s (%d chunks)", input.Filename, result.Chunks))
	return result, nil
}

// ArchiveKey builds the object key for an uploaded file.
func ArchiveKey(filename string) string {
	return fmt.Sprintf("uploads/%s/%s", uuid.NewString(), path.Base(filename))
}

// ListDocuments groups every stored chunk by source, in the order sources
// were first ingested; chunks within a source are ordered by index.
func (s *DocumentService) ListDocuments() DocumentsOverview {
	chunks := s.store.ListAll()

	var order []string
	groups := make(map[string][]domain.Chunk)
	for _, c := range chunks {
		if _, ok := groups[c.Source]; !ok {
			order = append(order, c.Source)
		}
		groups[c.Source] = append(groups[c.Source], c)
	}

	documents := make([]DocumentSummary, 0, len(order))
	for _, source := range order {
		group := groups[source]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].ChunkIndex < group[j].ChunkIndex
		})

		doc := DocumentSummary{
			Source:     source,
			ChunkCount: len(group),
			Chunks:     make([]ChunkSummary, 0, len(group)),
		}
		for _, c := range group {
			chars := utf8.RuneCountInString(c.Content)
			doc.TotalChars += chars
			if doc.UploadedAt.IsZero() || c.IngestedAt.Before(doc.UploadedAt) {
				doc.UploadedAt = c.IngestedAt
			}
			doc.Chunks = append(doc.Chunks, ChunkSummary{
				ID:      c.ID,
				Preview: Preview(c.Content, ListingPreviewChars),
				Chars:   chars,
			})
		}
		documents = append(documents, doc)
	}

	return DocumentsOverview{
		Stats: domain.StoreStats{
			ChunkCount:    len(chunks),
			DocumentCount: len(order),
		},
		Documents: documents,
	}
}

// Delete removes one chunk and reports whether it existed.
func (s *DocumentService) Delete(id string) bool {
	return s.store.DeleteByID(id)
}

// Clear removes every chunk and returns how many were removed.
func (s *DocumentService) Clear() int {
	return s.store.Clear()
}

// Stats returns the current store counts.
func (s *DocumentService) Stats() domain.StoreStats {
	return s.store.Stats()
}

// Preview returns at most n characters of text, with "..." appended when
// the text was cut.
func Preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}
