// Package chunker turns uploaded files into overlapping text chunks ready for
// embedding.
package chunker

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloo-solutions/deskrag/internal/domain"
)

// DefaultMaxUploadBytes is the upload ceiling (10 MiB).
const DefaultMaxUploadBytes int64 = 10 * 1024 * 1024

// Config controls how documents are split.
type Config struct {
	// ChunkSize is the window length in runes.
	ChunkSize int
	// MinChars is the shortest window allowed when backing off to whitespace.
	MinChars int
	// Overlap is how many runes each window shares with the previous one.
	Overlap int
	// MaxUploadBytes rejects larger inputs before decoding.
	MaxUploadBytes int64
}

// DefaultConfig provides sane defaults for chunking.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      1000,
		MinChars:       400,
		Overlap:        200,
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// Validate checks that the windows always advance and always overlap.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.ChunkSize, c.Overlap)
	}
	if c.MinChars <= c.Overlap || c.MinChars > c.ChunkSize {
		return fmt.Errorf("chunk min chars must be in (%d, %d], got %d", c.Overlap, c.ChunkSize, c.MinChars)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

// PDFExtractor pulls plain text out of a PDF.
type PDFExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Chunker decodes uploads and splits them into overlapping windows.
type Chunker struct {
	cfg Config
	pdf PDFExtractor
}

// New creates a Chunker. A nil extractor makes every PDF produce a
// placeholder chunk. An invalid config falls back to DefaultConfig.
func New(cfg Config, pdf PDFExtractor) *Chunker {
	if err := cfg.Validate(); err != nil {
		log.Printf("chunker: %v, using defaults", err)
		cfg = DefaultConfig()
	}
	return &Chunker{cfg: cfg, pdf: pdf}
}

// Config returns the active configuration.
func (c *Chunker) Config() Config {
	return c.cfg
}

// Chunk converts one upload into ordered chunk drafts numbered from zero.
// Empty text yields no chunks and no error.
func (c *Chunker) Chunk(ctx context.Context, data []byte, source, mimeType string) ([]domain.ChunkDraft, error) {
	if int64(len(data)) > c.cfg.MaxUploadBytes {
		return nil, domain.NewDomainErrorWithCause(
			domain.ErrCodeFileTooLarge,
			domain.ErrFileTooLarge.Message,
			fmt.Errorf("%d bytes, limit %d", len(data), c.cfg.MaxUploadBytes),
		)
	}

	fileType := domain.DetectFileType(source, mimeType)
	if fileType == domain.FileTypeUnsupported {
		return nil, domain.ErrUnsupportedFileType
	}

	text, err := c.decode(ctx, fileType, data)
	if err != nil {
		log.Printf("chunker: %s: %v", source, err)
		return []domain.ChunkDraft{{
			Content:    placeholder(source, err),
			Source:     source,
			ChunkIndex: 0,
		}}, nil
	}

	pieces := splitText(text, c.cfg)
	drafts := make([]domain.ChunkDraft, 0, len(pieces))
	for _, piece := range pieces {
		// a long whitespace run can fill a whole window
		if strings.TrimSpace(piece) == "" {
			continue
		}
		drafts = append(drafts, domain.ChunkDraft{
			Content:    piece,
			Source:     source,
			ChunkIndex: len(drafts),
		})
	}
	return drafts, nil
}

func (c *Chunker) decode(ctx context.Context, fileType domain.FileType, data []byte) (string, error) {
	switch {
	case fileType.IsText():
		return decodeUTF8(data), nil
	case fileType == domain.FileTypePDF:
		return c.extractPDF(ctx, data)
	default:
		return "", domain.ErrUnsupportedFileType
	}
}

func (c *Chunker) extractPDF(ctx context.Context, data []byte) (string, error) {
	if c.pdf == nil {
		return "", domain.NewDomainError(domain.ErrCodeDecodeFailure, "pdf text extraction is not configured")
	}
	text, err := c.pdf.Extract(ctx, data)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeDecodeFailure, domain.ErrDecodeFailure.Message, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.NewDomainError(domain.ErrCodeDecodeFailure, "pdf contains no extractable text")
	}
	return text, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func decodeUTF8(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}

func placeholder(source string, err error) string {
	return fmt.Sprintf("[Text extraction failed for %s: %v]", source, err)
}

// splitText cuts text into windows of cfg.ChunkSize runes. A window that
// does not reach the end backs off to the last whitespace past cfg.MinChars.
// Every following window starts exactly cfg.Overlap runes before the
// previous end, so no text is dropped, surrounding whitespace included.
func splitText(text string, cfg Config) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= cfg.ChunkSize {
		return []string{text}
	}

	chunks := make([]string, 0, len(runes)/(cfg.ChunkSize-cfg.Overlap)+1)
	start := 0
	for start < len(runes) {
		end := start + cfg.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			minCut := start + cfg.MinChars
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					end = i
					break
				}
			}
		}

		chunks = append(chunks, string(runes[start:end]))
		if end >= len(runes) {
			break
		}

		next := end - cfg.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}
