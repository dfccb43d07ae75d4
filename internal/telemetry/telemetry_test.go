package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloo-solutions/deskrag/internal/domain"
	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyDSNIsNoop(t *testing.T) {
	shutdown, err := Init(Config{})

	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestSampleRateFor(t *testing.T) {
	assert.Equal(t, 1.0, SampleRateFor(""))
	assert.Equal(t, 1.0, SampleRateFor("development"))
	assert.Equal(t, 0.1, SampleRateFor("production"))
}

func TestShouldReport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", fmt.Errorf("search: %w", context.Canceled), false},
		{"validation", domain.ErrInvalidTopK, false},
		{"not found", domain.NewDomainError(domain.ErrCodeNotFound, "chunk not found"), false},
		{"unsupported", domain.ErrUnsupportedFileType, false},
		{"too large", domain.ErrFileTooLarge, false},
		{"provider", domain.NewEmbeddingProviderError(errors.New("429")), true},
		{"decode", domain.ErrDecodeFailure, true},
		{"plain", errors.New("disk full"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldReport(tt.err))
		})
	}
}

func TestSpanStatusFor(t *testing.T) {
	assert.Equal(t, sentry.SpanStatusInvalidArgument, spanStatusFor(domain.ErrEmptyQuery))
	assert.Equal(t, sentry.SpanStatusNotFound, spanStatusFor(domain.NewDomainError(domain.ErrCodeNotFound, "x")))
	assert.Equal(t, sentry.SpanStatusUnavailable, spanStatusFor(domain.NewEmbeddingProviderError(errors.New("down"))))
	assert.Equal(t, sentry.SpanStatusDeadlineExceeded, spanStatusFor(context.DeadlineExceeded))
	assert.Equal(t, sentry.SpanStatusInternalError, spanStatusFor(errors.New("boom")))
}

func TestStartSpan_NestsUnderParent(t *testing.T) {
	ctx, root := StartTransaction(context.Background(), "ingest faq.md", "ingest.job")
	defer root.End()

	childCtx, child := StartSpan(ctx, "vectorstore.ingest", SpanAttributes{Operation: "ingest", ChunkCount: 3})
	defer child.End()

	span := sentry.SpanFromContext(childCtx)
	require.NotNil(t, span)
	assert.Equal(t, root.inner.SpanID, span.ParentSpanID)
	assert.Equal(t, 3, span.Data["chunk_count"])
}

func TestSpan_SetErrorMarksStatus(t *testing.T) {
	_, span := StartSpan(context.Background(), "vectorstore.search", SpanAttributes{TopK: 5})
	defer span.End()

	span.SetError(domain.ErrEmptyQuery)

	assert.Equal(t, sentry.SpanStatusInvalidArgument, span.inner.Status)
	assert.Equal(t, 5, span.inner.Data["top_k"])
}

func TestSpan_NilInnerIsSafe(t *testing.T) {
	s := &Span{}
	assert.NotPanics(t, func() {
		s.SetData("k", 1)
		s.SetError(errors.New("x"))
		s.End()
	})
}
