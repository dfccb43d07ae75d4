package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/deskrag/internal/domain"
	"github.com/getsentry/sentry-go"
)

// SpanAttributes describe the document or query a span works on. Zero
// fields are left off the span.
type SpanAttributes struct {
	Operation  string
	Source     string
	ChunkID    string
	ChunkCount int
	TopK       int
}

func (a SpanAttributes) apply(span *sentry.Span) {
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
	if a.Source != "" {
		span.SetTag("source", a.Source)
	}
	if a.ChunkID != "" {
		span.SetTag("chunk_id", a.ChunkID)
	}
	if a.ChunkCount > 0 {
		span.SetData("chunk_count", a.ChunkCount)
	}
	if a.TopK > 0 {
		span.SetData("top_k", a.TopK)
	}
}

// Span is a thin handle over a Sentry span.
type Span struct {
	inner *sentry.Span
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetData records a value on the span, e.g. the number of chunks produced.
func (s *Span) SetData(key string, value interface{}) {
	if s.inner != nil {
		s.inner.SetData(key, value)
	}
}

// SetError sets the span status from err and reports it when ShouldReport
// allows. Caller mistakes such as a bad topK only mark the span.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = spanStatusFor(err)
	if ShouldReport(err) {
		CaptureError(s.inner.Context(), err)
	}
}

// StartSpan opens a child of the span already on ctx, or a new transaction
// when there is none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

// StartTransaction opens a root span for background work such as a drop
// folder ingest job.
func StartTransaction(ctx context.Context, name, op string) (context.Context, *Span) {
	span := sentry.StartTransaction(ctx, name,
		sentry.WithOpName(op),
		sentry.WithTransactionSource(sentry.SourceTask),
	)
	return span.Context(), &Span{inner: span}
}

// ShouldReport reports whether err is worth an event. Errors caused by the
// caller's input are expected traffic and are not sent.
func ShouldReport(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return true
	}
	switch de.Code {
	case domain.ErrCodeValidation,
		domain.ErrCodeNotFound,
		domain.ErrCodeUnsupportedFileType,
		domain.ErrCodeFileTooLarge:
		return false
	}
	return true
}

func spanStatusFor(err error) sentry.SpanStatus {
	if errors.Is(err, context.Canceled) {
		return sentry.SpanStatusCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sentry.SpanStatusDeadlineExceeded
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		switch de.Code {
		case domain.ErrCodeValidation, domain.ErrCodeUnsupportedFileType,
			domain.ErrCodeFileTooLarge, domain.ErrCodeDecodeFailure:
			return sentry.SpanStatusInvalidArgument
		case domain.ErrCodeNotFound:
			return sentry.SpanStatusNotFound
		case domain.ErrCodeEmbeddingProvider:
			return sentry.SpanStatusUnavailable
		}
	}
	return sentry.SpanStatusInternalError
}

// CaptureError reports err through the hub on ctx, or the global hub.
// Errors ShouldReport rejects are dropped.
func CaptureError(ctx context.Context, err error) {
	if !ShouldReport(err) {
		return
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

// AddBreadcrumb records an info breadcrumb on the current scope.
func AddBreadcrumb(ctx context.Context, category, message string) {
	crumb := &sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(crumb, nil)
		return
	}
	sentry.AddBreadcrumb(crumb)
}
