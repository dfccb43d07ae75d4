package middleware

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
)

// SentryMiddleware opens one transaction per request. Once the router has
// matched, the transaction is renamed to the route pattern so every
// DELETE /documents/{id} lands in the same bucket. Without sentry.Init the
// spans are never sent.
func SentryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		tx := startRequestTransaction(r)
		defer tx.Finish()

		r = r.WithContext(sentry.SetHubOnContext(tx.Context(), hub))
		tagRequest(hub, tx, r)

		defer func() {
			if v := recover(); v != nil {
				tx.Status = sentry.SpanStatusInternalError
				hub.RecoverWithContext(r.Context(), v)
				panic(v)
			}
		}()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		finishRequestTransaction(hub, tx, r, rec.statusOrOK())
	})
}

func startRequestTransaction(r *http.Request) *sentry.Span {
	options := []sentry.SpanOption{
		sentry.WithOpName("http.server"),
		sentry.WithTransactionSource(sentry.SourceURL),
	}
	if trace := r.Header.Get(sentry.SentryTraceHeader); trace != "" {
		options = append(options, sentry.ContinueFromHeaders(trace, r.Header.Get(sentry.SentryBaggageHeader)))
	}
	return sentry.StartTransaction(r.Context(), fmt.Sprintf("%s %s", r.Method, r.URL.Path), options...)
}

func tagRequest(hub *sentry.Hub, tx *sentry.Span, r *http.Request) {
	hub.Scope().SetContext("request", map[string]interface{}{
		"method":      r.Method,
		"path":        r.URL.Path,
		"remote_addr": r.RemoteAddr,
	})
	if requestID := GetRequestID(r.Context()); requestID != "" {
		hub.Scope().SetTag("request_id", requestID)
		tx.SetTag("request_id", requestID)
	}
	if ua := r.UserAgent(); ua != "" {
		hub.Scope().SetTag("user_agent", ua)
	}
}

func finishRequestTransaction(hub *sentry.Hub, tx *sentry.Span, r *http.Request, status int) {
	tx.Status = httpStatusToSpanStatus(status)
	tx.SetData("http.response.status_code", status)
	if r.ContentLength > 0 {
		tx.SetData("http.request.body.size", r.ContentLength)
	}

	route := routePattern(r)
	if route != "" {
		tx.Name = fmt.Sprintf("%s %s", r.Method, route)
		tx.Source = sentry.SourceRoute
	}

	// handlers capture the underlying error; this marks the request itself
	if status >= http.StatusInternalServerError {
		hub.CaptureMessage(fmt.Sprintf("HTTP %d on %s", status, tx.Name))
	}
}

// spanStatusByHTTP covers the statuses this API actually returns.
var spanStatusByHTTP = map[int]sentry.SpanStatus{
	http.StatusBadRequest:            sentry.SpanStatusInvalidArgument,
	http.StatusNotFound:              sentry.SpanStatusNotFound,
	http.StatusRequestEntityTooLarge: sentry.SpanStatusInvalidArgument,
	http.StatusUnprocessableEntity:   sentry.SpanStatusInvalidArgument,
	http.StatusTooManyRequests:       sentry.SpanStatusResourceExhausted,
	499:                              sentry.SpanStatusCanceled,
	http.StatusInternalServerError:   sentry.SpanStatusInternalError,
	http.StatusServiceUnavailable:    sentry.SpanStatusUnavailable,
	http.StatusGatewayTimeout:        sentry.SpanStatusDeadlineExceeded,
}

func httpStatusToSpanStatus(status int) sentry.SpanStatus {
	if s, ok := spanStatusByHTTP[status]; ok {
		return s
	}
	switch {
	case status >= 200 && status < 300:
		return sentry.SpanStatusOK
	case status >= 400 && status < 500:
		return sentry.SpanStatusInvalidArgument
	case status >= 500:
		return sentry.SpanStatusInternalError
	default:
		return sentry.SpanStatusUnknown
	}
}
