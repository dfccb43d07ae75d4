// Package telemetry wires Sentry error reporting and tracing for the server
// and the ingest worker. Every helper is a no-op until Init is called with a
// DSN.
package telemetry

import (
	"log"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	serverName   = "deskrag"
	flushTimeout = 5 * time.Second
)

// Config controls Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
	// Tags are attached to every event, e.g. {"component": "deskragd"}.
	Tags map[string]string
}

// Init configures the global Sentry client and returns a flush function for
// shutdown. An empty DSN disables reporting. A client that fails to
// initialize is logged and treated as disabled, so the error return is
// reserved for callers that want to surface it.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = SampleRateFor(cfg.Environment)
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		ServerName:       serverName,
		Debug:            cfg.Debug,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		TracesSampler:    sampler(cfg.TracesSampleRate),
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if hint != nil && hint.OriginalException != nil && !ShouldReport(hint.OriginalException) {
				return nil
			}
			return event
		},
	})
	if err != nil {
		log.Printf("sentry: init failed, continuing without reporting: %v", err)
		return func() {}, nil
	}

	if len(cfg.Tags) > 0 {
		sentry.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTags(cfg.Tags)
		})
	}

	log.Printf("sentry: enabled (environment=%s sample_rate=%.2f)", cfg.Environment, cfg.TracesSampleRate)
	return func() { sentry.Flush(flushTimeout) }, nil
}

// SampleRateFor returns the default trace sample rate: every trace in
// development and one in ten elsewhere.
func SampleRateFor(environment string) float64 {
	switch environment {
	case "", "development":
		return 1.0
	default:
		return 0.1
	}
}

// sampler drops health checks and keeps children with their parent.
func sampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if ctx.Span.Name == "GET /health" {
			return 0
		}
		if ctx.Span.ParentSpanID != (sentry.SpanID{}) {
			if ctx.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}
