package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// JobProcessor drains whatever work is ready. The Worker calls it on every
// tick and on every Notify.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker drives a JobProcessor from a ticker, with Notify for callers that
// know new work just arrived (the drop-folder watcher).
type Worker struct {
	processor JobProcessor
	interval  time.Duration

	wake     chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWorker returns a stopped Worker; run it with Start.
func NewWorker(processor JobProcessor, interval time.Duration) *Worker {
	return &Worker{
		processor: processor,
		interval:  interval,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Notify requests a poll without waiting for the next tick. It never blocks,
// and notifications that arrive while one is already pending are merged.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start polls until ctx is cancelled or Stop is called. It blocks, so run it
// in its own goroutine.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Printf("ingest worker: polling every %v", w.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("ingest worker: context cancelled")
			return
		case <-w.quit:
			log.Println("ingest worker: stopped")
			return
		case <-ticker.C:
		case <-w.wake:
		}
		w.poll(ctx)
	}
}

// poll runs one drain. A panicking processor is logged so one bad file
// cannot stop the drop folder for good.
func (w *Worker) poll(ctx context.Context) {
	defer func() {
		if v := recover(); v != nil {
			log.Printf("ingest worker: recovered from panic: %v", v)
		}
	}()
	if err := w.processor.ProcessJobs(ctx); err != nil {
		log.Printf("ingest worker: %v", err)
	}
}

// Stop ends the loop and waits for the in-flight poll to return. Calling it
// more than once is safe.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.done
}
