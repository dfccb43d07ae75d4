// Package watcher feeds a drop folder into the ingest queue. Files with an
// accepted extension that appear or change in the folder are queued for
// background chunking and embedding once they stop changing.
package watcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cloo-solutions/deskrag/internal/domain"
	"github.com/fsnotify/fsnotify"
)

// DefaultSettleDelay is how long a file must keep the same size and mtime
// before it is queued.
const DefaultSettleDelay = time.Second

// Enqueuer accepts a file path for background ingest.
type Enqueuer interface {
	Enqueue(path string) (*domain.IngestJob, bool, error)
}

// Notifier is told when new work was queued.
type Notifier interface {
	Notify()
}

// stamp identifies one version of a file.
type stamp struct {
	size    int64
	modTime int64
}

type pendingFile struct {
	stamp     stamp
	changedAt time.Time
}

// Watcher watches a single directory, non-recursively. Create and Write
// events only mark a path as pending; a path is queued after its stamp has
// held still for the settle delay, so a file being copied in is read once,
// complete. A version that was already queued is not queued again.
type Watcher struct {
	fs       *fsnotify.Watcher
	dir      string
	queue    Enqueuer
	notifier Notifier
	settle   time.Duration
	now      func() time.Time

	mu       sync.Mutex
	pending  map[string]pendingFile
	ingested map[string]stamp
}

// New creates a watcher for dir. notifier may be nil; settle <= 0 uses
// DefaultSettleDelay.
func New(dir string, queue Enqueuer, notifier Notifier, settle time.Duration) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch dir %s is not a directory", dir)
	}
	if settle <= 0 {
		settle = DefaultSettleDelay
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		fs:       fsw,
		dir:      dir,
		queue:    queue,
		notifier: notifier,
		settle:   settle,
		now:      time.Now,
		pending:  make(map[string]pendingFile),
		ingested: make(map[string]stamp),
	}, nil
}

// ScanExisting queues the supported files already in the directory and
// returns how many new jobs were created. Files present at startup are
// taken as complete.
func (w *Watcher) ScanExisting() (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read watch dir: %w", err)
	}

	queued := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		st, ok := statFile(path)
		if !ok {
			continue
		}
		if w.enqueue(path, st) {
			queued++
		}
	}
	if queued > 0 {
		w.notify()
	}
	return queued, nil
}

// Run handles file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	log.Printf("Watching %s for new documents (settle %v)", w.dir, w.settle)

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.track(event.Name)
			}
		case <-ticker.C:
			if w.flushSettled() > 0 {
				w.notify()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// track marks path as changed now.
func (w *Watcher) track(path string) {
	st, ok := statFile(path)
	if !ok {
		return
	}
	w.mu.Lock()
	w.pending[path] = pendingFile{stamp: st, changedAt: w.now()}
	w.mu.Unlock()
}

// flushSettled queues every pending path whose stamp has not moved for the
// settle delay and returns how many jobs were created. A path the queue
// still holds an active job for stays pending until that job finishes.
func (w *Watcher) flushSettled() int {
	now := w.now()

	w.mu.Lock()
	var ready []string
	for path, p := range w.pending {
		st, ok := statFile(path)
		if !ok {
			delete(w.pending, path)
			continue
		}
		if st != p.stamp {
			w.pending[path] = pendingFile{stamp: st, changedAt: now}
			continue
		}
		if now.Sub(p.changedAt) >= w.settle {
			ready = append(ready, path)
		}
	}
	w.mu.Unlock()

	queued := 0
	for _, path := range ready {
		w.mu.Lock()
		p := w.pending[path]
		w.mu.Unlock()
		if w.enqueue(path, p.stamp) {
			queued++
		}
	}
	return queued
}

// enqueue queues one settled version of path. It reports whether a job was
// created and clears the path from pending unless the queue was busy with it.
func (w *Watcher) enqueue(path string, st stamp) bool {
	w.mu.Lock()
	if prev, ok := w.ingested[path]; ok && prev == st {
		delete(w.pending, path)
		w.mu.Unlock()
		return false
	}
	w.mu.Unlock()

	job, created, err := w.queue.Enqueue(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case err != nil:
		log.Printf("Failed to queue %s: %v", path, err)
		delete(w.pending, path)
		return false
	case !created:
		// an active job holds this path; retry on a later tick
		if _, ok := w.pending[path]; !ok {
			w.pending[path] = pendingFile{stamp: st, changedAt: w.now()}
		}
		return false
	}
	log.Printf("Queued %s as job %s", path, job.ID)
	delete(w.pending, path)
	w.ingested[path] = st
	return true
}

func (w *Watcher) notify() {
	if w.notifier != nil {
		w.notifier.Notify()
	}
}

// statFile returns the stamp of a regular file with an accepted extension.
func statFile(path string) (stamp, bool) {
	if !domain.IsSupportedExtension(path) {
		return stamp{}, false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return stamp{}, false
	}
	return stamp{size: info.Size(), modTime: info.ModTime().UnixNano()}, true
}
