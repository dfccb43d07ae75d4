package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/deskrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu    sync.Mutex
	paths []string
	sizes []int64

	// busy makes Enqueue report an active job for the path.
	busy map[string]bool
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{busy: map[string]bool{}}
}

func (q *recordingQueue) Enqueue(path string) (*domain.IngestJob, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job := &domain.IngestJob{ID: "job-" + filepath.Base(path), Path: path, Status: domain.IngestJobStatusPending}
	if q.busy[path] {
		return job, false, nil
	}
	q.paths = append(q.paths, path)
	var size int64 = -1
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	q.sizes = append(q.sizes, size)
	return job, true, nil
}

func (q *recordingQueue) setBusy(path string, busy bool) {
	q.mu.Lock()
	q.busy[path] = busy
	q.mu.Unlock()
}

func (q *recordingQueue) queuedSizes() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int64(nil), q.sizes...)
}

func (q *recordingQueue) queued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.paths...)
}

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) Notify() {
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
}

func (n *countingNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

func TestNew_RejectsMissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), newRecordingQueue(), nil, 0)

	assert.Error(t, err)
}

func TestNew_RejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := New(path, newRecordingQueue(), nil, 0)

	assert.Error(t, err)
}

func TestWatcher_ScanExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "faq.md"), []byte("# FAQ"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "returns.txt"), []byte("30 days"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.png"), []byte("png"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.md"), 0o755))

	queue := newRecordingQueue()
	notifier := &countingNotifier{}
	w, err := New(dir, queue, notifier, 0)
	require.NoError(t, err)
	defer w.Close()

	n, err := w.ScanExisting()

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "faq.md"),
		filepath.Join(dir, "returns.txt"),
	}, queue.queued())
	assert.Equal(t, 1, notifier.calls())

	n, err = w.ScanExisting()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, notifier.calls())
}

func TestWatcher_RunQueuesNewFiles(t *testing.T) {
	dir := t.TempDir()
	queue := newRecordingQueue()
	notifier := &countingNotifier{}
	w, err := New(dir, queue, notifier, 50*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shipping.md"), []byte("# Shipping"), 0o644))

	assert.Eventually(t, func() bool {
		return len(queue.queued()) == 1
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{filepath.Join(dir, "shipping.md")}, queue.queued())
	assert.GreaterOrEqual(t, notifier.calls(), 1)
}

// newClockedWatcher returns a watcher whose clock the test advances.
func newClockedWatcher(t *testing.T, dir string, queue Enqueuer) (*Watcher, *time.Time) {
	t.Helper()
	w, err := New(dir, queue, nil, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }
	return w, &clock
}

func TestWatcher_WaitsForFileToSettle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "handbook.md")
	queue := newRecordingQueue()
	w, clock := newClockedWatcher(t, dir, queue)

	require.NoError(t, os.WriteFile(path, []byte("# Handbook\n"), 0o644))
	w.track(path)
	*clock = clock.Add(500 * time.Millisecond)
	assert.Equal(t, 0, w.flushSettled())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("Returns are accepted for 30 days.\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	w.track(path)

	*clock = clock.Add(900 * time.Millisecond)
	assert.Equal(t, 0, w.flushSettled())
	*clock = clock.Add(200 * time.Millisecond)
	assert.Equal(t, 1, w.flushSettled())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, queue.queued())
	assert.Equal(t, []int64{info.Size()}, queue.queuedSizes())
}

func TestWatcher_LateEventForSameVersionIsIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faq.md")
	queue := newRecordingQueue()
	w, clock := newClockedWatcher(t, dir, queue)

	require.NoError(t, os.WriteFile(path, []byte("# FAQ"), 0o644))
	w.track(path)
	*clock = clock.Add(2 * time.Second)
	require.Equal(t, 1, w.flushSettled())

	// a Write event delivered after the job was queued
	w.track(path)
	*clock = clock.Add(2 * time.Second)

	assert.Equal(t, 0, w.flushSettled())
	assert.Len(t, queue.queued(), 1)
}

func TestWatcher_RequeuesChangedVersionAfterActiveJob(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faq.md")
	queue := newRecordingQueue()
	w, clock := newClockedWatcher(t, dir, queue)

	require.NoError(t, os.WriteFile(path, []byte("# FAQ"), 0o644))
	w.track(path)
	*clock = clock.Add(2 * time.Second)
	require.Equal(t, 1, w.flushSettled())

	queue.setBusy(path, true)
	require.NoError(t, os.WriteFile(path, []byte("# FAQ v2, longer"), 0o644))
	w.track(path)
	*clock = clock.Add(2 * time.Second)
	assert.Equal(t, 0, w.flushSettled())

	queue.setBusy(path, false)
	*clock = clock.Add(time.Second)
	assert.Equal(t, 1, w.flushSettled())
	assert.Len(t, queue.queued(), 2)
}

func TestWatcher_RunQueuesOnceForFileWrittenInSteps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.txt")
	queue := newRecordingQueue()
	w, err := New(dir, queue, nil, 200*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = f.WriteString("part one. ")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = f.WriteString("part two.")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool {
		return len(queue.queued()) == 1
	}, 3*time.Second, 20*time.Millisecond)
	time.Sleep(500 * time.Millisecond)

	assert.Len(t, queue.queued(), 1)
	assert.Equal(t, []int64{int64(len("part one. part two."))}, queue.queuedSizes())
}
