package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloo-solutions/deskrag/internal/domain"
	"github.com/google/uuid"
)

// DefaultClaimLimit caps how many jobs one poll claims.
const DefaultClaimLimit = 16

// MemoryQueue keeps ingest jobs in process memory. Jobs are lost on restart,
// like the chunks they would produce.
type MemoryQueue struct {
	mu    sync.Mutex
	jobs  map[string]*domain.IngestJob
	order []string
	limit int
	now   func() time.Time
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:  make(map[string]*domain.IngestJob),
		limit: DefaultClaimLimit,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue adds a pending job for path. A path that already has a pending or
// processing job is not queued twice; the existing job is returned.
func (q *MemoryQueue) Enqueue(path string) (*domain.IngestJob, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.order {
		j := q.jobs[id]
		if j.Path == path && (j.Status == domain.IngestJobStatusPending || j.Status == domain.IngestJobStatusProcessing) {
			copied := *j
			return &copied, false, nil
		}
	}

	job := &domain.IngestJob{
		ID:        uuid.NewString(),
		Path:      path,
		Status:    domain.IngestJobStatusPending,
		CreatedAt: q.now(),
	}
	if err := domain.ValidateIngestJob(job); err != nil {
		return nil, false, err
	}

	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	copied := *job
	return &copied, true, nil
}

// GetPendingJobs claims up to the claim limit of pending jobs, oldest first,
// and marks them processing.
func (q *MemoryQueue) GetPendingJobs(ctx context.Context) ([]*domain.IngestJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var claimed []*domain.IngestJob
	for _, id := range q.order {
		if len(claimed) >= q.limit {
			break
		}
		j := q.jobs[id]
		if j.Status != domain.IngestJobStatusPending {
			continue
		}
		j.Status = domain.IngestJobStatusProcessing
		copied := *j
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

// UpdateJobStatus sets a job's status and error message. Completed and failed
// jobs get a processed timestamp.
func (q *MemoryQueue) UpdateJobStatus(ctx context.Context, jobID string, status domain.IngestJobStatus, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("ingest job %s not found", jobID)
	}
	j.Status = status
	j.Error = errMsg
	if status == domain.IngestJobStatusCompleted || status == domain.IngestJobStatusFailed {
		processedAt := q.now()
		j.ProcessedAt = &processedAt
	}
	return nil
}

// IncrementRetries bumps a job's retry counter.
func (q *MemoryQueue) IncrementRetries(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("ingest job %s not found", jobID)
	}
	j.Retries++
	return nil
}

// Get returns a copy of a job.
func (q *MemoryQueue) Get(jobID string) (domain.IngestJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return domain.IngestJob{}, false
	}
	return *j, true
}

// Prune forgets finished jobs processed before cutoff and returns how many
// were removed.
func (q *MemoryQueue) Prune(cutoff time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.order[:0]
	removed := 0
	for _, id := range q.order {
		j := q.jobs[id]
		if j.ProcessedAt != nil && j.ProcessedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
	return removed
}
