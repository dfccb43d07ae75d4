package jobs

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cloo-solutions/deskrag/internal/domain"
	"github.com/cloo-solutions/deskrag/internal/service"
	"github.com/cloo-solutions/deskrag/internal/telemetry"
)

const (
	// MaxRetries is the maximum number of retries for a failed job
	MaxRetries = 3
	// DefaultRetention is how long finished jobs stay visible in the queue
	DefaultRetention = time.Hour
)

// IngestJobRepository defines the interface for ingest job storage
type IngestJobRepository interface {
	// GetPendingJobs retrieves and claims pending ingest jobs
	GetPendingJobs(ctx context.Context) ([]*domain.IngestJob, error)

	// UpdateJobStatus updates the status of an ingest job
	UpdateJobStatus(ctx context.Context, jobID string, status domain.IngestJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, jobID string) error
}

// Uploader ingests one file's bytes into the store
type Uploader interface {
	Upload(ctx context.Context, input service.UploadInput) (*service.UploadResult, error)
}

type pruner interface {
	Prune(cutoff time.Time) int
}

// IngestWorker processes queued drop-folder files
type IngestWorker struct {
	repo      IngestJobRepository
	uploader  Uploader
	readFile  func(path string) ([]byte, error)
	retention time.Duration
}

// NewIngestWorker creates a new IngestWorker instance
func NewIngestWorker(repo IngestJobRepository, uploader Uploader) *IngestWorker {
	return &IngestWorker{
		repo:      repo,
		uploader:  uploader,
		readFile:  os.ReadFile,
		retention: DefaultRetention,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *IngestWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.GetPendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	if p, ok := w.repo.(pruner); ok {
		p.Prune(time.Now().UTC().Add(-w.retention))
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("Processing %d pending ingest jobs", len(jobs))

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			log.Printf("Error processing job %s: %v", job.ID, err)
		}
	}

	return nil
}

func (w *IngestWorker) processJob(ctx context.Context, job *domain.IngestJob) error {
	ctx, span := telemetry.StartTransaction(ctx, "ingest "+filepath.Base(job.Path), "ingest.job")
	defer span.End()

	log.Printf("Processing job %s for %s", job.ID, job.Path)

	data, err := w.readFile(job.Path)
	if err != nil {
		return w.failPermanently(ctx, job, fmt.Errorf("failed to read file: %w", err))
	}

	result, err := w.uploader.Upload(ctx, service.UploadInput{
		Filename: filepath.Base(job.Path),
		Data:     data,
	})
	if err != nil {
		span.SetError(err)
		if domain.IsEmbeddingProviderError(err) {
			return w.handleJobFailure(ctx, job, err)
		}
		return w.failPermanently(ctx, job, err)
	}

	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IngestJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	log.Printf("Job %s completed: %s ingested as %d chunks", job.ID, result.Filename, result.Chunks)
	return nil
}

// failPermanently marks a job failed without retrying; the file itself is
// the problem, so another attempt would fail the same way.
func (w *IngestWorker) failPermanently(ctx context.Context, job *domain.IngestJob, jobErr error) error {
	log.Printf("Job %s failed: %v", job.ID, jobErr)
	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IngestJobStatusFailed, jobErr.Error()); err != nil {
		return fmt.Errorf("failed to update job status to failed: %w", err)
	}
	return nil
}

// handleJobFailure handles a failed job with retry logic
func (w *IngestWorker) handleJobFailure(ctx context.Context, job *domain.IngestJob, jobErr error) error {
	log.Printf("Job %s failed: %v", job.ID, jobErr)

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		log.Printf("Job %s exceeded max retries (%d), marking as failed", job.ID, MaxRetries)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IngestJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		telemetry.CaptureError(ctx, jobErr)
		return nil
	}

	log.Printf("Job %s will be retried (attempt %d/%d)", job.ID, job.Retries+1, MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IngestJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}
