package jobs

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/deskrag/internal/domain"
	"github.com/cloo-solutions/deskrag/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockIngestJobRepository is a mock implementation of IngestJobRepository
type MockIngestJobRepository struct {
	mock.Mock
}

func (m *MockIngestJobRepository) GetPendingJobs(ctx context.Context) ([]*domain.IngestJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IngestJob), args.Error(1)
}

func (m *MockIngestJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status domain.IngestJobStatus, errMsg string) error {
	args := m.Called(ctx, jobID, status, errMsg)
	return args.Error(0)
}

func (m *MockIngestJobRepository) IncrementRetries(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

// MockUploader is a mock implementation of Uploader
type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, input service.UploadInput) (*service.UploadResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}

func newTestIngestWorker(repo IngestJobRepository, uploader Uploader, files map[string]string) *IngestWorker {
	w := NewIngestWorker(repo, uploader)
	w.readFile = func(path string) ([]byte, error) {
		content, ok := files[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return []byte(content), nil
	}
	return w
}

func pendingJob(id, path string, retries int32) *domain.IngestJob {
	return &domain.IngestJob{
		ID:      id,
		Path:    path,
		Status:  domain.IngestJobStatusProcessing,
		Retries: retries,
	}
}

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_Notify polls before the interval elapses
func TestWorker_Notify(t *testing.T) {
	polled := make(chan struct{}, 1)
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		select {
		case polled <- struct{}{}:
		default:
		}
	})

	worker := NewWorker(mockProcessor, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	worker.Notify()
	worker.Notify()

	select {
	case <-polled:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not poll after Notify")
	}

	worker.Stop()
}

func TestWorker_SurvivesProcessorPanic(t *testing.T) {
	calls := make(chan struct{}, 2)
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		calls <- struct{}{}
		if len(calls) == 1 {
			panic("bad file")
		}
	}).Twice()

	worker := NewWorker(mockProcessor, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	worker.Notify()
	assert.Eventually(t, func() bool { return len(calls) == 1 }, 2*time.Second, 10*time.Millisecond)
	worker.Notify()
	assert.Eventually(t, func() bool { return len(calls) == 2 }, 2*time.Second, 10*time.Millisecond)

	worker.Stop()
	worker.Stop()
}

func TestIngestWorker_ProcessJobs_NoPendingJobs(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockUploader := new(MockUploader)

	mockRepo.On("GetPendingJobs", mock.Anything).Return([]*domain.IngestJob{}, nil)

	worker := newTestIngestWorker(mockRepo, mockUploader, nil)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockUploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestIngestWorker_ProcessJobs_Success(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockUploader := new(MockUploader)

	job := pendingJob("job-1", "/inbox/faq.md", 0)
	mockRepo.On("GetPendingJobs", mock.Anything).Return([]*domain.IngestJob{job}, nil)
	mockUploader.On("Upload", mock.Anything, service.UploadInput{Filename: "faq.md", Data: []byte("# FAQ")}).
		Return(&service.UploadResult{Filename: "faq.md", Chunks: 1, TotalChars: 5}, nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.IngestJobStatusCompleted, "").Return(nil)

	worker := newTestIngestWorker(mockRepo, mockUploader, map[string]string{"/inbox/faq.md": "# FAQ"})
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockUploader.AssertExpectations(t)
}

func TestIngestWorker_ProcessJobs_ProviderFailureRetries(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockUploader := new(MockUploader)

	job := pendingJob("job-1", "/inbox/faq.md", 0)
	mockRepo.On("GetPendingJobs", mock.Anything).Return([]*domain.IngestJob{job}, nil)
	mockUploader.On("Upload", mock.Anything, mock.Anything).
		Return(nil, domain.NewEmbeddingProviderError(errors.New("rate limited")))
	mockRepo.On("IncrementRetries", mock.Anything, "job-1").Return(nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.IngestJobStatusPending, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	worker := newTestIngestWorker(mockRepo, mockUploader, map[string]string{"/inbox/faq.md": "# FAQ"})
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockUploader.AssertExpectations(t)
}

func TestIngestWorker_ProcessJobs_MaxRetriesExceeded(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockUploader := new(MockUploader)

	job := pendingJob("job-1", "/inbox/faq.md", 2)
	mockRepo.On("GetPendingJobs", mock.Anything).Return([]*domain.IngestJob{job}, nil)
	mockUploader.On("Upload", mock.Anything, mock.Anything).
		Return(nil, domain.NewEmbeddingProviderError(errors.New("rate limited")))
	mockRepo.On("IncrementRetries", mock.Anything, "job-1").Return(nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.IngestJobStatusFailed, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	worker := newTestIngestWorker(mockRepo, mockUploader, map[string]string{"/inbox/faq.md": "# FAQ"})
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestIngestWorker_ProcessJobs_UnsupportedFileFailsWithoutRetry(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockUploader := new(MockUploader)

	job := pendingJob("job-1", "/inbox/photo.png", 0)
	mockRepo.On("GetPendingJobs", mock.Anything).Return([]*domain.IngestJob{job}, nil)
	mockUploader.On("Upload", mock.Anything, mock.Anything).Return(nil, domain.ErrUnsupportedFileType)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.IngestJobStatusFailed, mock.Anything).Return(nil)

	worker := newTestIngestWorker(mockRepo, mockUploader, map[string]string{"/inbox/photo.png": "\x89PNG"})
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockRepo.AssertNotCalled(t, "IncrementRetries", mock.Anything, mock.Anything)
}

func TestIngestWorker_ProcessJobs_MissingFile(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockUploader := new(MockUploader)

	job := pendingJob("job-1", "/inbox/gone.txt", 0)
	mockRepo.On("GetPendingJobs", mock.Anything).Return([]*domain.IngestJob{job}, nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.IngestJobStatusFailed, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	worker := newTestIngestWorker(mockRepo, mockUploader, nil)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockUploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestIngestWorker_ProcessJobs_RepositoryError(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockUploader := new(MockUploader)

	mockRepo.On("GetPendingJobs", mock.Anything).Return(nil, errors.New("queue unavailable"))

	worker := newTestIngestWorker(mockRepo, mockUploader, nil)
	err := worker.ProcessJobs(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch pending jobs")
	mockRepo.AssertExpectations(t)
}

func TestIngestWorker_WithMemoryQueue_RetriesThenCompletes(t *testing.T) {
	queue := NewMemoryQueue()
	mockUploader := new(MockUploader)

	job, created, err := queue.Enqueue("/inbox/faq.md")
	require.NoError(t, err)
	require.True(t, created)

	mockUploader.On("Upload", mock.Anything, mock.Anything).
		Return(nil, domain.NewEmbeddingProviderError(errors.New("timeout"))).Once()
	mockUploader.On("Upload", mock.Anything, mock.Anything).
		Return(&service.UploadResult{Filename: "faq.md", Chunks: 2}, nil).Once()

	worker := newTestIngestWorker(queue, mockUploader, map[string]string{"/inbox/faq.md": "# FAQ"})

	require.NoError(t, worker.ProcessJobs(context.Background()))
	got, ok := queue.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, domain.IngestJobStatusPending, got.Status)
	assert.Equal(t, int32(1), got.Retries)

	require.NoError(t, worker.ProcessJobs(context.Background()))
	got, _ = queue.Get(job.ID)
	assert.Equal(t, domain.IngestJobStatusCompleted, got.Status)
	assert.NotNil(t, got.ProcessedAt)
	mockUploader.AssertExpectations(t)
}
