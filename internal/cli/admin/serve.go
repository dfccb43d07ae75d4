package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/deskrag/internal/api/handlers"
	"github.com/cloo-solutions/deskrag/internal/chunker"
	"github.com/cloo-solutions/deskrag/internal/config"
	"github.com/cloo-solutions/deskrag/internal/extract"
	"github.com/cloo-solutions/deskrag/internal/jobs"
	"github.com/cloo-solutions/deskrag/internal/openai"
	"github.com/cloo-solutions/deskrag/internal/server"
	"github.com/cloo-solutions/deskrag/internal/service"
	"github.com/cloo-solutions/deskrag/internal/storage"
	"github.com/cloo-solutions/deskrag/internal/telemetry"
	"github.com/cloo-solutions/deskrag/internal/vectorstore"
	"github.com/cloo-solutions/deskrag/internal/watcher"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the deskrag API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-scan", false, "Skip queueing files already in the watch dir on startup")

	return cmd
}

// app is the wired server: the HTTP handler plus the background pieces that
// need starting and stopping.
type app struct {
	handler http.Handler
	store   *vectorstore.Store
	worker  *jobs.Worker
	watcher *watcher.Watcher
}

// start launches the drop-folder pipeline, if configured.
func (a *app) start(ctx context.Context, scanExisting bool) {
	if a.worker == nil {
		return
	}
	go a.worker.Start(ctx)
	go a.watcher.Run(ctx)
	if scanExisting {
		n, err := a.watcher.ScanExisting()
		if err != nil {
			log.Printf("watch dir scan failed: %v", err)
		} else if n > 0 {
			log.Printf("queued %d existing files", n)
		}
	}
}

func (a *app) stop() {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			log.Printf("failed to close watcher: %v", err)
		}
	}
	if a.worker != nil {
		a.worker.Stop()
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	var embedder vectorstore.Embedder = NoOpEmbedder{}
	var answerer service.Answerer
	if cfg.HasOpenAI() {
		client := openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
			ChatModel:           cfg.ChatModel,
			EmbeddingDimensions: cfg.EmbeddingDimensions,
			RequestsPerSecond:   cfg.EmbeddingRPS,
		})
		embedder = client
		if cfg.ChatModel != "" {
			answerer = client
		}
		if dims := client.Dimensions(); dims > 0 {
			log.Printf("embedding provider: %s (%d dimensions)", cfg.EmbeddingModel, dims)
		} else {
			log.Printf("embedding provider: %s (dimensions learned from first response)", cfg.EmbeddingModel)
		}
	} else {
		log.Println("DESKRAG_OPENAI_API_KEY not set: uploads will fail and queries will report retrieval unavailable")
	}

	var pdf chunker.PDFExtractor
	if cfg.HasPDFExtractor() {
		pdf = extract.NewHTTPExtractor(cfg.PDFExtractorURL, cfg.PDFExtractorTimeout)
		log.Printf("pdf extractor: %s", cfg.PDFExtractorURL)
	}
	chunks := chunker.New(cfg.Chunking(), pdf)

	store := vectorstore.New(embedder, vectorstore.Options{
		Dimensions:   cfg.EmbeddingDimensions,
		BatchSize:    cfg.EmbeddingBatchSize,
		EmbedTimeout: cfg.EmbeddingTimeout,
	})

	documentSvc := service.NewDocumentService(chunks, store)
	if cfg.HasS3() {
		archive, err := storage.New(ctx, storage.Options{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
			LinkExpiry:      cfg.S3LinkExpiry,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create archive: %w", err)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure archive bucket: %w", err)
		}
		log.Printf("Archive bucket '%s' ready", archive.Bucket())
		documentSvc = service.NewDocumentServiceWithArchive(chunks, store, archive)
	}

	retrievalSvc := service.NewRetrievalService(store, answerer, cfg.MinSimilarity)

	a := &app{
		store: store,
		handler: server.NewRouter(server.RouterConfig{
			DocumentHandler: handlers.NewDocumentHandler(documentSvc, cfg.MaxUploadBytes),
			QueryHandler:    handlers.NewQueryHandler(retrievalSvc, cfg.DefaultTopK),
			MaxUploadBytes:  cfg.MaxUploadBytes,
		}),
	}

	if cfg.HasWatchDir() {
		queue := jobs.NewMemoryQueue()
		a.worker = jobs.NewWorker(jobs.NewIngestWorker(queue, documentSvc), cfg.WatchPollInterval)
		w, err := watcher.New(cfg.WatchDir, queue, a.worker, cfg.WatchSettleDelay)
		if err != nil {
			return nil, fmt.Errorf("failed to watch %s: %w", cfg.WatchDir, err)
		}
		a.watcher = w
	}

	return a, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: telemetry.SampleRateFor(cfg.Environment),
		Debug:            cfg.Debug,
		Tags:             map[string]string{"component": "deskragd"},
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
	} else {
		defer shutdownTelemetry()
	}

	if portFlag, _ := cmd.Flags().GetString("port"); cmd.Flags().Changed("port") {
		cfg.Port = portFlag
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	noScan, _ := cmd.Flags().GetBool("no-scan")
	a.start(ctx, !noScan)
	if a.worker != nil {
		log.Printf("ingest worker watching %s", cfg.WatchDir)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	a.stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Printf("server exited, dropping %d chunks", a.store.Len())
	return nil
}

// NoOpEmbedder stands in for the provider when no API key is configured.
type NoOpEmbedder struct{}

func (NoOpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, openai.ErrNoAPIKey
}

func (NoOpEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, openai.ErrNoAPIKey
}
