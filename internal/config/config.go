package config

import (
	"fmt"
	"time"

	"github.com/cloo-solutions/deskrag/internal/chunker"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "DESKRAG"

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	OpenAIAPIKey        string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingBatchSize  int           `envconfig:"EMBEDDING_BATCH_SIZE" default:"64"`
	EmbeddingTimeout    time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	EmbeddingRPS        float64       `envconfig:"EMBEDDING_RPS" default:"0"`
	// ChatModel drafts answers on /query; empty disables answer drafting.
	ChatModel string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	ChunkSize      int   `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap   int   `envconfig:"CHUNK_OVERLAP" default:"200"`
	ChunkMinChars  int   `envconfig:"CHUNK_MIN_CHARS" default:"400"`
	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`

	DefaultTopK   int     `envconfig:"DEFAULT_TOP_K" default:"5"`
	MinSimilarity float64 `envconfig:"MIN_SIMILARITY" default:"0"`

	PDFExtractorURL     string        `envconfig:"PDF_EXTRACTOR_URL"`
	PDFExtractorTimeout time.Duration `envconfig:"PDF_EXTRACTOR_TIMEOUT" default:"60s"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"deskrag-uploads"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// S3LinkExpiry bounds the presigned download links returned for uploads.
	S3LinkExpiry time.Duration `envconfig:"S3_LINK_EXPIRY" default:"1h"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// WatchDir enables drop-folder ingestion when set.
	WatchDir          string        `envconfig:"WATCH_DIR"`
	WatchPollInterval time.Duration `envconfig:"WATCH_POLL_INTERVAL" default:"2s"`

	// WatchSettleDelay is how long a dropped file must stop changing before
	// it is ingested.
	WatchSettleDelay time.Duration `envconfig:"WATCH_SETTLE_DELAY" default:"1s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if err := c.Chunking().Validate(); err != nil {
		return fmt.Errorf("invalid chunking config: %w", err)
	}
	if c.EmbeddingDimensions < 0 {
		return fmt.Errorf("embedding dimensions must not be negative, got %d", c.EmbeddingDimensions)
	}
	if c.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive, got %d", c.EmbeddingBatchSize)
	}
	if c.DefaultTopK <= 0 {
		return fmt.Errorf("default top-k must be positive, got %d", c.DefaultTopK)
	}
	if c.MinSimilarity < -1 || c.MinSimilarity > 1 {
		return fmt.Errorf("min similarity must be in [-1, 1], got %g", c.MinSimilarity)
	}
	return nil
}

// Chunking returns the chunker settings.
func (c *Config) Chunking() chunker.Config {
	return chunker.Config{
		ChunkSize:      c.ChunkSize,
		MinChars:       c.ChunkMinChars,
		Overlap:        c.ChunkOverlap,
		MaxUploadBytes: c.MaxUploadBytes,
	}
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasPDFExtractor() bool {
	return c.PDFExtractorURL != ""
}

func (c *Config) HasWatchDir() bool {
	return c.WatchDir != ""
}
