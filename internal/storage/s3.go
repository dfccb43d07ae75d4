// Package storage archives original uploads in S3-compatible object storage.
// Chunks and embeddings never go here; only the files users sent.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// DefaultLinkExpiry is how long an archive download link stays valid.
const DefaultLinkExpiry = time.Hour

// Options configure an Archive. Endpoint is empty for AWS itself and set for
// MinIO or RustFS, which also need UsePathStyle.
type Options struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
	LinkExpiry      time.Duration
}

// Archive writes uploads to one bucket and hands out presigned links to them.
type Archive struct {
	api        *s3.Client
	presign    *s3.PresignClient
	bucket     string
	linkExpiry time.Duration
}

// New builds an Archive from static credentials. It does not contact the
// server; call EnsureBucket for that.
func New(ctx context.Context, opts Options) (*Archive, error) {
	if opts.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
		// S3-compatible servers do not all accept the newer default checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	expiry := opts.LinkExpiry
	if expiry <= 0 {
		expiry = DefaultLinkExpiry
	}

	return &Archive{
		api:        api,
		presign:    s3.NewPresignClient(api),
		bucket:     opts.Bucket,
		linkExpiry: expiry,
	}, nil
}

// Bucket returns the archive bucket name.
func (a *Archive) Bucket() string {
	return a.bucket
}

// Put stores data under key. An empty contentType is sent as
// application/octet-stream.
func (a *Archive) Put(ctx context.Context, key, contentType string, data []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}
	return nil
}

// Link returns a presigned GET URL for key, valid for the configured expiry.
func (a *Archive) Link(ctx context.Context, key string) (string, error) {
	req, err := a.presign.PresignGetObject(ctx,
		&s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)},
		s3.WithPresignExpires(a.linkExpiry),
	)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

// EnsureBucket creates the bucket when HeadBucket reports it missing. Other
// HeadBucket failures, such as bad credentials, are returned as is.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	_, err := a.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}

	if _, err := a.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	return nil
}
