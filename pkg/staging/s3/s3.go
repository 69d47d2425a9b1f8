// Package s3 implements the staging.Store port on an S3 bucket, including
// S3-compatible services like MinIO via a custom endpoint.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/staging"
)

// Ensure Store implements the staging.Store interface.
var _ staging.Store = (*Store)(nil)

// Store is an S3-backed staging store scoped to one bucket.
type Store struct {
	client   *awss3.Client
	uploader *manager.Uploader
	bucket   string
}

// config collects the optional connection settings.
type config struct {
	region    string
	endpoint  string
	accessKey string
	secretKey string
}

// Option customizes the S3 connection.
type Option func(*config)

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(c *config) { c.region = region }
}

// WithEndpoint points the client at an S3-compatible service and switches
// to path-style addressing, as MinIO requires.
func WithEndpoint(endpoint string) Option {
	return func(c *config) { c.endpoint = endpoint }
}

// WithStaticCredentials bypasses the default AWS credential chain.
func WithStaticCredentials(accessKey, secretKey string) Option {
	return func(c *config) {
		c.accessKey = accessKey
		c.secretKey = secretKey
	}
}

// New builds a Store against bucket. Without options the default AWS
// credential and region chain applies.
func New(ctx context.Context, bucket string, opts ...Option) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 staging: bucket must not be empty")
	}
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.region))
	}
	if cfg.accessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.accessKey, cfg.secretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 staging: load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.endpoint)
			o.UsePathStyle = true
		}
	})
	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}, nil
}

// Store implements staging.Store. Uploads go through the multipart-capable
// uploader so large media files stream without buffering fully in memory.
func (s *Store) Store(ctx context.Context, path domain.StoragePath, r io.Reader, contentLength int64) (int64, error) {
	counting := &countingReader{r: r}
	input := &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path.String()),
		Body:   counting,
	}
	if contentLength >= 0 {
		input.ContentLength = aws.Int64(contentLength)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return 0, fmt.Errorf("s3 staging: upload %s: %w", path, err)
	}
	return counting.n, nil
}

// Fetch implements staging.Store.
func (s *Store) Fetch(ctx context.Context, path domain.StoragePath) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path.String()),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", staging.ErrNotFound, path)
		}
		return nil, fmt.Errorf("s3 staging: get %s: %w", path, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if out.ContentLength != nil && *out.ContentLength > 0 {
		buf.Grow(int(*out.ContentLength))
	}
	if _, err := io.Copy(&buf, out.Body); err != nil {
		return nil, fmt.Errorf("s3 staging: read %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

// Delete implements staging.Store. S3 deletes are idempotent, so a missing
// object is only detected via a preceding Head.
func (s *Store) Delete(ctx context.Context, path domain.StoragePath) error {
	if _, err := s.Head(ctx, path); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path.String()),
	})
	if err != nil {
		return fmt.Errorf("s3 staging: delete %s: %w", path, err)
	}
	return nil
}

// Head implements staging.Store.
func (s *Store) Head(ctx context.Context, path domain.StoragePath) (int64, error) {
	out, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path.String()),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, fmt.Errorf("%w: %s", staging.ErrNotFound, path)
		}
		return 0, fmt.Errorf("s3 staging: head %s: %w", path, err)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

// countingReader tracks how many bytes the uploader consumed.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
