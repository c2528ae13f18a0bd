package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/workbench/pkg/observability"
)

const backendS3 = "s3"

var tracer = otel.Tracer("github.com/platinummonkey/workbench/pkg/storage")

// s3API is the subset of *s3.Client used by S3Store
type s3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store implements BlobStore on S3 or an S3-compatible service such as MinIO
type S3Store struct {
	client  s3API
	bucket  string
	metrics *observability.Metrics
}

// NewS3Store creates an S3 store and makes sure the bucket exists
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	var awsConfig aws.Config
	var err error
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		// Static credentials for MinIO or explicit keys
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.S3Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKey,
				cfg.S3SecretKey,
				"",
			)),
		)
	} else {
		awsConfig, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.S3Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		if cfg.S3UsePathStyle {
			o.UsePathStyle = true
		}
	})

	if err := createBucketIfNotExists(ctx, client, cfg.S3Bucket); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return &S3Store{client: client, bucket: cfg.S3Bucket}, nil
}

// WithMetrics records every operation in metrics
func (c *S3Store) WithMetrics(metrics *observability.Metrics) *S3Store {
	c.metrics = metrics
	return c
}

func (c *S3Store) startSpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "S3."+operation,
		trace.WithAttributes(
			attribute.String("s3.operation", operation),
			attribute.String("s3.bucket", c.bucket),
			attribute.String("s3.key", key),
		),
	)
}

func fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return fmt.Errorf("%s: %w", msg, err)
}

// Put implements BlobWriter.Put. Uploads are bounded by the configured
// upload limit, so the body is buffered to compute the checksum first.
func (c *S3Store) Put(ctx context.Context, key string, content io.Reader, contentType string) (info *BlobInfo, err error) {
	defer func(start time.Time) { c.metrics.RecordStorage("put", backendS3, start, err) }(time.Now())
	if err := ValidKey(key); err != nil {
		return nil, err
	}

	ctx, span := c.startSpan(ctx, "PutObject", key)
	defer span.End()
	span.SetAttributes(attribute.String("content.type", contentType))

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fail(span, err, "failed to read content")
	}
	span.SetAttributes(attribute.Int("content.size", len(data)))

	hash := sha256.Sum256(data)
	checksum := hex.EncodeToString(hash[:])

	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"checksum-sha256": checksum,
		},
	})
	if err != nil {
		return nil, fail(span, err, "failed to upload to s3")
	}

	span.SetStatus(codes.Ok, "object uploaded")
	return &BlobInfo{Key: key, Size: int64(len(data)), Checksum: checksum, ContentType: contentType}, nil
}

// Get implements BlobReader.Get
func (c *S3Store) Get(ctx context.Context, key string) (rc io.ReadCloser, err error) {
	defer func(start time.Time) { c.metrics.RecordStorage("get", backendS3, start, err) }(time.Now())

	ctx, span := c.startSpan(ctx, "GetObject", key)
	defer span.End()

	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			span.SetStatus(codes.Ok, "object not found")
			return nil, ErrBlobNotFound
		}
		return nil, fail(span, err, "failed to get object from s3")
	}

	if result.ContentLength != nil {
		span.SetAttributes(attribute.Int64("content.size", *result.ContentLength))
	}
	span.SetStatus(codes.Ok, "object retrieved")
	return result.Body, nil
}

// Exists implements BlobReader.Exists
func (c *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

// List implements BlobReader.List
func (c *S3Store) List(ctx context.Context, prefix string) (keys []string, err error) {
	defer func(start time.Time) { c.metrics.RecordStorage("list", backendS3, start, err) }(time.Now())

	ctx, span := c.startSpan(ctx, "ListObjectsV2", prefix)
	defer span.End()

	keys = []string{}
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fail(span, err, "failed to list objects")
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	span.SetAttributes(attribute.Int("s3.objects", len(keys)))
	return keys, nil
}

// Delete implements BlobWriter.Delete
func (c *S3Store) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { c.metrics.RecordStorage("delete", backendS3, start, err) }(time.Now())

	ctx, span := c.startSpan(ctx, "DeleteObject", key)
	defer span.End()

	_, err = c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fail(span, err, "failed to delete object")
	}
	return nil
}

// HealthCheck verifies S3 connectivity
func (c *S3Store) HealthCheck(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

func createBucketIfNotExists(ctx context.Context, client *s3.Client, bucket string) error {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil && !isBucketAlreadyExistsError(err) {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	return err != nil && (strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey"))
}

func isBucketAlreadyExistsError(err error) bool {
	var exists *s3types.BucketAlreadyExists
	var owned *s3types.BucketAlreadyOwnedByYou
	if errors.As(err, &exists) || errors.As(err, &owned) {
		return true
	}
	return err != nil && (strings.Contains(err.Error(), "BucketAlreadyExists") || strings.Contains(err.Error(), "BucketAlreadyOwnedByYou"))
}
