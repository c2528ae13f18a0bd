package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/workbench/pkg/observability"
)

// Blob key prefixes. Every stored object lives under one of them.
const (
	PrefixDocuments = "documents/"
	PrefixModels    = "models/"
)

// ErrBlobNotFound is returned when a key has no stored object
var ErrBlobNotFound = errors.New("blob not found")

// BlobInfo describes a stored object
type BlobInfo struct {
	Key         string
	Size        int64
	Checksum    string
	ContentType string
}

// BlobReader reads stored objects
type BlobReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// BlobWriter writes and removes stored objects
type BlobWriter interface {
	Put(ctx context.Context, key string, content io.Reader, contentType string) (*BlobInfo, error)
	Delete(ctx context.Context, key string) error
}

// BlobStore is the object storage used for documents and 3D models
type BlobStore interface {
	BlobReader
	BlobWriter
	HealthCheck(ctx context.Context) error
}

// Config holds blob storage configuration
type Config struct {
	Type string `yaml:"type"` // "filesystem" or "s3"

	FilesystemRoot string `yaml:"filesystem_root"`

	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`

	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// DatabaseConfig holds the Postgres pool configuration
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	Migrate     bool          `yaml:"migrate"`
}

// RedisConfig holds the optional Redis configuration. An empty URL disables Redis.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// NewBlobStore opens the backend selected by cfg.Type
func NewBlobStore(ctx context.Context, cfg Config, metrics *observability.Metrics) (BlobStore, error) {
	switch cfg.Type {
	case "", "filesystem":
		store, err := NewFilesystemStore(cfg.FilesystemRoot)
		if err != nil {
			return nil, err
		}
		return store.WithMetrics(metrics), nil
	case "s3":
		store, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store.WithMetrics(metrics), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}

// NewKey returns a fresh key under prefix. The original file extension is
// kept so downloads keep a useful name.
func NewKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))
	if len(ext) > 16 || strings.ContainsAny(ext, " /") {
		ext = ""
	}
	return prefix + uuid.NewString() + ext
}

// ValidKey rejects keys that could escape the storage root
func ValidKey(key string) error {
	if key == "" {
		return errors.New("empty blob key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return fmt.Errorf("invalid blob key %q", key)
		}
	}
	return nil
}
