package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/workbench/pkg/observability"
)

const backendFilesystem = "filesystem"

// FilesystemStore implements BlobStore on the local filesystem
type FilesystemStore struct {
	rootDir string
	metrics *observability.Metrics
}

// NewFilesystemStore creates a filesystem-backed blob store rooted at rootDir
func NewFilesystemStore(rootDir string) (*FilesystemStore, error) {
	if rootDir == "" {
		return nil, errors.New("filesystem root is required")
	}
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FilesystemStore{rootDir: rootDir}, nil
}

// WithMetrics records every operation in metrics
func (s *FilesystemStore) WithMetrics(metrics *observability.Metrics) *FilesystemStore {
	s.metrics = metrics
	return s
}

func (s *FilesystemStore) path(key string) (string, error) {
	if err := ValidKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.rootDir, filepath.FromSlash(key)), nil
}

// Put implements BlobWriter.Put. The object is written to a temporary file and
// renamed into place so readers never see a partial blob.
func (s *FilesystemStore) Put(ctx context.Context, key string, content io.Reader, contentType string) (info *BlobInfo, err error) {
	defer func(start time.Time) { s.metrics.RecordStorage("put", backendFilesystem, start, err) }(time.Now())

	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), &contextReader{ctx: ctx, r: content})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return nil, fmt.Errorf("failed to set blob permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}

	return &BlobInfo{
		Key:         key,
		Size:        size,
		Checksum:    hex.EncodeToString(hash.Sum(nil)),
		ContentType: contentType,
	}, nil
}

// Get implements BlobReader.Get
func (s *FilesystemStore) Get(ctx context.Context, key string) (rc io.ReadCloser, err error) {
	defer func(start time.Time) { s.metrics.RecordStorage("get", backendFilesystem, start, err) }(time.Now())

	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Exists implements BlobReader.Exists
func (s *FilesystemStore) Exists(ctx context.Context, key string) (bool, error) {
	target, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat blob: %w", err)
	}
	return true, nil
}

// List implements BlobReader.List. Keys are returned sorted.
func (s *FilesystemStore) List(ctx context.Context, prefix string) (keys []string, err error) {
	defer func(start time.Time) { s.metrics.RecordStorage("list", backendFilesystem, start, err) }(time.Now())

	keys = []string{}
	err = filepath.WalkDir(s.rootDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.rootDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete implements BlobWriter.Delete. Deleting a missing key is not an error.
func (s *FilesystemStore) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { s.metrics.RecordStorage("delete", backendFilesystem, start, err) }(time.Now())

	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// HealthCheck verifies the root directory is reachable
func (s *FilesystemStore) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.rootDir)
	if err != nil {
		return fmt.Errorf("storage root unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", s.rootDir)
	}
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
