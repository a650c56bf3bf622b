package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// BlobStorage stores screenshots, baselines and reports under slash-separated keys.
type BlobStorage interface {
	// Upload stores data from the reader at the specified path.
	Upload(ctx context.Context, path string, reader io.Reader) error

	// Download retrieves data from the specified path.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the data at the specified path.
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the specified path.
	Exists(ctx context.Context, path string) (bool, error)

	// GetURL returns a location the data can be opened from.
	// Local storage returns the filesystem path, S3 a presigned URL.
	GetURL(ctx context.Context, path string) (string, error)

	// List returns every key starting with prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config selects and configures a BlobStorage backend.
type Config struct {
	Type    string // local or s3
	BaseDir string // local: root directory

	Bucket        string // s3
	Region        string // s3
	Prefix        string // s3: key prefix, e.g. "screenshots/baseline"
	Endpoint      string // s3: custom endpoint for S3 compatible stores
	PresignExpiry time.Duration
}

// New creates a BlobStorage implementation based on configuration.
func New(ctx context.Context, cfg Config) (BlobStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "local":
		if cfg.BaseDir == "" {
			return nil, fmt.Errorf("base dir is required for local storage")
		}
		return NewLocalStorage(cfg.BaseDir)

	case "s3":
		s3Storage, err := NewS3Storage(ctx, S3Options{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Prefix:   cfg.Prefix,
			Endpoint: cfg.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		if cfg.PresignExpiry > 0 {
			s3Storage.presignExpiration = cfg.PresignExpiry
		}
		return s3Storage, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// ReadAll downloads the object at path into memory.
func ReadAll(ctx context.Context, store BlobStorage, path string) ([]byte, error) {
	rc, err := store.Download(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Copy copies the object at srcPath in src to dstPath in dst.
func Copy(ctx context.Context, src BlobStorage, srcPath string, dst BlobStorage, dstPath string) error {
	data, err := ReadAll(ctx, src, srcPath)
	if err != nil {
		return err
	}
	return dst.Upload(ctx, dstPath, bytes.NewReader(data))
}
