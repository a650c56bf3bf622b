package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrFileNotFound is returned when a requested file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidPath is returned when a path is invalid or contains path traversal.
	ErrInvalidPath = errors.New("invalid path")
)

// LocalStorage implements BlobStorage on a directory of the local filesystem.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: base directory cannot be empty", ErrInvalidPath)
	}
	baseDir = filepath.Clean(baseDir)
	if baseDir == "." {
		return nil, fmt.Errorf("%w: base directory cannot be the working directory", ErrInvalidPath)
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (s *LocalStorage) BaseDir() string {
	return s.baseDir
}

// Upload writes the reader to path, replacing any existing file.
func (s *LocalStorage) Upload(ctx context.Context, path string, reader io.Reader) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Download opens the file at path.
func (s *LocalStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes the file at path.
func (s *LocalStorage) Delete(ctx context.Context, path string) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrFileNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// Exists checks if a regular file exists at path.
func (s *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}

	return !info.IsDir(), nil
}

// GetURL returns the filesystem path of an existing file.
func (s *LocalStorage) GetURL(ctx context.Context, path string) (string, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return "", err
	}

	exists, err := s.Exists(ctx, path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrFileNotFound
	}

	return fullPath, nil
}

// List walks the base directory and returns slash-separated keys matching prefix.
func (s *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, p)
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
		return nil, fmt.Errorf("failed to list %s: %w", s.baseDir, err)
	}

	sort.Strings(keys)
	return keys, nil
}

// resolve joins path with the base directory and rejects anything that escapes it.
func (s *LocalStorage) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: path cannot be empty", ErrInvalidPath)
	}

	fullPath := filepath.Join(s.baseDir, filepath.Clean(path))

	relPath, err := filepath.Rel(s.baseDir, fullPath)
	if err != nil || relPath == "." || strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("%w: path traversal detected", ErrInvalidPath)
	}

	return fullPath, nil
}
