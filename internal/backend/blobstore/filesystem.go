package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStore persists blobs under a root directory, one file per key.
// Retrieval URLs point at the service's own blob download route, so the
// store is self-contained without an external object storage provider.
type FilesystemStore struct {
	directory string
	baseURL   string
}

func NewFilesystemStore(directory, baseURL string) (*FilesystemStore, error) {
	if directory == "" {
		return nil, errors.New("blob store directory must not be empty")
	}
	if baseURL == "" {
		return nil, errors.New("blob store base URL must not be empty")
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory %s: %w", directory, err)
	}
	return &FilesystemStore{
		directory: directory,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (s *FilesystemStore) Put(ctx context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create blob subdirectory: %w", err)
	}

	// Write to a temp file and rename so a crashed write never leaves a
	// half-written blob behind a valid key.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *FilesystemStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *FilesystemStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *FilesystemStore) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrBlobNotFound
		}
		return err
	}
	// Best effort removal of the now empty per-image directory.
	_ = os.Remove(filepath.Dir(path))
	return nil
}

func (s *FilesystemStore) URL(ctx context.Context, key string) (string, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrBlobNotFound
	}
	return blobURL(s.baseURL, key), nil
}

// path maps a key to a file below the root directory, rejecting keys that
// would escape it.
func (s *FilesystemStore) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key: %q", key)
	}
	return filepath.Join(s.directory, filepath.FromSlash(key)), nil
}

func blobURL(baseURL, key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return baseURL + "/v1/blobs/" + strings.Join(segments, "/")
}
