package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FSStore keeps images as files in one directory.
type FSStore struct {
	dir string
}

// NewFSStore creates the directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

// Put writes data to {dir}/{key}{ext} and returns the file path.
func (s *FSStore) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	p := filepath.Join(s.dir, objectName(key, contentType))

	tmp, err := os.CreateTemp(s.dir, ".img-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write image %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close image %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return "", fmt.Errorf("failed to store image %s: %w", key, err)
	}
	return p, nil
}

// Get reads the image stored under key.
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, ok, err := s.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether an image is stored under key and returns its path.
func (s *FSStore) Exists(_ context.Context, key string) (string, bool, error) {
	if err := validKey(key); err != nil {
		return "", false, err
	}
	for _, ext := range knownExtensions {
		p := filepath.Join(s.dir, key+ext)
		_, err := os.Stat(p)
		if err == nil {
			return p, true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat image %s: %w", key, err)
		}
	}
	return "", false, nil
}

func validKey(key string) error {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return fmt.Errorf("invalid image key %q", key)
	}
	return nil
}
