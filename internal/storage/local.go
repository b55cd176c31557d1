package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// contentTypeSuffix names the sidecar file that records an object's content type.
const contentTypeSuffix = ".content-type"

// LocalStorage implements Storage on the local disk. Objects are served by
// the API under baseURL.
type LocalStorage struct {
	rootDir string
	baseURL string
}

// NewLocalStorage creates a new LocalStorage instance.
// If rootDir is empty, a "beatstore" directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(rootDir, baseURL string) (*LocalStorage, error) {
	if rootDir == "" {
		rootDir = filepath.Join(os.TempDir(), "beatstore")
	}
	if baseURL == "" {
		baseURL = "/files"
	}

	if err := os.MkdirAll(rootDir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &LocalStorage{rootDir: rootDir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// RootDir returns the storage root directory.
func (s *LocalStorage) RootDir() string {
	return s.rootDir
}

func (s *LocalStorage) path(key string) (string, string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(s.rootDir, filepath.FromSlash(cleaned)), nil
}

// Put writes data to a temporary file and renames it into place.
func (s *LocalStorage) Put(ctx context.Context, key string, data io.Reader, _ int64, contentType string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	cleaned, p, err := s.path(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(p), ".upload_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	tmpName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write object: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close object: %w", err)
	}

	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename object: %w", err)
	}

	if contentType != "" {
		if err := os.WriteFile(p+contentTypeSuffix, []byte(contentType), 0600); err != nil {
			return "", fmt.Errorf("write content type: %w", err)
		}
	}

	return s.baseURL + "/" + cleaned, nil
}

// Get opens the object. When no content type was recorded it is sniffed.
func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	_, p, err := s.path(key)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(p) // #nosec G304 - path is confined to rootDir by CleanKey
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, "", fmt.Errorf("open object: %w", err)
	}

	contentType := DefaultContentType
	if b, err := os.ReadFile(p + contentTypeSuffix); err == nil { // #nosec G304
		contentType = strings.TrimSpace(string(b))
	} else if mime, err := mimetype.DetectFile(p); err == nil {
		contentType = mime.String()
	}

	return f, contentType, nil
}

// Delete removes the object and its content type record.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	_, p, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	if err := os.Remove(p + contentTypeSuffix); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove content type %s: %w", key, err)
	}
	return nil
}

// Verify interface implementation at compile time.
var _ Storage = (*LocalStorage)(nil)
