// Package storage provides object storage for uploaded sources and generated
// previews. It defines the Storage interface (port) and implementations for
// local disk, S3 and MinIO.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// Static errors for storage operations.
var (
	// ErrNotFound is returned when no object exists under the key.
	ErrNotFound = errors.New("storage: object not found")
	// ErrInvalidKey is returned for empty keys or keys that escape the root.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Storage stores objects under slash-separated keys.
type Storage interface {
	// Put stores data under key and returns a URL the object can be fetched from.
	// size may be -1 when unknown.
	Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) (url string, err error)

	// Get opens the object stored under key along with its content type.
	// The caller is responsible for closing the returned ReadCloser.
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// Signer is implemented by backends that can issue time-limited download URLs.
type Signer interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// DefaultContentType is used when an object has no recorded type.
const DefaultContentType = "application/octet-stream"

// CleanKey normalizes key and rejects keys that are empty or leave the root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := path.Clean("/" + key)
	if cleaned == "/" {
		return "", ErrInvalidKey
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}
