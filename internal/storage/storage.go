// Package storage persists combined results. It defines the Storage port and
// implementations for local disk and S3-compatible object stores.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when no object exists under a key.
	ErrNotFound = errors.New("storage: object not found")
	// ErrInvalidKey is returned for empty keys or keys that escape the store.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Location describes where a stored object can be found.
type Location struct {
	// Key is the store-relative object key.
	Key string `json:"key"`
	// Path is the local file path, set by LocalStorage.
	Path string `json:"path,omitempty"`
	// URL is the public object URL, set by S3Storage.
	URL string `json:"url,omitempty"`
	// Size is the number of bytes written.
	Size int64 `json:"size"`
}

// Storage persists results under slash-separated keys.
type Storage interface {
	// Save writes data under key, replacing any existing object.
	Save(ctx context.Context, key string, data io.Reader) (Location, error)

	// Open returns a reader for the object under key.
	// The caller is responsible for closing the returned ReadCloser.
	// Returns ErrNotFound if the object does not exist.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object under key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// cleanKey normalises key and rejects keys that are empty, absolute or
// reach outside the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
		return nil
	}
}
