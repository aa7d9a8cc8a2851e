// Package workspace provides call-scoped staging directories.
//
// A Workspace is a uniquely named directory owned by exactly one operation.
// The owner acquires it, stages files inside it and releases it on every exit
// path; Release removes the directory and everything in it.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ErrReleased is returned when a released workspace is used.
var ErrReleased = errors.New("workspace already released")

// ErrInvalidName is returned for file names that would escape the workspace.
var ErrInvalidName = errors.New("invalid workspace file name")

// Workspace is a private temporary directory for a single operation.
type Workspace struct {
	mu       sync.Mutex
	dir      string
	released bool
}

// Acquire creates a new workspace directory under root. The directory name
// starts with prefix and carries a random suffix. If root is empty,
// os.TempDir() is used. root is created if it does not exist.
func Acquire(root, prefix string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if prefix == "" {
		prefix = "workspace"
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	dir, err := os.MkdirTemp(root, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns the absolute path of name inside the workspace. It does not
// create the file.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Write stores data as name inside the workspace and returns its path.
// A partially written file is removed before returning an error.
func (w *Workspace) Write(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := w.check(ctx, name); err != nil {
		return "", err
	}

	path := w.Path(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600) // #nosec G304 - name is validated above
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write %s: %w", name, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close %s: %w", name, err)
	}

	return path, nil
}

// Read returns the content of name inside the workspace.
func (w *Workspace) Read(ctx context.Context, name string) ([]byte, error) {
	if err := w.check(ctx, name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(w.Path(name)) // #nosec G304 - name is validated above
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Release removes the workspace directory and everything in it.
// It is safe to call more than once and on a nil Workspace.
func (w *Workspace) Release() error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return nil
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.dir, err)
	}
	w.released = true
	return nil
}

// check verifies the workspace is usable and name stays inside it.
func (w *Workspace) check(ctx context.Context, name string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	w.mu.Lock()
	released := w.released
	w.mu.Unlock()
	if released {
		return ErrReleased
	}

	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
