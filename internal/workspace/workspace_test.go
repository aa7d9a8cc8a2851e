package workspace

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire(t *testing.T) {
	t.Run("creates unique directories under root", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "root")

		a, err := Acquire(root, "combine")
		require.NoError(t, err)
		defer func() { _ = a.Release() }()

		b, err := Acquire(root, "combine")
		require.NoError(t, err)
		defer func() { _ = b.Release() }()

		assert.NotEqual(t, a.Dir(), b.Dir())
		assert.Equal(t, root, filepath.Dir(a.Dir()))
		assert.True(t, strings.HasPrefix(filepath.Base(a.Dir()), "combine-"))

		info, err := os.Stat(a.Dir())
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("uses os temp dir when root is empty", func(t *testing.T) {
		ws, err := Acquire("", "")
		require.NoError(t, err)
		defer func() { _ = ws.Release() }()

		assert.Equal(t, filepath.Clean(os.TempDir()), filepath.Dir(ws.Dir()))
		assert.True(t, strings.HasPrefix(filepath.Base(ws.Dir()), "workspace-"))
	})

	t.Run("fails when root cannot be created", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

		_, err := Acquire(filepath.Join(file, "sub"), "combine")
		assert.Error(t, err)
	})
}

func TestWorkspace_WriteRead(t *testing.T) {
	ws, err := Acquire(t.TempDir(), "test")
	require.NoError(t, err)
	defer func() { _ = ws.Release() }()
	ctx := context.Background()

	path, err := ws.Write(ctx, "input.mp4", bytes.NewReader([]byte("video bytes")))
	require.NoError(t, err)
	assert.Equal(t, ws.Path("input.mp4"), path)

	data, err := ws.Read(ctx, "input.mp4")
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(data))

	t.Run("does not overwrite an existing file", func(t *testing.T) {
		_, err := ws.Write(ctx, "input.mp4", bytes.NewReader([]byte("other")))
		assert.Error(t, err)
	})

	t.Run("rejects names that escape the directory", func(t *testing.T) {
		for _, name := range []string{"", ".", "..", "../x", "a/b"} {
			_, err := ws.Write(ctx, name, bytes.NewReader(nil))
			assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
		}
	})

	t.Run("read of a missing file fails", func(t *testing.T) {
		_, err := ws.Read(ctx, "output.mp4")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := ws.Write(cctx, "late.mp4", bytes.NewReader([]byte("x")))
		assert.ErrorIs(t, err, context.Canceled)
		_, err = ws.Read(cctx, "input.mp4")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestWorkspace_WriteFailureRemovesPartialFile(t *testing.T) {
	ws, err := Acquire(t.TempDir(), "test")
	require.NoError(t, err)
	defer func() { _ = ws.Release() }()

	_, err = ws.Write(context.Background(), "partial.bin", failingReader{})
	require.Error(t, err)

	_, statErr := os.Stat(ws.Path("partial.bin"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWorkspace_Release(t *testing.T) {
	ws, err := Acquire(t.TempDir(), "test")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ws.Write(ctx, "a.mp4", bytes.NewReader([]byte("a")))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(ws.Dir(), "sub"), 0o750))

	require.NoError(t, ws.Release())
	_, err = os.Stat(ws.Dir())
	assert.True(t, os.IsNotExist(err), "workspace directory should be removed")

	t.Run("release is idempotent", func(t *testing.T) {
		assert.NoError(t, ws.Release())
	})

	t.Run("use after release fails", func(t *testing.T) {
		_, err := ws.Write(ctx, "b.mp4", bytes.NewReader([]byte("b")))
		assert.ErrorIs(t, err, ErrReleased)
		_, err = ws.Read(ctx, "a.mp4")
		assert.ErrorIs(t, err, ErrReleased)
	})

	t.Run("nil workspace", func(t *testing.T) {
		var nilWS *Workspace
		assert.NoError(t, nilWS.Release())
	})
}

func TestWorkspace_ConcurrentAcquire(t *testing.T) {
	root := t.TempDir()
	const n = 20

	var wg sync.WaitGroup
	dirs := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ws, err := Acquire(root, "combine")
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			dirs[i] = ws.Dir()
			_ = ws.Release()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, d := range dirs {
		assert.False(t, seen[d], "duplicate workspace %s", d)
		seen[d] = true
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
