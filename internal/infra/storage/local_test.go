package storage

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.webp")

	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))
	require.NoError(t, store.WriteAtomic(ctx, path, []byte("new content")))

	got, err := store.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestWriteAtomicNewFile(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore()
	path := filepath.Join(t.TempDir(), "fresh.png")

	require.NoError(t, store.WriteAtomic(ctx, path, []byte{1, 2, 3}))
	ok, err := store.IsExist(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)

	info, err := store.Stat(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size)
	assert.Equal(t, "fresh.png", info.Name)
}

func TestWriteAtomicCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := filepath.Join(t.TempDir(), "x.webp")
	assert.ErrorIs(t, NewLocalStore().WriteAtomic(ctx, path, []byte("x")), context.Canceled)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestListSkipsHiddenDirectories(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	for _, rel := range []string{"b.webp", "sub/a.png", ".git/objects/blob", "sub/.cache/c.webp"} {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	files, err := NewLocalStore().List(ctx, root)
	require.NoError(t, err)
	var got []string
	for _, f := range files {
		rel, err := filepath.Rel(root, f.Path)
		require.NoError(t, err)
		got = append(got, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"b.webp", "sub/a.png"}, got)
}

func TestRemoveMissingFile(t *testing.T) {
	assert.NoError(t, NewLocalStore().Remove(context.Background(), filepath.Join(t.TempDir(), "nope")))
}

func TestCheckWritable(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore()
	assert.NoError(t, store.CheckWritable(ctx, t.TempDir()))
	assert.ErrorIs(t, store.CheckWritable(ctx, filepath.Join(t.TempDir(), "missing")), ErrNotWritable)

	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	ro := t.TempDir()
	require.NoError(t, os.Chmod(ro, 0o555))
	t.Cleanup(func() { os.Chmod(ro, 0o755) })
	assert.ErrorIs(t, store.CheckWritable(ctx, ro), ErrNotWritable)
}
