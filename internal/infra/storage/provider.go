// internal/infra/storage/provider.go
package storage

import (
	"context"
	"errors"
	"time"
)

// FileInfo describes one file returned by List or Stat.
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// ErrNotWritable is returned by CheckWritable when a directory rejects writes.
var ErrNotWritable = errors.New("directory not writable")

// IAssetStore is the file system seen by the pipeline. Writes are atomic:
// a reader observes either the old or the new content, never a mix.
type IAssetStore interface {
	// Read returns the full content of a file.
	Read(ctx context.Context, path string) ([]byte, error)
	// WriteAtomic replaces path with data through a temporary file in the
	// same directory, synced before the rename.
	WriteAtomic(ctx context.Context, path string, data []byte) error
	// Remove deletes a file. A missing file is not an error.
	Remove(ctx context.Context, path string) error
	// IsExist reports whether path exists.
	IsExist(ctx context.Context, path string) (bool, error)
	// Stat returns information about a file.
	Stat(ctx context.Context, path string) (FileInfo, error)
	// List walks dir recursively and returns its regular files in lexical
	// order.
	List(ctx context.Context, dir string) ([]FileInfo, error)
	// CheckWritable checks that new files can be created in dir.
	CheckWritable(ctx context.Context, dir string) error
}
