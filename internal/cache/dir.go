package cache

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/creachadair/atomicfile"
)

// Dir is a Cache that keeps one file per entry in a root directory:
//
//	<root>/<sha1-hex(key)>    # raw value, no header or metadata
//
// Operations are not synchronized; concurrent writers of one key race and the last
// write wins. Writes replace the file atomically so readers never see a partial value.
type Dir struct {
	root string
}

// Compile-time check to ensure Dir implements Cache
var _ Cache = (*Dir)(nil)

// NewDir creates a Dir rooted at root, creating the directory with 0700 permissions
// if it doesn't exist.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("cache directory required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving cache directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	return &Dir{root: abs}, nil
}

// DefaultDir returns the per-user cache directory for otterbox
// ($XDG_CACHE_HOME/otterbox, ~/Library/Caches/otterbox, %LocalAppData%\otterbox).
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine cache directory: %w", err)
	}
	return filepath.Join(base, "otterbox"), nil
}

// Root returns the absolute cache directory.
func (d *Dir) Root() string {
	return d.root
}

// Path returns the file backing key.
func (d *Dir) Path(key string) string {
	return filepath.Join(d.root, Key(key))
}

// Set writes value to the entry file, replacing previous content.
func (d *Dir) Set(ctx context.Context, key string, value []byte) {
	if ctx.Err() != nil {
		return
	}

	path := d.Path(key)
	if _, err := atomicfile.WriteAll(path, bytes.NewReader(value), 0o600); err != nil {
		slog.WarnContext(ctx, "cache write failed", "key", key, "path", path, "error", err)
		return
	}
	slog.DebugContext(ctx, "cache write", "key", key, "path", path, "bytes", len(value))
}

// Get opens the entry file for buffered reading.
func (d *Dir) Get(ctx context.Context, key string) (io.ReadCloser, bool) {
	if ctx.Err() != nil {
		return nil, false
	}

	path := d.Path(key)
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.WarnContext(ctx, "cache read failed", "key", key, "path", path, "error", err)
		}
		return nil, false
	}

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, false
	}

	return &entryReader{Reader: bufio.NewReader(f), file: f}, true
}

// Delete removes the entry file if present.
func (d *Dir) Delete(ctx context.Context, key string) {
	if ctx.Err() != nil {
		return
	}

	path := d.Path(key)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.WarnContext(ctx, "cache delete failed", "key", key, "path", path, "error", err)
	}
}

// Stats describes the cache contents.
type Stats struct {
	Dir        string `json:"dir"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"totalBytes"`
}

// Stats counts entries and their total size. Files that are not cache entries are ignored.
func (d *Dir) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Dir: d.root}

	entries, err := os.ReadDir(d.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("reading cache directory: %w", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !e.Type().IsRegular() || !isKey(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.Entries++
		stats.TotalBytes += info.Size()
	}
	return stats, nil
}

// Clear removes every entry and returns how many were removed.
func (d *Dir) Clear(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}

	var removed int
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !e.Type().IsRegular() || !isKey(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(d.root, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// entryReader closes the underlying file of a buffered entry reader.
type entryReader struct {
	*bufio.Reader
	file *os.File
}

func (r *entryReader) Close() error {
	return r.file.Close()
}
