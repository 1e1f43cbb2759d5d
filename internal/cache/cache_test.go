package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
)

func newTestDir(t *testing.T) *Dir {
	t.Helper()
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	return d
}

// readEntry returns the value stored under key and whether it was found.
func readEntry(t *testing.T, c Cache, key string) ([]byte, bool) {
	t.Helper()
	rc, ok := c.Get(context.Background(), key)
	if !ok {
		return nil, false
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading entry %q: %v", key, err)
	}
	return data, true
}

func TestKey_KnownDigests(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{key: "", want: "da39a3ee5e6b4b0d3255bfef95601890afd80709"},
		{key: "abc", want: "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{key: "The quick brown fox jumps over the lazy dog", want: "2fd4e1c67a2d28fced849ee1bb76e7391b93eb12"},
	}
	for _, tt := range tests {
		if got := Key(tt.key); got != tt.want {
			t.Errorf("Key(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestKey_DistinctAndWellFormed(t *testing.T) {
	const n = 10000
	rng := rand.New(rand.NewPCG(1, 2))

	logical := make(map[string]struct{}, n)
	for len(logical) < n {
		b := make([]byte, 1+rng.IntN(64))
		for i := range b {
			b[i] = byte(rng.UintN(256))
		}
		logical[string(b)] = struct{}{}
	}

	physical := make(map[string]struct{}, n)
	for k := range logical {
		p := Key(k)
		if !isKey(p) {
			t.Fatalf("Key(%q) = %q is not 40 lowercase hex characters", k, p)
		}
		if p != Key(k) {
			t.Fatalf("Key(%q) is not deterministic", k)
		}
		physical[p] = struct{}{}
	}
	if len(physical) != n {
		t.Errorf("%d distinct keys produced %d distinct digests", n, len(physical))
	}
}

func TestDir_SetGet(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
	}{
		{name: "text", value: []byte(`{"count": 1, "results": []}`)},
		{name: "empty", value: []byte{}},
		{name: "binary", value: []byte{0x00, 0xff, 0xfe, 0x80, 0x0a, 0x00}},
		{name: "large", value: bytes.Repeat([]byte("0123456789abcdef"), 64*1024)},
	}

	d := newTestDir(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "https://music.example/api/v1/" + tt.name
			d.Set(context.Background(), key, tt.value)

			got, ok := readEntry(t, d, key)
			if !ok {
				t.Fatal("expected cache hit after Set")
			}
			if !bytes.Equal(got, tt.value) {
				t.Errorf("Get returned %d bytes, want %d", len(got), len(tt.value))
			}
		})
	}
}

func TestDir_SetOverwrites(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()

	d.Set(ctx, "k", []byte("a much longer first value"))
	d.Set(ctx, "k", []byte("short"))

	got, ok := readEntry(t, d, "k")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got) != "short" {
		t.Errorf("Get = %q, want %q", got, "short")
	}
}

func TestDir_Layout(t *testing.T) {
	d := newTestDir(t)
	d.Set(context.Background(), "abc", []byte("raw"))

	path := filepath.Join(d.Root(), "a9993e364706816aba3e25717850c26c9cd0d89d")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading entry file: %v", err)
	}
	if string(data) != "raw" {
		t.Errorf("entry file = %q, want raw bytes without header", data)
	}
	if d.Path("abc") != path {
		t.Errorf("Path = %q, want %q", d.Path("abc"), path)
	}
}

func TestDir_Delete(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()

	d.Set(ctx, "k", []byte("v"))
	d.Delete(ctx, "k")
	if _, ok := d.Get(ctx, "k"); ok {
		t.Error("expected miss after Delete")
	}

	// Never-set and repeated deletes are no-ops
	d.Delete(ctx, "never-set")
	d.Delete(ctx, "k")
	if _, ok := d.Get(ctx, "never-set"); ok {
		t.Error("expected miss for never-set key")
	}
}

func TestDir_GetMiss(t *testing.T) {
	d := newTestDir(t)
	if rc, ok := d.Get(context.Background(), "missing"); ok || rc != nil {
		t.Errorf("Get = (%v, %v), want (nil, false)", rc, ok)
	}
}

func TestDir_GetDirectoryIsMiss(t *testing.T) {
	d := newTestDir(t)
	if err := os.Mkdir(d.Path("dir"), 0o700); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Get(context.Background(), "dir"); ok {
		t.Error("expected miss when the entry path is a directory")
	}
}

func TestDir_CancelledContext(t *testing.T) {
	d := newTestDir(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.Set(ctx, "k", []byte("v"))
	if _, ok := d.Get(context.Background(), "k"); ok {
		t.Error("Set with cancelled context must not write")
	}
}

func TestDir_StatsAndClear(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()

	for i := range 3 {
		d.Set(ctx, fmt.Sprintf("key-%d", i), []byte("12345"))
	}
	// Unrelated files are left alone
	if err := os.WriteFile(filepath.Join(d.Root(), "README"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	stats, err := d.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 3 || stats.TotalBytes != 15 {
		t.Errorf("Stats = %+v, want 3 entries, 15 bytes", stats)
	}

	removed, err := d.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 3 {
		t.Errorf("Clear removed %d, want 3", removed)
	}
	if _, err := os.Stat(filepath.Join(d.Root(), "README")); err != nil {
		t.Errorf("Clear removed an unrelated file: %v", err)
	}

	stats, err = d.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries after Clear = %d, want 0", stats.Entries)
	}
}

func TestNewDir(t *testing.T) {
	if _, err := NewDir(""); err == nil {
		t.Error("expected error for empty root")
	}

	root := filepath.Join(t.TempDir(), "a", "b")
	d, err := NewDir(root)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	info, err := os.Stat(d.Root())
	if err != nil || !info.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
}

func TestNull(t *testing.T) {
	var c Cache = Null{}
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"))
	if rc, ok := c.Get(ctx, "k"); ok || rc != nil {
		t.Errorf("Null.Get = (%v, %v), want (nil, false)", rc, ok)
	}
	c.Delete(ctx, "k")
}
