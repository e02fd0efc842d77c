package sp3

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func texts(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

func TestCacheWriteLoadLatest(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 2)

	base := time.Unix(1428714000, 0)
	for i, snap := range [][][]byte{texts("a0"), texts("b0", "b1"), texts("c0", "c1", "c2")} {
		if err := c.Write(snap, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Write #%d: %v", i, err)
		}
	}

	got, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if len(got) != 3 || string(got[0]) != "c0" || string(got[2]) != "c2" {
		t.Errorf("latest = %q, want c0 c1 c2 in order", got)
	}
	if !ts.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("timestamp = %v, want %v", ts, base.Add(2*time.Hour))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("cache holds %d entries after prune, want 2", len(entries))
	}
}

func TestCacheRewriteSameTimestamp(t *testing.T) {
	c := NewCache(t.TempDir(), 5)
	ts := time.Unix(1428714000, 0)

	if err := c.Write(texts("old0", "old1"), ts); err != nil {
		t.Fatal(err)
	}
	if err := c.Write(texts("new0"), ts); err != nil {
		t.Fatal(err)
	}

	got, _, err := c.LoadLatest()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || string(got[0]) != "new0" {
		t.Errorf("latest = %q, want only new0", got)
	}
}

func TestCacheIgnoresForeignEntries(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "1428714000"), []byte("a file, not a snapshot"), 0o644)
	os.Mkdir(filepath.Join(dir, "notes"), 0o755)
	os.Mkdir(filepath.Join(dir, ".partial-123"), 0o755)

	c := NewCache(dir, 5)
	if _, _, err := c.LoadLatest(); err == nil {
		t.Fatal("expected error with no valid snapshots")
	}
}

func TestCacheEmptySnapshot(t *testing.T) {
	dir := t.TempDir()
	os.Mkdir(filepath.Join(dir, "1428714000"), 0o755)

	if _, _, err := NewCache(dir, 5).LoadLatest(); err == nil {
		t.Fatal("expected error for a snapshot without parts")
	}
	if err := NewCache(dir, 5).Write(nil, time.Now()); err == nil {
		t.Fatal("expected error writing no texts")
	}
}

func TestCacheMissingDir(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "absent"), 5)
	if _, _, err := c.LoadLatest(); err == nil {
		t.Fatal("expected error for missing dir")
	}
}
