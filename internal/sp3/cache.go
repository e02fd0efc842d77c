package sp3

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"
)

// Cache keeps fetched SP3 texts on disk so a restart can rebuild the last
// dataset without refetching.
//
// Each fetch is one snapshot directory named by its unix time, holding one
// file per source in fetch order:
//
//	<dir>/1428714000/00.sp3
//	<dir>/1428714000/01.sp3
//
// A snapshot is assembled under a temporary name and renamed into place, so
// LoadLatest never sees a partial one.
type Cache struct {
	dir       string
	snapshots int
}

// NewCache creates a Cache under dir that keeps at most snapshots fetches.
func NewCache(dir string, snapshots int) *Cache {
	if snapshots <= 0 {
		snapshots = 5
	}
	return &Cache{dir: dir, snapshots: snapshots}
}

// Write stores texts as the snapshot for ts and prunes the oldest snapshots.
// Writing the same ts twice replaces the earlier snapshot.
func (c *Cache) Write(texts [][]byte, ts time.Time) error {
	if len(texts) == 0 {
		return errors.New("no SP3 texts to cache")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.MkdirTemp(c.dir, ".partial-")
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	defer os.RemoveAll(tmp)

	for i, text := range texts {
		if err := os.WriteFile(filepath.Join(tmp, partName(i)), text, 0o644); err != nil {
			return fmt.Errorf("writing snapshot part %d: %w", i, err)
		}
	}

	final := filepath.Join(c.dir, strconv.FormatInt(ts.Unix(), 10))
	if err := os.RemoveAll(final); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	return c.prune()
}

// LoadLatest returns the texts of the newest snapshot in source order and
// the time it was fetched.
func (c *Cache) LoadLatest() ([][]byte, time.Time, error) {
	snaps, err := c.list()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(snaps) == 0 {
		return nil, time.Time{}, fmt.Errorf("no SP3 snapshots in %s", c.dir)
	}

	latest := snaps[len(snaps)-1]
	var texts [][]byte
	for i := 0; ; i++ {
		data, err := os.ReadFile(filepath.Join(c.dir, latest.name, partName(i)))
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("reading snapshot %s: %w", latest.name, err)
		}
		texts = append(texts, data)
	}
	if len(texts) == 0 {
		return nil, time.Time{}, fmt.Errorf("snapshot %s is empty", latest.name)
	}
	return texts, latest.ts, nil
}

func partName(i int) string {
	return fmt.Sprintf("%02d.sp3", i)
}

type snapshot struct {
	name string
	ts   time.Time
}

// list returns the snapshots oldest first. Anything not named by a unix
// time, including leftover partial writes, is ignored.
func (c *Cache) list() ([]snapshot, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var snaps []snapshot
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		unix, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		snaps = append(snaps, snapshot{name: e.Name(), ts: time.Unix(unix, 0)})
	}

	slices.SortFunc(snaps, func(a, b snapshot) int {
		return cmp.Compare(a.ts.Unix(), b.ts.Unix())
	})
	return snaps, nil
}

func (c *Cache) prune() error {
	snaps, err := c.list()
	if err != nil {
		return err
	}
	if len(snaps) <= c.snapshots {
		return nil
	}

	for _, s := range snaps[:len(snaps)-c.snapshots] {
		if err := os.RemoveAll(filepath.Join(c.dir, s.name)); err != nil {
			return fmt.Errorf("pruning snapshot %s: %w", s.name, err)
		}
	}
	return nil
}
