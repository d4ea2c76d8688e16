package tle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrNoSnapshot is returned when the archive directory holds no snapshot.
var ErrNoSnapshot = errors.New("no cached TLE snapshot")

const (
	snapshotPrefix = "tle_"
	snapshotSuffix = ".txt"
)

// Cache archives fetched TLE text as tle_<unix>.txt files and keeps the
// newest maxFiles of them.
type Cache struct {
	dir      string
	maxFiles int
}

// Snapshot is one archived fetch.
type Snapshot struct {
	Path      string
	FetchedAt time.Time
	Data      []byte
}

// NewCache returns a Cache rooted at dir. maxFiles <= 0 keeps five.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{dir: dir, maxFiles: maxFiles}
}

// Dir returns the archive directory.
func (c *Cache) Dir() string { return c.dir }

// Save writes data stamped with ts and prunes older snapshots.
func (c *Cache) Save(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	path := filepath.Join(c.dir, snapshotName(ts))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return c.prune()
}

// Latest returns the newest snapshot.
func (c *Cache) Latest() (Snapshot, error) {
	stamps, err := c.stamps()
	if err != nil {
		return Snapshot{}, err
	}
	if len(stamps) == 0 {
		return Snapshot{}, fmt.Errorf("%s: %w", c.dir, ErrNoSnapshot)
	}

	ts := stamps[len(stamps)-1]
	path := filepath.Join(c.dir, snapshotName(ts))
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading cache file: %w", err)
	}
	return Snapshot{Path: path, FetchedAt: ts, Data: data}, nil
}

func snapshotName(ts time.Time) string {
	return snapshotPrefix + strconv.FormatInt(ts.Unix(), 10) + snapshotSuffix
}

func parseSnapshotName(name string) (time.Time, bool) {
	s, ok := strings.CutPrefix(name, snapshotPrefix)
	if !ok {
		return time.Time{}, false
	}
	s, ok = strings.CutSuffix(s, snapshotSuffix)
	if !ok {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

// stamps lists snapshot times, oldest first. A missing directory is empty.
func (c *Cache) stamps() ([]time.Time, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var out []time.Time
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		if ts, ok := parseSnapshotName(e.Name()); ok {
			out = append(out, ts)
		}
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out, nil
}

func (c *Cache) prune() error {
	stamps, err := c.stamps()
	if err != nil {
		return err
	}
	if len(stamps) <= c.maxFiles {
		return nil
	}
	for _, ts := range stamps[:len(stamps)-c.maxFiles] {
		name := snapshotName(ts)
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", name, err)
		}
	}
	return nil
}
