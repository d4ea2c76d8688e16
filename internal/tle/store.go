package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ErrEmptyDataset is returned when a source yields no usable element sets.
// The active dataset is left in place.
var ErrEmptyDataset = errors.New("no valid element sets")

// Source yields raw 3-line TLE text.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	SourceURL() string
}

// Store holds the active dataset. Readers never block; loads are
// serialized so two refreshes cannot interleave their cache writes.
type Store struct {
	current atomic.Pointer[TLEDataset]
	loadMu  sync.Mutex
	logger  *slog.Logger
}

// NewStore returns an empty Store. A nil logger discards output.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{logger: logger}
}

// Get returns the active dataset, or nil before the first load.
func (s *Store) Get() *TLEDataset {
	return s.current.Load()
}

// Set replaces the active dataset.
func (s *Store) Set(ds *TLEDataset) {
	s.current.Store(ds)
}

// Lookup finds a satellite in the active dataset.
func (s *Store) Lookup(noradID int) (TLEEntry, bool) {
	return s.Get().Lookup(noradID)
}

// Age returns the time since the active dataset was fetched. ok is false
// when nothing is loaded.
func (s *Store) Age() (age time.Duration, ok bool) {
	ds := s.Get()
	if ds == nil {
		return 0, false
	}
	return time.Since(ds.FetchedAt), true
}

// Ingest parses raw TLE text and makes it the active dataset.
func (s *Store) Ingest(source string, data []byte, fetchedAt time.Time) (*TLEDataset, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.ingest(source, data, fetchedAt)
}

func (s *Store) ingest(source string, data []byte, fetchedAt time.Time) (*TLEDataset, error) {
	entries, err := Parse(bytes.NewReader(data), s.logger)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", source, ErrEmptyDataset)
	}

	ds := NewDataset(source, fetchedAt, entries)
	s.Set(ds)
	s.logger.Info("TLE dataset loaded",
		"source", source,
		"count", len(entries),
		"epoch_min", ds.EpochRange.Min.Format(time.RFC3339),
		"epoch_max", ds.EpochRange.Max.Format(time.RFC3339),
	)
	return ds, nil
}

// LoadFile reads a local TLE file into the store.
func (s *Store) LoadFile(path string) (*TLEDataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading TLE file: %w", err)
	}
	return s.Ingest("file:"+path, data, time.Now().UTC())
}

// LoadCache loads the newest snapshot from c, keeping its original fetch
// time so age-based refresh still applies.
func (s *Store) LoadCache(c *Cache) (*TLEDataset, error) {
	snap, err := c.Latest()
	if err != nil {
		return nil, err
	}
	return s.Ingest("cache", snap.Data, snap.FetchedAt)
}

// Refresh fetches from src, makes the result active and archives the raw
// text in c when c is non-nil. An archive failure is logged but does not
// fail the refresh.
func (s *Store) Refresh(ctx context.Context, src Source, c *Cache) (*TLEDataset, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	data, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ds, err := s.ingest(src.SourceURL(), data, now)
	if err != nil {
		return nil, err
	}

	if c != nil {
		if err := c.Save(data, now); err != nil {
			s.logger.Warn("failed to archive TLE data", "error", err)
		}
	}
	return ds, nil
}
