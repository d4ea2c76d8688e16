// Package cache keeps a rolling window of keyframes covering
// [now, now+horizon].
//
// A background loop generates the leading edge and evicts the trailing
// edge. When the active TLE dataset is replaced the whole window is rebuilt
// off to the side and swapped in, so reads never see a mix of datasets.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/star/norad/internal/metrics"
	"github.com/star/norad/internal/propagation"
	"github.com/star/norad/internal/tle"
)

// Config holds cache configuration loaded from environment variables.
type Config struct {
	Step        time.Duration // Keyframe interval (default: 5s)
	Horizon     time.Duration // How far ahead to cache (default: 600s)
	GracePeriod time.Duration // Cutover budget before a warning is logged (default: 30s)
	Buffer      time.Duration // Keep entries this long past their time (default: 60s)
}

// KeyframeSource produces one keyframe for an instant.
type KeyframeSource interface {
	PropagateToTime(ctx context.Context, t time.Time) (*propagation.Keyframe, error)
}

// CacheEntry wraps a keyframe with the dataset it was computed from.
type CacheEntry struct {
	Keyframe    *propagation.Keyframe
	GeneratedAt time.Time
	Dataset     *tle.TLEDataset
}

// KeyframeCache is an in-memory rolling window of keyframes. Safe for
// concurrent use.
type KeyframeCache struct {
	mu      sync.RWMutex
	entries map[time.Time]*CacheEntry

	config Config
	source KeyframeSource
	store  *tle.Store
	logger *slog.Logger
	now    func() time.Time

	// Dataset the current window was built from.
	dataset atomic.Pointer[tle.TLEDataset]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	inGracePeriod atomic.Bool
}

// NewKeyframeCache creates a new keyframe cache.
func NewKeyframeCache(config Config, source KeyframeSource, store *tle.Store, logger *slog.Logger) *KeyframeCache {
	logger.Info("cache initialized",
		"step_seconds", config.Step.Seconds(),
		"horizon_seconds", config.Horizon.Seconds(),
		"buffer_seconds", config.Buffer.Seconds(),
		"grace_period_seconds", config.GracePeriod.Seconds(),
	)

	return &KeyframeCache{
		entries: make(map[time.Time]*CacheEntry),
		config:  config,
		source:  source,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Config returns the cache configuration.
func (c *KeyframeCache) Config() Config { return c.config }

// RoundToStep rounds t down to a step boundary in UTC, so lookups for any
// instant inside a step hit the same key.
func (c *KeyframeCache) RoundToStep(t time.Time) time.Time {
	return t.UTC().Truncate(c.config.Step)
}

func (c *KeyframeCache) hit() {
	c.hits.Add(1)
	metrics.IncCacheHits()
}

func (c *KeyframeCache) miss() {
	c.misses.Add(1)
	metrics.IncCacheMisses()
}

// Get returns the keyframe for the step containing t, or nil.
func (c *KeyframeCache) Get(t time.Time) *propagation.Keyframe {
	key := c.RoundToStep(t)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.miss()
		return nil
	}
	c.hit()
	return entry.Keyframe
}

// Satellite returns one satellite's cached position for the step
// containing t.
func (c *KeyframeCache) Satellite(t time.Time, noradID int) (propagation.SatellitePosition, bool) {
	kf := c.Get(t)
	if kf == nil {
		return propagation.SatellitePosition{}, false
	}
	// Keyframe satellites are ordered by catalog number.
	sats := kf.Satellites
	i := sort.Search(len(sats), func(i int) bool { return sats[i].NORADID >= noradID })
	if i == len(sats) || sats[i].NORADID != noradID {
		return propagation.SatellitePosition{}, false
	}
	return sats[i], true
}

// GetRecent returns up to count keyframes ending at t, oldest first, for
// drawing ground tracks behind each satellite.
func (c *KeyframeCache) GetRecent(t time.Time, count int) []*propagation.Keyframe {
	if count <= 0 {
		return nil
	}

	key := c.RoundToStep(t)

	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*propagation.Keyframe, 0, count)
	for i := count - 1; i >= 0; i-- {
		if entry, ok := c.entries[key.Add(-time.Duration(i)*c.config.Step)]; ok {
			result = append(result, entry.Keyframe)
		}
	}
	return result
}

// latestSteps bounds how far back GetLatest looks.
const latestSteps = 10

// GetLatest returns the most recent keyframe not after now.
func (c *KeyframeCache) GetLatest() *propagation.Keyframe {
	now := c.RoundToStep(c.now())

	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := 0; i < latestSteps; i++ {
		if entry, ok := c.entries[now.Add(-time.Duration(i)*c.config.Step)]; ok {
			c.hit()
			return entry.Keyframe
		}
	}

	c.miss()
	return nil
}

func (c *KeyframeCache) newEntry(kf *propagation.Keyframe, ds *tle.TLEDataset) *CacheEntry {
	return &CacheEntry{Keyframe: kf, GeneratedAt: c.now(), Dataset: ds}
}

// put stores a keyframe computed from ds. Caller must not hold mu.
func (c *KeyframeCache) put(kf *propagation.Keyframe, ds *tle.TLEDataset) {
	entry := c.newEntry(kf, ds)

	c.mu.Lock()
	c.entries[c.RoundToStep(kf.Timestamp)] = entry
	c.mu.Unlock()

	c.updateMetrics()
}

// evictExpired removes entries older than now - buffer.
func (c *KeyframeCache) evictExpired() int {
	cutoff := c.now().Add(-c.config.Buffer)
	var removed int

	c.mu.Lock()
	for ts := range c.entries {
		if ts.Before(cutoff) {
			delete(c.entries, ts)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddCacheEvictions(removed)
		c.updateMetrics()
		c.logger.Debug("cache eviction", "entries_removed", removed)
	}

	return removed
}

// replaceAll swaps in a window built from ds.
func (c *KeyframeCache) replaceAll(newEntries map[time.Time]*CacheEntry, ds *tle.TLEDataset) {
	c.mu.Lock()
	c.entries = newEntries
	c.mu.Unlock()
	c.dataset.Store(ds)
	c.updateMetrics()
}

// CacheStats holds cache statistics for the stats endpoint.
type CacheStats struct {
	Entries          int
	SizeBytes        int64
	OldestTimestamp  time.Time
	NewestTimestamp  time.Time
	Hits             int64
	Misses           int64
	Evictions        int64
	InGracePeriod    bool
	DatasetSource    string
	DatasetFetchedAt time.Time
}

// Stats returns current cache statistics.
func (c *KeyframeCache) Stats() CacheStats {
	c.mu.RLock()
	count := len(c.entries)
	var oldest, newest time.Time
	for ts := range c.entries {
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
		if newest.IsZero() || ts.After(newest) {
			newest = ts
		}
	}
	c.mu.RUnlock()

	stats := CacheStats{
		Entries:         count,
		SizeBytes:       c.estimateSizeBytes(),
		OldestTimestamp: oldest,
		NewestTimestamp: newest,
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Evictions:       c.evictions.Load(),
		InGracePeriod:   c.inGracePeriod.Load(),
	}
	if ds := c.dataset.Load(); ds != nil {
		stats.DatasetSource = ds.Source
		stats.DatasetFetchedAt = ds.FetchedAt
	}
	return stats
}

// estimateSizeBytes returns a rough estimate of the cache memory footprint.
func (c *KeyframeCache) estimateSizeBytes() int64 {
	const (
		keyframeOverhead = 48 // timestamp + slice header
		entryOverhead    = 48 // keyframe pointer + GeneratedAt + dataset pointer
		mapSlot          = 8
	)
	satSize := int64(unsafe.Sizeof(propagation.SatellitePosition{}))

	c.mu.RLock()
	defer c.mu.RUnlock()

	var total int64
	for _, entry := range c.entries {
		total += entryOverhead + mapSlot
		if entry.Keyframe != nil {
			total += keyframeOverhead + int64(len(entry.Keyframe.Satellites))*satSize
		}
	}
	return total
}

// updateMetrics publishes current cache size to Prometheus.
func (c *KeyframeCache) updateMetrics() {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()

	metrics.SetCacheEntries(count)
	metrics.SetCacheSizeBytes(c.estimateSizeBytes())
}
