package cache

import (
	"context"
	"time"

	"github.com/star/norad/internal/metrics"
	"github.com/star/norad/internal/tle"
)

// Start runs the maintenance loop until ctx is cancelled: it waits for a
// dataset, fills the window, then each step extends the leading edge,
// evicts the trailing edge and rebuilds on dataset change.
func (c *KeyframeCache) Start(ctx context.Context) {
	if !c.waitForTLEData(ctx) {
		return
	}

	c.warmup(ctx)

	ticker := time.NewTicker(c.config.Step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cache generator stopped")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// waitForTLEData polls the store every second. It returns false if ctx
// ends first.
func (c *KeyframeCache) waitForTLEData(ctx context.Context) bool {
	if c.store.Get() != nil {
		return true
	}

	c.logger.Info("cache waiting for TLE data")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.store.Get() != nil {
				c.logger.Info("TLE data available, starting cache warmup")
				return true
			}
		}
	}
}

// fillWindow computes every keyframe of [now, now+horizon] from the
// active dataset. Frames that fail are counted and skipped. ok is false
// if ctx ended first.
func (c *KeyframeCache) fillWindow(ctx context.Context, ds *tle.TLEDataset) (entries map[time.Time]*CacheEntry, ok bool) {
	now := c.RoundToStep(c.now())
	numFrames := int(c.config.Horizon/c.config.Step) + 1
	entries = make(map[time.Time]*CacheEntry, numFrames)

	for i := 0; i < numFrames; i++ {
		if ctx.Err() != nil {
			return entries, false
		}

		target := now.Add(time.Duration(i) * c.config.Step)
		kf, err := c.source.PropagateToTime(ctx, target)
		if err != nil {
			c.logger.Warn("window propagation failed",
				"timestamp", target.Format(time.RFC3339),
				"error", err,
			)
			metrics.IncCacheRegenerationErrors()
			continue
		}
		entries[c.RoundToStep(kf.Timestamp)] = c.newEntry(kf, ds)
	}
	return entries, true
}

// warmup fills an empty window.
func (c *KeyframeCache) warmup(ctx context.Context) {
	ds := c.store.Get()
	if ds == nil {
		return
	}

	c.logger.Info("cache warmup starting",
		"frames", int(c.config.Horizon/c.config.Step)+1,
		"dataset_source", ds.Source,
	)

	start := time.Now()
	entries, ok := c.fillWindow(ctx, ds)
	if !ok {
		return
	}
	c.replaceAll(entries, ds)

	c.logger.Info("cache warmup complete",
		"generated", len(entries),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// tick runs one iteration of the maintenance loop.
func (c *KeyframeCache) tick(ctx context.Context) {
	if c.tleChanged() {
		c.performCutover(ctx)
		return
	}
	c.generateLeadingEdge(ctx)
	c.evictExpired()
}

// generateLeadingEdge adds the keyframe at now+horizon if it is missing.
func (c *KeyframeCache) generateLeadingEdge(ctx context.Context) {
	target := c.RoundToStep(c.now().Add(c.config.Horizon))

	c.mu.RLock()
	_, cached := c.entries[target]
	c.mu.RUnlock()
	if cached {
		return
	}

	ds := c.dataset.Load()
	start := time.Now()
	kf, err := c.source.PropagateToTime(ctx, target)
	duration := time.Since(start)
	if err != nil {
		c.logger.Warn("leading edge generation failed",
			"timestamp", target.Format(time.RFC3339),
			"error", err,
		)
		metrics.IncCacheRegenerationErrors()
		return
	}

	c.put(kf, ds)
	metrics.ObserveCacheRegenerationDuration(duration)

	c.logger.Debug("leading edge generated",
		"timestamp", target.Format(time.RFC3339),
		"duration_ms", duration.Milliseconds(),
	)
}

// tleChanged reports whether the store holds a different dataset from the
// one the window was built from.
func (c *KeyframeCache) tleChanged() bool {
	ds := c.store.Get()
	return ds != nil && ds != c.dataset.Load()
}

// performCutover rebuilds the window from the new dataset while the old
// window keeps serving reads, then swaps. A rebuild slower than the grace
// period is logged.
func (c *KeyframeCache) performCutover(ctx context.Context) {
	ds := c.store.Get()
	if ds == nil {
		return
	}

	old := c.dataset.Load()
	attrs := []any{"new_source", ds.Source, "new_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339)}
	if old != nil {
		attrs = append(attrs, "old_source", old.Source, "old_fetched_at", old.FetchedAt.UTC().Format(time.RFC3339))
	}
	c.logger.Info("TLE cutover starting", attrs...)

	c.inGracePeriod.Store(true)
	metrics.SetCacheGracePeriodActive(true)
	defer func() {
		c.inGracePeriod.Store(false)
		metrics.SetCacheGracePeriodActive(false)
	}()

	start := time.Now()
	entries, ok := c.fillWindow(ctx, ds)
	if !ok {
		c.logger.Warn("cutover cancelled by context")
		return
	}
	c.replaceAll(entries, ds)

	duration := time.Since(start)
	if c.config.GracePeriod > 0 && duration > c.config.GracePeriod {
		c.logger.Warn("TLE cutover exceeded grace period",
			"duration_ms", duration.Milliseconds(),
			"grace_period_ms", c.config.GracePeriod.Milliseconds(),
		)
	}
	c.logger.Info("TLE cutover complete",
		"duration_ms", duration.Milliseconds(),
		"entries_replaced", len(entries),
	)
	metrics.ObserveCacheRegenerationDuration(duration)
}
