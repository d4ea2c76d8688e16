package propagation

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/star/norad/internal/julian"
)

// propagateJob is a unit of work for the worker pool.
type propagateJob struct {
	noradID    int
	entry      *orbitEntry
	targetTime time.Time
	gmst       float64 // shared by every job of a batch
}

// propagateResult is the output of a single satellite propagation.
type propagateResult struct {
	position SatellitePosition
	err      error
	noradID  int
}

// WorkerPool manages a fixed number of goroutines for parallel propagation.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// PropagateBatch propagates every orbit of set to targetTime. Failed
// satellites are logged and skipped. Positions are ordered by catalog
// number.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, set *orbitSet, targetTime time.Time) ([]SatellitePosition, int, int) {
	if set == nil || len(set.order) == 0 {
		return nil, 0, 0
	}

	gmst := julian.FromTime(targetTime).GMST()

	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				pos, err := job.entry.state(job.targetTime, job.gmst)
				select {
				case results <- propagateResult{position: pos, err: err, noradID: job.noradID}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, id := range set.order {
			job := propagateJob{
				noradID:    id,
				entry:      set.orbits[id],
				targetTime: targetTime,
				gmst:       gmst,
			}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	positions := make([]SatellitePosition, 0, len(set.order))
	var successCount, errorCount int
	for result := range results {
		if result.err != nil {
			errorCount++
			wp.logger.Warn("propagation failed",
				"norad_id", result.noradID,
				"error", result.err,
			)
			continue
		}
		successCount++
		positions = append(positions, result.position)
	}

	slices.SortFunc(positions, func(a, b SatellitePosition) int { return a.NORADID - b.NORADID })
	return positions, successCount, errorCount
}
