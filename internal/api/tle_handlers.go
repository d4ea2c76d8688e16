package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/norad/internal/cache"
	"github.com/star/norad/internal/httputil"
	"github.com/star/norad/internal/metrics"
	"github.com/star/norad/internal/tle"
)

type metadataResponse struct {
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetched_at"`
	AgeSeconds int       `json:"age_seconds"`
	EpochMin   time.Time `json:"epoch_min"`
	EpochMax   time.Time `json:"epoch_max"`
	Satellites int       `json:"satellites"`
}

func newMetadataResponse(ds *tle.TLEDataset) metadataResponse {
	return metadataResponse{
		Source:     ds.Source,
		FetchedAt:  ds.FetchedAt.UTC(),
		AgeSeconds: int(time.Since(ds.FetchedAt).Seconds()),
		EpochMin:   ds.EpochRange.Min.UTC(),
		EpochMax:   ds.EpochRange.Max.UTC(),
		Satellites: len(ds.Satellites),
	}
}

// GET /api/v1/tle/metadata
func metadataHandler(store *tle.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := store.Get()
		if ds == nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "no TLE data loaded")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, newMetadataResponse(ds))
	}
}

type fetchResponse struct {
	Status string `json:"status"` // updated | fresh
	metadataResponse
}

// POST /api/v1/tle/fetch?force=true
//
// Data younger than MaxAge is kept unless force is set.
func fetchHandler(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.TLE.EnableFetch || deps.Source == nil {
			httputil.WriteError(w, http.StatusForbidden, "TLE fetch disabled")
			return
		}

		force := false
		if v := r.URL.Query().Get("force"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				httputil.WriteError(w, http.StatusBadRequest, "invalid force parameter, must be a boolean")
				return
			}
			force = b
		}

		if age, ok := deps.Store.Age(); ok && !force && deps.TLE.MaxAge > 0 && age < deps.TLE.MaxAge {
			httputil.WriteJSON(w, http.StatusOK, fetchResponse{"fresh", newMetadataResponse(deps.Store.Get())})
			return
		}

		ds, err := deps.Store.Refresh(r.Context(), deps.Source, deps.TLECache)
		if err != nil {
			logger.Warn("TLE fetch failed", "source", deps.Source.SourceURL(), "error", err)
			httputil.WriteError(w, http.StatusBadGateway, "TLE fetch failed: "+err.Error())
			return
		}
		metrics.SetTLEDatasetCount(len(ds.Satellites))
		metrics.SetTLEDatasetAge(time.Since(ds.FetchedAt))

		httputil.WriteJSON(w, http.StatusOK, fetchResponse{"updated", newMetadataResponse(ds)})
	}
}

type cacheStatsResponse struct {
	Entries          int       `json:"entries"`
	SizeBytes        int64     `json:"size_bytes"`
	OldestTimestamp  time.Time `json:"oldest_timestamp"`
	NewestTimestamp  time.Time `json:"newest_timestamp"`
	Hits             int64     `json:"hits"`
	Misses           int64     `json:"misses"`
	HitRatio         float64   `json:"hit_ratio"`
	Evictions        int64     `json:"evictions"`
	InGracePeriod    bool      `json:"in_grace_period"`
	DatasetSource    string    `json:"dataset_source,omitempty"`
	DatasetFetchedAt time.Time `json:"dataset_fetched_at"`
}

// GET /api/v1/cache/stats
func cacheStatsHandler(kfCache *cache.KeyframeCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := kfCache.Stats()
		resp := cacheStatsResponse{
			Entries:          s.Entries,
			SizeBytes:        s.SizeBytes,
			OldestTimestamp:  s.OldestTimestamp,
			NewestTimestamp:  s.NewestTimestamp,
			Hits:             s.Hits,
			Misses:           s.Misses,
			Evictions:        s.Evictions,
			InGracePeriod:    s.InGracePeriod,
			DatasetSource:    s.DatasetSource,
			DatasetFetchedAt: s.DatasetFetchedAt,
		}
		if total := s.Hits + s.Misses; total > 0 {
			resp.HitRatio = float64(s.Hits) / float64(total)
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}
