// Package metrics exposes Prometheus collectors for the HTTP server,
// propagation, keyframe cache, stream and TLE dataset.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "norad_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "norad_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	propagationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "norad_propagation_duration_seconds",
		Help:    "Wall time of one propagation batch.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	propagationSatellites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "norad_propagation_satellites_total",
			Help: "Satellites propagated, by result.",
		},
		[]string{"result"},
	)

	propagationWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "norad_propagation_workers",
		Help: "Configured propagation worker count.",
	})

	keplerNonConvergence = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "norad_kepler_nonconvergence_total",
		Help: "Kepler solutions that hit the iteration limit.",
	})

	decayedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "norad_decayed_total",
			Help: "Propagations rejected because the satellite radius fell below the Earth radius.",
		},
		[]string{"model"},
	)

	tleDatasetCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "norad_tle_dataset_satellites",
		Help: "Satellites in the active TLE dataset.",
	})

	tleDatasetAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "norad_tle_dataset_age_seconds",
		Help: "Seconds since the active TLE dataset was fetched.",
	})

	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "norad_cache_hits_total",
		Help: "Keyframe cache hits.",
	})

	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "norad_cache_misses_total",
		Help: "Keyframe cache misses.",
	})

	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "norad_cache_evictions_total",
		Help: "Keyframes evicted from the cache.",
	})

	cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "norad_cache_entries",
		Help: "Keyframes held in the cache.",
	})

	cacheSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "norad_cache_size_bytes",
		Help: "Estimated keyframe cache size.",
	})

	cacheGracePeriod = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "norad_cache_grace_period_active",
		Help: "1 while the cache serves keyframes from a superseded dataset.",
	})

	cacheRegenDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "norad_cache_regeneration_duration_seconds",
		Help:    "Time to regenerate the keyframe window.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	cacheRegenErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "norad_cache_regeneration_errors_total",
		Help: "Failed keyframe generations.",
	})

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "norad_streams_active",
		Help: "Open SSE streams.",
	})

	streamConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "norad_stream_connections_total",
			Help: "SSE connection events.",
		},
		[]string{"event"},
	)

	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "norad_stream_errors_total",
			Help: "SSE stream errors by reason.",
		},
		[]string{"reason"},
	)

	streamMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "norad_stream_messages_total",
		Help: "SSE messages written.",
	})

	streamBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "norad_stream_bytes_total",
		Help: "SSE bytes written.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		propagationDuration,
		propagationSatellites,
		propagationWorkers,
		keplerNonConvergence,
		decayedTotal,
		tleDatasetCount,
		tleDatasetAge,
		cacheHits,
		cacheMisses,
		cacheEvictions,
		cacheEntries,
		cacheSizeBytes,
		cacheGracePeriod,
		cacheRegenDuration,
		cacheRegenErrors,
		streamsActive,
		streamConnections,
		streamErrors,
		streamMessages,
		streamBytes,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one batch: its duration and per-satellite
// outcomes.
func RecordPropagation(d time.Duration, ok, failed int) {
	propagationDuration.Observe(d.Seconds())
	propagationSatellites.WithLabelValues("ok").Add(float64(ok))
	propagationSatellites.WithLabelValues("error").Add(float64(failed))
}

func SetPropagationWorkersActive(n int) { propagationWorkers.Set(float64(n)) }

// RecordKeplerMiss counts a Kepler iteration that did not converge.
func RecordKeplerMiss() { keplerNonConvergence.Inc() }

// RecordDecay counts a decayed propagation for the given model name.
func RecordDecay(model string) { decayedTotal.WithLabelValues(model).Inc() }

func SetTLEDatasetCount(n int) { tleDatasetCount.Set(float64(n)) }

func SetTLEDatasetAge(age time.Duration) { tleDatasetAge.Set(age.Seconds()) }

func IncCacheHits() { cacheHits.Inc() }
func IncCacheMisses() { cacheMisses.Inc() }

func AddCacheEvictions(n int) { cacheEvictions.Add(float64(n)) }

func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }
func SetCacheSizeBytes(n int64) { cacheSizeBytes.Set(float64(n)) }
func IncCacheRegenerationErrors() { cacheRegenErrors.Inc() }

func SetCacheGracePeriodActive(active bool) {
	if active {
		cacheGracePeriod.Set(1)
		return
	}
	cacheGracePeriod.Set(0)
}

func ObserveCacheRegenerationDuration(d time.Duration) {
	cacheRegenDuration.Observe(d.Seconds())
}

func IncStreamsActive() { streamsActive.Inc() }
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamConnections counts a connect or disconnect event.
func IncStreamConnections(event string) { streamConnections.WithLabelValues(event).Inc() }

func IncStreamErrors(reason string) { streamErrors.WithLabelValues(reason).Inc() }

func IncStreamMessages() { streamMessages.Inc() }
func AddStreamBytes(n int64) { streamBytes.Add(float64(n)) }

var exactRoutes = map[string]bool{
	"/":                        true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/tle/metadata":     true,
	"/api/v1/tle/fetch":        true,
	"/api/v1/cache/stats":      true,
	"/api/v1/stream/keyframes": true,
}

var paramRoutes = []string{
	"/api/v1/propagate/",
	"/api/v1/look/",
	"/api/v1/passes/",
}

// normalizeRoute maps a request path onto a bounded set of labels. Catalog
// numbers collapse to {norad_id} and unknown paths to "other".
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}
	for _, prefix := range paramRoutes {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" {
			continue
		}
		if _, err := strconv.Atoi(rest); err == nil {
			return prefix + "{norad_id}"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE handlers working behind the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
