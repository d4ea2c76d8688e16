// Package stream serves keyframe batches from the keyframe cache as
// Server-Sent Events on GET /api/v1/stream/keyframes.
//
// The first event of every connection is a metadata message describing the
// element set in use:
//
//	data: {"type":"metadata","source":"...","epoch_min":"...","frame":"ECEF",...}\n\n
//
// followed by one batch per step:
//
//	data: {"type":"keyframe_batch","t":"2024-04-09T12:00:00Z","frame":"ECEF","sat":[...]}\n\n
//
// Keep-alive comments (:\n\n) go out whenever no batch was sent within
// KeepaliveInterval.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/star/norad/internal/cache"
	"github.com/star/norad/internal/httputil"
	"github.com/star/norad/internal/metrics"
	"github.com/star/norad/internal/propagation"
	"github.com/star/norad/internal/tle"
)

// maxIDs bounds the ids filter of one stream.
const maxIDs = 500

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // default 10
	MaxConcurrent      int           // across all clients, default 1000
	BandwidthLimit     int           // bytes per second per stream, 0 for none
	KeepaliveInterval  time.Duration // default 30s
	TrustProxy         bool          // honour X-Forwarded-For for the per-IP limit
}

// Handler manages SSE streaming connections.
type Handler struct {
	cache   *cache.KeyframeCache
	store   *tle.Store
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(kfCache *cache.KeyframeCache, store *tle.Store, config Config, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		cache:   kfCache,
		store:   store,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger,
	}
}

type streamParams struct {
	step    int
	horizon int
	trail   int
	opts    batchOptions
}

func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s parameter, must be %d-%d", name, lo, hi)
	}
	return n, nil
}

// parseIDs reads a comma separated list of catalog numbers.
func parseIDs(v string) (map[int]bool, error) {
	if v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	if len(parts) > maxIDs {
		return nil, fmt.Errorf("too many ids, at most %d", maxIDs)
	}
	ids := make(map[int]bool, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		ids[n] = true
	}
	return ids, nil
}

func parseStreamParams(r *http.Request) (streamParams, error) {
	var p streamParams
	var err error
	if p.step, err = intParam(r, "step", 5, 1, 60); err != nil {
		return p, err
	}
	if p.horizon, err = intParam(r, "horizon", 600, 10, 3600); err != nil {
		return p, err
	}
	if p.trail, err = intParam(r, "trail", 20, 0, 120); err != nil {
		return p, err
	}
	if p.opts.frame, err = ParseFrame(r.URL.Query().Get("frame")); err != nil {
		return p, err
	}
	if p.opts.ids, err = parseIDs(r.URL.Query().Get("ids")); err != nil {
		return p, err
	}
	return p, nil
}

// HandleKeyframes serves the SSE keyframe stream.
// GET /api/v1/stream/keyframes?step=5&horizon=600&trail=20&frame=ecef&ids=25544,44713
func (h *Handler) HandleKeyframes(w http.ResponseWriter, r *http.Request) {
	params, err := parseStreamParams(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}
	defer h.limiter.release(ip)

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"step", params.step,
		"frame", params.opts.frame,
		"ids", len(params.opts.ids),
	)

	c := &client{
		w:         w,
		flusher:   flusher,
		rc:        http.NewResponseController(w),
		ip:        ip,
		logger:    h.logger,
		bandwidth: h.config.BandwidthLimit,
	}
	defer func() {
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"messages", c.messagesSent,
			"bytes", c.bytesSent,
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Long-lived: the server WriteTimeout must not apply. Each write sets its
	// own deadline instead.
	if err := c.rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	// Jitter spreads reconnects after a restart.
	if err := c.sendRetry(3000 + rand.Intn(4000)); err != nil {
		metrics.IncStreamErrors("send_error")
		return
	}

	if ds := h.store.Get(); ds != nil {
		meta := newMetadataMessage(ds, params.opts.frame, time.Duration(params.step)*time.Second, time.Now())
		if err := c.sendJSON(meta); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
			return
		}
	}

	h.run(r, c, params)
}

func (h *Handler) run(r *http.Request, c *client, params streamParams) {
	ticker := time.NewTicker(time.Duration(params.step) * time.Second)
	defer ticker.Stop()

	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case t := <-ticker.C:
			kf := h.cache.Get(t)
			if kf == nil {
				metrics.IncStreamErrors("cache_miss")
				h.logger.Debug("stream cache miss",
					"timestamp", h.cache.RoundToStep(t).UTC().Format(time.RFC3339),
					"remote_ip", c.ip,
				)
				continue
			}

			var trailKFs []*propagation.Keyframe
			if params.trail > 0 {
				trailKFs = h.cache.GetRecent(t, params.trail)
			}

			data, err := json.Marshal(buildBatchMessage(kf, trailKFs, params.opts))
			if err != nil {
				metrics.IncStreamErrors("marshal_error")
				h.logger.Warn("stream marshal error", "remote_ip", c.ip, "error", err)
				continue
			}
			if !c.allow(len(data), t) {
				metrics.IncStreamErrors("bandwidth")
				continue
			}
			if err := c.sendRaw(data); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", c.ip, "error", err)
				return
			}
			keepalive.Reset(h.config.KeepaliveInterval)

		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", c.ip, "error", err)
				return
			}
		}
	}
}
