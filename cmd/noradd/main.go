// Command noradd serves satellite positions, look angles, passes and a
// keyframe stream over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/star/norad/internal/api"
	"github.com/star/norad/internal/cache"
	"github.com/star/norad/internal/metrics"
	"github.com/star/norad/internal/observability"
	"github.com/star/norad/internal/propagation"
	"github.com/star/norad/internal/stream"
	"github.com/star/norad/internal/tle"
	"github.com/star/norad/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	addr := os.Getenv(envPrefix + "HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, loadTracingConfig(logger), logger)
	if err != nil {
		logger.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	tleCfg := loadTLEConfig(logger)
	store := tle.NewStore(logger)
	tleCache := tle.NewCache(tleCfg.CacheDir, tleCfg.MaxFiles)
	fetcher := tle.NewFetcher(tleCfg.SourceURL, logger, tleCfg.ExtraSourceURLs...)
	loadInitialData(logger, store, tleCache)

	propCfg := loadPropConfig(logger)
	prop := propagation.NewPropagator(store, propCfg, logger)
	metrics.SetPropagationWorkersActive(propCfg.Workers)

	kfCache := cache.NewKeyframeCache(loadCacheConfig(logger, propCfg), prop, store, logger)
	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(kfCache, store, streamCfg, logger)

	srv := api.NewServer(addr, logger, authCfg, api.Deps{
		Store:      store,
		TLE:        tleCfg,
		Source:     fetcher,
		TLECache:   tleCache,
		Propagator: prop,
		Cache:      kfCache,
		Stream:     streamHandler,
		Static:     web.Content,
		TrustProxy: streamCfg.TrustProxy,
	})

	go kfCache.Start(ctx)
	go reportDatasetAge(ctx, store)
	if tleCfg.EnableFetch {
		go refreshLoop(ctx, logger, store, fetcher, tleCache, tleCfg.MaxAge)
	}

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "tle_fetch_enabled", tleCfg.EnableFetch)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

// loadInitialData prefers an explicit file, then the newest archived
// snapshot. Starting empty is allowed; the refresh loop fills the store.
func loadInitialData(logger *slog.Logger, store *tle.Store, tleCache *tle.Cache) {
	if path := os.Getenv(envPrefix + "TLE_FILE"); path != "" {
		if _, err := store.LoadFile(path); err != nil {
			logger.Error("failed to load TLE file", "path", path, "error", err)
		} else {
			return
		}
	}

	if _, err := store.LoadCache(tleCache); err != nil {
		logger.Info("no TLE cache found, starting without TLE data", "error", err)
	}
}

// refreshLoop fetches whenever the active data is missing or older than
// maxAge, checking at a tenth of maxAge.
func refreshLoop(ctx context.Context, logger *slog.Logger, store *tle.Store, src tle.Source, tleCache *tle.Cache, maxAge time.Duration) {
	interval := max(maxAge/10, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if age, ok := store.Age(); !ok || age >= maxAge {
			if _, err := store.Refresh(ctx, src, tleCache); err != nil {
				logger.Warn("scheduled TLE refresh failed", "source", src.SourceURL(), "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// reportDatasetAge keeps the dataset gauges current.
func reportDatasetAge(ctx context.Context, store *tle.Store) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if age, ok := store.Age(); ok {
				metrics.SetTLEDatasetAge(age)
				metrics.SetTLEDatasetCount(len(store.Get().Satellites))
			}
		case <-ctx.Done():
			return
		}
	}
}
