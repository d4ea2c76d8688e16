package main

import (
	"errors"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/star/norad/internal/api"
	"github.com/star/norad/internal/auth"
	"github.com/star/norad/internal/cache"
	"github.com/star/norad/internal/observability"
	"github.com/star/norad/internal/propagation"
	"github.com/star/norad/internal/stream"
)

const envPrefix = "NORAD_"

// envInt reads a positive integer, keeping def on absence or error.
func envInt(logger *slog.Logger, key string, def int) int {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+envPrefix+key+" value, using default", "value", v, "default", def)
		return def
	}
	return n
}

// envSeconds reads a positive number of seconds.
func envSeconds(logger *slog.Logger, key string, def time.Duration) time.Duration {
	return time.Duration(envInt(logger, key, int(def.Seconds()))) * time.Second
}

func envBool(logger *slog.Logger, key string, def bool) bool {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid "+envPrefix+key+" value, using default", "value", v, "default", def)
		return def
	}
	return b
}

func logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv(envPrefix + "LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if v := os.Getenv(envPrefix + "AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New(envPrefix + "AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv(envPrefix + "AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New(envPrefix + "AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadPropConfig(logger *slog.Logger) propagation.PropConfig {
	cfg := propagation.PropConfig{
		Workers: envInt(logger, "PROP_WORKERS", runtime.NumCPU()),
		Step:    envSeconds(logger, "KEYFRAME_STEP", 5*time.Second),
		Horizon: envSeconds(logger, "KEYFRAME_HORIZON", 600*time.Second),
	}

	logger.Info("propagation config",
		"workers", cfg.Workers,
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
	)
	return cfg
}

func loadCacheConfig(logger *slog.Logger, propCfg propagation.PropConfig) cache.Config {
	cfg := cache.Config{
		Step:        envSeconds(logger, "CACHE_STEP", propCfg.Step),
		Horizon:     envSeconds(logger, "CACHE_HORIZON", propCfg.Horizon),
		GracePeriod: envSeconds(logger, "CACHE_GRACE_PERIOD", 30*time.Second),
		Buffer:      envSeconds(logger, "CACHE_BUFFER", 60*time.Second),
	}

	logger.Info("cache config",
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
		"grace_period_seconds", cfg.GracePeriod.Seconds(),
		"buffer_seconds", cfg.Buffer.Seconds(),
	)
	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: envInt(logger, "STREAM_MAX_CONCURRENT", 10),
		MaxConcurrent:      envInt(logger, "STREAM_MAX_TOTAL", 1000),
		BandwidthLimit:     envInt(logger, "STREAM_BANDWIDTH_LIMIT", 0),
		KeepaliveInterval:  envSeconds(logger, "STREAM_KEEPALIVE_INTERVAL", 30*time.Second),
		TrustProxy:         envBool(logger, "TRUST_PROXY", false),
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_concurrent", cfg.MaxConcurrent,
		"bandwidth_limit", cfg.BandwidthLimit,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)
	return cfg
}

func loadTLEConfig(logger *slog.Logger) api.TLEConfig {
	cfg := api.TLEConfig{
		EnableFetch: envBool(logger, "ENABLE_TLE_FETCH", true),
		SourceURL:   os.Getenv(envPrefix + "TLE_SOURCE_URL"),
		CacheDir:    "/tmp/norad/tle",
		MaxFiles:    envInt(logger, "TLE_MAX_FILES", 5),
		MaxAge:      envSeconds(logger, "TLE_MAX_AGE", 24*time.Hour),
		StaleAfter:  envSeconds(logger, "TLE_STALE_AFTER", 7*24*time.Hour),
	}

	if v := os.Getenv(envPrefix + "TLE_EXTRA_URLS"); v != "" {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		cfg.ExtraSourceURLs = urls
	}
	if v := os.Getenv(envPrefix + "TLE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	logger.Info("TLE config",
		"fetch_enabled", cfg.EnableFetch,
		"source_url", cfg.SourceURL,
		"extra_urls", cfg.ExtraSourceURLs,
		"cache_dir", cfg.CacheDir,
		"max_age", cfg.MaxAge.String(),
	)
	return cfg
}

func loadTracingConfig(logger *slog.Logger) observability.TracingConfig {
	cfg := observability.DefaultTracingConfig()
	cfg.Enabled = envBool(logger, "TRACING_ENABLED", false)

	if v := os.Getenv(envPrefix + "TRACING_EXPORTER"); v != "" {
		cfg.Exporter = v
	}
	if v := os.Getenv(envPrefix + "OTLP_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv(envPrefix + "TRACING_SAMPLE_RATIO"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r < 0 || r > 1 {
			logger.Warn("invalid "+envPrefix+"TRACING_SAMPLE_RATIO value, using default", "value", v, "default", cfg.SampleRatio)
		} else {
			cfg.SampleRatio = r
		}
	}
	return cfg
}
