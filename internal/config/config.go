/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend selects the media backend driving the tracks.
type Backend string

const (
	BackendMPV Backend = "mpv"
	BackendSim Backend = "sim"
)

// EventBus selects where player events are forwarded.
type EventBus string

const (
	EventBusNone  EventBus = "none"
	EventBusNATS  EventBus = "nats"
	EventBusRedis EventBus = "redis"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int

	// Song catalog (media asset API)
	CatalogURL     string
	CatalogTimeout time.Duration

	// Redis cache of song asset listings; a zero TTL disables it
	CatalogCacheTTL time.Duration

	// Media backend
	Backend      Backend
	MPVBin       string
	MPVSocketDir string

	// Playback tuning
	CrossfadeDuration time.Duration
	IdleHideTimeout   time.Duration
	DriftTolerance    float64 // seconds

	// Event forwarding
	EventBus      EventBus
	NATSURL       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Control API auth; empty disables the guard
	ControlJWTKey string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"KTV_ENV", "NEBULA_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"KTV_HTTP_BIND", "NEBULA_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort:    getEnvIntAny([]string{"KTV_HTTP_PORT", "NEBULA_HTTP_PORT"}, 8090),

		CatalogURL:     strings.TrimRight(getEnvAny([]string{"KTV_CATALOG_URL", "NEBULA_CATALOG_URL"}, "http://localhost:8000"), "/"),
		CatalogTimeout: time.Duration(getEnvIntAny([]string{"KTV_CATALOG_TIMEOUT_MS"}, 5000)) * time.Millisecond,

		CatalogCacheTTL: time.Duration(getEnvIntAny([]string{"KTV_CATALOG_CACHE_TTL_S"}, 0)) * time.Second,

		Backend:      Backend(getEnvAny([]string{"KTV_BACKEND"}, string(BackendMPV))),
		MPVBin:       getEnvAny([]string{"KTV_MPV_BIN"}, "mpv"),
		MPVSocketDir: getEnvAny([]string{"KTV_MPV_SOCKET_DIR"}, os.TempDir()),

		CrossfadeDuration: time.Duration(getEnvIntAny([]string{"KTV_CROSSFADE_MS"}, 500)) * time.Millisecond,
		IdleHideTimeout:   time.Duration(getEnvIntAny([]string{"KTV_IDLE_HIDE_MS"}, 5000)) * time.Millisecond,
		DriftTolerance:    float64(getEnvIntAny([]string{"KTV_DRIFT_TOLERANCE_MS"}, 100)) / 1000,

		EventBus:      EventBus(strings.ToLower(getEnvAny([]string{"KTV_EVENTBUS"}, string(EventBusNone)))),
		NATSURL:       getEnvAny([]string{"KTV_NATS_URL", "NATS_URL"}, "nats://127.0.0.1:4222"),
		RedisAddr:     getEnvAny([]string{"KTV_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"KTV_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"KTV_REDIS_DB", "REDIS_DB"}, 0),

		ControlJWTKey: getEnvAny([]string{"KTV_CONTROL_JWT_KEY"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"KTV_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"KTV_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"KTV_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if cfg.Backend != BackendMPV && cfg.Backend != BackendSim {
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}

	switch cfg.EventBus {
	case EventBusNone, EventBusNATS, EventBusRedis:
	default:
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("KTV_HTTP_PORT out of range: %d", cfg.HTTPPort)
	}

	if cfg.CrossfadeDuration <= 0 {
		return nil, fmt.Errorf("KTV_CROSSFADE_MS must be positive")
	}

	if cfg.DriftTolerance <= 0 {
		return nil, fmt.Errorf("KTV_DRIFT_TOLERANCE_MS must be positive")
	}

	if cfg.CatalogCacheTTL < 0 {
		return nil, fmt.Errorf("KTV_CATALOG_CACHE_TTL_S must not be negative")
	}

	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("KTV_TRACING_SAMPLE_RATE must be within [0, 1]")
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.ControlJWTKey == "" {
		return nil, fmt.Errorf("KTV_CONTROL_JWT_KEY must be provided in production")
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"MPV_BIN":         "use KTV_MPV_BIN",
		"CATALOG_URL":     "use KTV_CATALOG_URL",
		"CROSSFADE_MS":    "use KTV_CROSSFADE_MS",
		"TRACING_ENABLED": "use KTV_TRACING_ENABLED",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// ListenAddr returns the control API listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
