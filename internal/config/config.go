// Package config loads runtime configuration for the ingestion service from
// the environment, following the same plain-function getenv-with-defaults
// style the rest of this codebase's ancestry uses: no viper/koanf.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Database holds Postgres connection-pool settings (spec §5: min 5, max
// 100, connect/acquire 30s, idle 10min, lifetime 30min).
type Database struct {
	URL               string
	MinConns          int
	MaxConns          int
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	ConnectTimeout    time.Duration
	AcquireTimeout    time.Duration
	HealthCheckPeriod time.Duration
}

// Scanner holds the settings named in SPEC_FULL.md §6.1.
type Scanner struct {
	Incremental   bool
	Parallelism   int
	Watch         bool
	WatchDebounce time.Duration
	CoverCacheDir string
}

// Config is the top-level process configuration.
type Config struct {
	Addr        string
	AdminToken  string
	Database    Database
	Scanner     Scanner
	FFprobePath string
}

// FromEnv builds a Config from the environment with sane defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:       getenv("ADDR", ":8080"),
		AdminToken: getenv("ADMIN_TOKEN", ""),
		Database: Database{
			URL:               getenv("DATABASE_URL", ""),
			MinConns:          intEnv("DB_MIN_CONNS", 5),
			MaxConns:          intEnv("DB_MAX_CONNS", 100),
			MaxConnLifetime:   durationEnv("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:   durationEnv("DB_MAX_CONN_IDLE_TIME", 10*time.Minute),
			ConnectTimeout:    durationEnv("DB_CONNECT_TIMEOUT", 30*time.Second),
			AcquireTimeout:    durationEnv("DB_ACQUIRE_TIMEOUT", 30*time.Second),
			HealthCheckPeriod: durationEnv("DB_HEALTH_CHECK_PERIOD", time.Minute),
		},
		Scanner: Scanner{
			Incremental:   boolEnv("SCANNER_INCREMENTAL", true),
			Parallelism:   intEnv("SCANNER_PARALLELISM", 32),
			Watch:         boolEnv("SCAN_WATCH", false),
			WatchDebounce: durationEnv("SCAN_WATCH_DEBOUNCE", 2*time.Second),
			CoverCacheDir: getenv("COVER_CACHE_DIR", "data/cache/covers"),
		},
		FFprobePath: getenv("FFPROBE_PATH", "ffprobe"),
	}

	if cfg.Database.URL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	if cfg.AdminToken == "" {
		return cfg, errors.New("ADMIN_TOKEN is required")
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func boolEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func intEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
