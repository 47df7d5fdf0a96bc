package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process settings read from the environment. Settings that may
// change while the server runs (enable flag, timezone, URL template) live in
// the YAML settings file instead; see SettingsFile.
type Config struct {
	Addr         string // listen address, e.g. :9191
	BaseURL      string // public URL reported in player_api server_info; empty = derive from request
	CatalogPath  string // .json, or .db/.sqlite for the SQLite store
	SettingsPath string // YAML settings file; missing file = defaults

	// Upstream catch-up requests.
	UpstreamTimeout     time.Duration // dial + response headers
	UpstreamIdleTimeout time.Duration // max gap between body reads once streaming
	UpstreamRatePerHost float64       // requests/second per provider host; 0 = unlimited
	UpstreamBurst       int

	MaxConnections int // listener cap; 0 = unlimited

	// Indexing.
	IndexConcurrency int           // accounts fetched in parallel
	IndexTimeout     time.Duration // per player_api / M3U request
	RefreshInterval  time.Duration // serve: re-index this often; 0 = never
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load() to use a .env file.
func Load() *Config {
	c := &Config{
		Addr:                getEnv("TIMESHIFT_ADDR", ":9191"),
		BaseURL:             strings.TrimSuffix(os.Getenv("TIMESHIFT_BASE_URL"), "/"),
		CatalogPath:         getEnv("TIMESHIFT_CATALOG", "./catalog.json"),
		SettingsPath:        getEnv("TIMESHIFT_SETTINGS", "./timeshift.yaml"),
		UpstreamTimeout:     getEnvDuration("TIMESHIFT_UPSTREAM_TIMEOUT", 10*time.Second),
		UpstreamIdleTimeout: getEnvDuration("TIMESHIFT_UPSTREAM_IDLE_TIMEOUT", 30*time.Second),
		UpstreamRatePerHost: getEnvFloat("TIMESHIFT_UPSTREAM_RATE", 0),
		UpstreamBurst:       getEnvInt("TIMESHIFT_UPSTREAM_BURST", 4),
		MaxConnections:      getEnvInt("TIMESHIFT_MAX_CONNECTIONS", 0),
		IndexConcurrency:    getEnvInt("TIMESHIFT_INDEX_CONCURRENCY", 4),
		IndexTimeout:        getEnvDuration("TIMESHIFT_INDEX_TIMEOUT", 90*time.Second),
		RefreshInterval:     getEnvDuration("TIMESHIFT_REFRESH", 0),
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = 10 * time.Second
	}
	if c.UpstreamIdleTimeout <= 0 {
		c.UpstreamIdleTimeout = 30 * time.Second
	}
	if c.UpstreamBurst <= 0 {
		c.UpstreamBurst = 1
	}
	if c.IndexConcurrency <= 0 {
		c.IndexConcurrency = 4
	}
	if c.IndexTimeout <= 0 {
		c.IndexTimeout = 90 * time.Second
	}
	return c
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseBool(v string) bool {
	v = strings.TrimSpace(v)
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}
