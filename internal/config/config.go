// Package config loads service settings from the environment. A .env file
// in the working directory is read first when present; real environment
// variables take precedence over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/atmx/vault-engine/internal/feed"
	"github.com/atmx/vault-engine/internal/projection"
)

// Config holds the server settings.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	PriceFeedURL    string
	RateFeedURL     string
	RefreshInterval time.Duration
	FeedTimeout     time.Duration

	SnapshotCacheTTL time.Duration

	// MaxMonths bounds the duration accepted over HTTP.
	MaxMonths int
}

// Load reads the configuration. Missing variables fall back to defaults;
// malformed durations or numbers are an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}

	cfg := &Config{
		Port:         getenv("PORT", "8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		PriceFeedURL: getenv("PRICE_FEED_URL", feed.DefaultPriceURL),
		RateFeedURL:  getenv("RATE_FEED_URL", feed.DefaultRateURL),
	}

	var err error
	if cfg.RefreshInterval, err = durationEnv("PRICE_REFRESH_INTERVAL", feed.DefaultRefreshInterval); err != nil {
		return nil, err
	}
	if cfg.FeedTimeout, err = durationEnv("FEED_TIMEOUT", feed.DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.SnapshotCacheTTL, err = durationEnv("SNAPSHOT_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxMonths, err = intEnv("MAX_MONTHS", projection.MaxMonths); err != nil {
		return nil, err
	}
	if cfg.MaxMonths > projection.MaxMonths {
		return nil, fmt.Errorf("config: MAX_MONTHS must be at most %d, got %d", projection.MaxMonths, cfg.MaxMonths)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
