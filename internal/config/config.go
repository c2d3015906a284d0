package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	HTTPAddr string

	RedisURL    string
	DatabaseURL string
	KeyPrefix   string

	PhaseTimeout  time.Duration
	SweepInterval time.Duration
	SweepBatch    int
	MaxTxRetries  int

	MessageDir string
	APIBaseURL string
}

// Load reads the process environment after merging an optional .env file.
// Empty REDIS_URL or DATABASE_URL select the in-process store and archive.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:      ":8080",
		KeyPrefix:     "ll",
		PhaseTimeout:  60 * time.Second,
		SweepInterval: 5 * time.Second,
		SweepBatch:    100,
		MaxTxRetries:  8,
		APIBaseURL:    "http://localhost:8080",
	}
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if v := get("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	} else if v := get("PORT"); v != "" {
		cfg.HTTPAddr = ":" + v
	}
	cfg.RedisURL = get("REDIS_URL")
	cfg.DatabaseURL = get("DATABASE_URL")
	if v := get("REDIS_KEY_PREFIX"); v != "" {
		cfg.KeyPrefix = v
	}
	cfg.MessageDir = get("MESSAGE_DIR")
	if v := get("API_BASE_URL"); v != "" {
		cfg.APIBaseURL = strings.TrimRight(v, "/")
	}

	var err error
	if cfg.PhaseTimeout, err = duration(get("PHASE_TIMEOUT"), cfg.PhaseTimeout); err != nil {
		return nil, fmt.Errorf("PHASE_TIMEOUT: %w", err)
	}
	if cfg.SweepInterval, err = duration(get("SWEEP_INTERVAL"), cfg.SweepInterval); err != nil {
		return nil, fmt.Errorf("SWEEP_INTERVAL: %w", err)
	}
	if v := get("SWEEP_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SweepBatch = n
		}
	}
	if v := get("MAX_TX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTxRetries = n
		}
	}
	return cfg, nil
}

// duration accepts Go duration syntax or a bare number of seconds.
func duration(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("must be positive: %q", v)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive: %q", v)
	}
	return d, nil
}
