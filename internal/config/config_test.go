package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := fromEnv(envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "ll", cfg.KeyPrefix)
	assert.Equal(t, 60*time.Second, cfg.PhaseTimeout)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, 100, cfg.SweepBatch)
	assert.Equal(t, 8, cfg.MaxTxRetries)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestOverrides(t *testing.T) {
	cfg, err := fromEnv(envOf(map[string]string{
		"PORT":           "9000",
		"REDIS_URL":      " redis://localhost:6379/2 ",
		"PHASE_TIMEOUT":  "90",
		"SWEEP_INTERVAL": "250ms",
		"SWEEP_BATCH":    "-3",
		"MAX_TX_RETRIES": "3",
		"API_BASE_URL":   "http://api.local/",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "redis://localhost:6379/2", cfg.RedisURL)
	assert.Equal(t, 90*time.Second, cfg.PhaseTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.SweepInterval)
	assert.Equal(t, 100, cfg.SweepBatch)
	assert.Equal(t, 3, cfg.MaxTxRetries)
	assert.Equal(t, "http://api.local", cfg.APIBaseURL)
}

func TestHTTPAddrWinsOverPort(t *testing.T) {
	cfg, err := fromEnv(envOf(map[string]string{"HTTP_ADDR": "127.0.0.1:7000", "PORT": "9000"}))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.HTTPAddr)
}

func TestInvalidDurations(t *testing.T) {
	for _, v := range []string{"soon", "0", "-5s"} {
		_, err := fromEnv(envOf(map[string]string{"PHASE_TIMEOUT": v}))
		assert.Error(t, err, v)
	}
}
