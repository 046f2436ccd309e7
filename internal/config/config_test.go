package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"dubai"}, cfg.Regions)
	assert.Equal(t, "all", cfg.Furnished)
	assert.Equal(t, 16, cfg.MaxWorkers)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 24, cfg.PageSize)
	assert.Equal(t, time.Second, cfg.BackoffBase())
	assert.Equal(t, time.Second, cfg.RequestDelay())
	assert.Equal(t, 15*time.Second, cfg.Timeout())
	assert.Equal(t, 48*time.Hour, cfg.DetailCacheTTL())
	assert.Equal(t, FetchHTTP, cfg.FetchMode)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Empty(t, cfg.Proxies)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("REGIONS", "dubai, sharjah")
	t.Setenv("MAX_WORKERS", "4")
	t.Setenv("FAST_MODE", "true")
	t.Setenv("BACKOFF_BASE_MS", "5")
	t.Setenv("PROXIES", "http://p1:8000,http://p2:8000")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"dubai", "sharjah"}, cfg.Regions)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.True(t, cfg.FastMode)
	assert.Equal(t, 5*time.Millisecond, cfg.BackoffBase())
	assert.Equal(t, []string{"http://p1:8000", "http://p2:8000"}, cfg.Proxies)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("MAX_WORKERS", "4")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-r", "ajman", "--region", "fujairah", "--workers", "2", "--furnished", "unfurnished"}))

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, []string{"ajman", "fujairah"}, cfg.Regions)
	assert.Equal(t, 2, cfg.MaxWorkers)
	assert.Equal(t, "unfurnished", cfg.Furnished)
	// unset flags leave defaults alone
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("MAX_RETRIES", "0")
	_, err := Load(nil)
	assert.Error(t, err)
}

func TestValidateFetchMode(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	cfg.FetchMode = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}
