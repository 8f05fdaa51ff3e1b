package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HYDROSYNC_HTTP_ADDR", "")
	t.Setenv("HYDROSYNC_RATE_LIMIT", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Zero(t, cfg.RateLimit)
	assert.Equal(t, 300*time.Millisecond, cfg.DiscoveryTimeout)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HYDROSYNC_TEST_ONLY_ADDR=:9999\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("HYDROSYNC_TEST_ONLY_ADDR") })

	_, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", os.Getenv("HYDROSYNC_TEST_ONLY_ADDR"))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HYDROSYNC_HTTP_ADDR", "127.0.0.1:1234")
	t.Setenv("HYDROSYNC_RATE_LIMIT", "50")
	t.Setenv("HYDROSYNC_SEND_TIMEOUT", "5s")
	t.Setenv("HYDROSYNC_TZ", "UTC")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1234", cfg.HTTPAddr)
	assert.Equal(t, 50, cfg.RateLimit)
	assert.Equal(t, 5*time.Second, cfg.SendTimeout)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestGetEnvHelpersFallBack(t *testing.T) {
	t.Setenv("HYDROSYNC_BAD_INT", "many")
	t.Setenv("HYDROSYNC_BAD_DURATION", "soon")
	assert.Equal(t, 7, GetEnvAsInt("HYDROSYNC_BAD_INT", 7))
	assert.Equal(t, time.Minute, GetEnvAsDuration("HYDROSYNC_BAD_DURATION", time.Minute))
	assert.Equal(t, "x", GetEnvAsString("HYDROSYNC_UNSET_VALUE", "x"))
}
