package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "http://localhost:8080", cfg.APIBaseURL)
	assert.Equal(t, 8090, cfg.HTTPPort)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 168, cfg.GuestBufferTTL)
	assert.Equal(t, 3, cfg.RefreshMaxTries)
	assert.False(t, cfg.OTELEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STOREFRONT_API_URL", "https://shop.example.com")
	t.Setenv("STOREFRONT_HTTP_PORT", "9100")
	t.Setenv("REFRESH_MAX_TRIES", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.com", cfg.APIBaseURL)
	assert.Equal(t, 9100, cfg.HTTPPort)
	assert.Equal(t, 5, cfg.RefreshMaxTries)
}

func TestLoad_UnparsableValue(t *testing.T) {
	t.Setenv("STOREFRONT_HTTP_PORT", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse storefront config")
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("STOREFRONT_HTTP_PORT", "70000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoad_InvalidBaseURL(t *testing.T) {
	t.Setenv("STOREFRONT_API_URL", "not a url")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid API base URL")
}

func TestLoad_InvalidRefreshTries(t *testing.T) {
	t.Setenv("REFRESH_MAX_TRIES", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh max tries")
}
