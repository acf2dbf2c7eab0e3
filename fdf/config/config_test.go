package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigWithDefaults(t *testing.T) {
	cfg, err := LoadConfig("")

	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "flight_cache.db", cfg.Cache.Path)
	assert.Equal(t, 12*time.Hour, cfg.Cache.ExploreTTL)
	assert.Equal(t, 10*time.Minute, cfg.Cache.ConfirmTTL)

	assert.Equal(t, "https://test.api.amadeus.com", cfg.Amadeus.BaseURL)
	assert.Equal(t, time.Second, cfg.Amadeus.MinInterval)
	assert.Equal(t, 60*time.Second, cfg.Amadeus.TokenMargin)

	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.BackoffBase)

	assert.Equal(t, 3, cfg.Budget.ConfirmMaxCalls)
	assert.Equal(t, 10*time.Minute, cfg.Budget.ConfirmWindow)

	assert.Equal(t, 3, cfg.Search.DatesPerMonth)
	assert.Equal(t, 12, cfg.Search.MaxDates)
	assert.Equal(t, "EUR", cfg.Search.Currency)
}

func TestLoadConfigWithFile(t *testing.T) {
	configContent := `
cache:
  path: "./test-cache.db"
  explore_ttl: "6h"
amadeus:
  client_id: "test-id"
  client_secret: "test-secret"
  min_interval: "250ms"
budget:
  confirm_max_calls: 5
  confirm_window: "5m"
search:
  workers: 2
`

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0o644))

	cfg, err := LoadConfig(configFile)

	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "./test-cache.db", cfg.Cache.Path)
	assert.Equal(t, 6*time.Hour, cfg.Cache.ExploreTTL)
	assert.Equal(t, "test-id", cfg.Amadeus.ClientID)
	assert.Equal(t, 250*time.Millisecond, cfg.Amadeus.MinInterval)
	assert.Equal(t, 5, cfg.Budget.ConfirmMaxCalls)
	assert.Equal(t, 5*time.Minute, cfg.Budget.ConfirmWindow)
	assert.Equal(t, 2, cfg.Search.Workers)

	// Untouched sections keep their defaults.
	assert.Equal(t, 10*time.Minute, cfg.Cache.ConfirmTTL)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
}

func TestLoadConfigInvalidFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")

	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	malformedContent := `
cache:
  path: "./test-cache.db"
  invalid_yaml: [unclosed bracket
`

	configFile := filepath.Join(t.TempDir(), "malformed.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(malformedContent), 0o644))

	cfg, err := LoadConfig(configFile)

	assert.Error(t, err)
	assert.Nil(t, cfg)
}
