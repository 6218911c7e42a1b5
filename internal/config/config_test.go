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
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	// A missing explicit config file is an error; defaults apply only when no
	// file was named.
	require.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, "station", cfg.Service)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 50.0, cfg.Server.RateLimit)
	assert.Equal(t, 100, cfg.Server.RateBurst)
	assert.Equal(t, 7*24*time.Hour, cfg.Requests.ExpirationHorizon)
	assert.Equal(t, 5*time.Minute, cfg.Requests.LockExpiry)
	assert.Equal(t, time.Minute, cfg.Jobs.ExpirationInterval)
	assert.Equal(t, 15*time.Second, cfg.Jobs.ExecutionInterval)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 0.1, cfg.Telemetry.SampleRate)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "station.yaml")
	content := `
log_level: debug
server:
  port: 9090
  rate_limit: 10
database:
  host: db.internal
  database: custody
requests:
  expiration_horizon: 48h
jobs:
  execution_interval: 5s
telemetry:
  enabled: true
  sample_rate: 1.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10.0, cfg.Server.RateLimit)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 48*time.Hour, cfg.Requests.ExpirationHorizon)
	assert.Equal(t, 5*time.Second, cfg.Jobs.ExecutionInterval)
	assert.True(t, cfg.Telemetry.Enabled)

	// Unset values keep their defaults.
	assert.Equal(t, "station", cfg.Service)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestDSN(t *testing.T) {
	dbCfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "station",
		Username: "station",
		Password: "secret",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=station password=secret dbname=station sslmode=disable",
		dbCfg.DSN())
}
