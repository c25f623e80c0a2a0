package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "@daily", cfg.Refresh.Schedule)
	assert.Equal(t, 10, cfg.Refresh.BatchSize)
	assert.Equal(t, time.Minute, cfg.Refresh.JitterMin)
	assert.Equal(t, 60*time.Minute, cfg.Refresh.JitterMax)
	assert.Equal(t, 60*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Generation.BaseURL)
	assert.Equal(t, "refresh_jobs_delayed", cfg.RabbitMQ.DelayQueueName)
	assert.Equal(t, 10*time.Minute, cfg.Refresh.LockTTL)
	assert.Equal(t, 1, cfg.Refresh.Workers)
	assert.Empty(t, cfg.RabbitMQ.URL)
	assert.Equal(t, ":8080", cfg.HTTP.Addr())
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_OPENROUTER_KEY", "sk-test")
	t.Setenv("TEST_DB_HOST", "db.internal")

	cfg, err := Load(writeConfig(t, `
database:
  host: ${TEST_DB_HOST}
  user: app
  dbname: content
  seed_file: seed.yaml
generation:
  api_key: ${TEST_OPENROUTER_KEY}
  timeout: 20s
refresh:
  schedule: "0 3 * * *"
  jitter_min: 30s
  jitter_max: 5m
`))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Generation.APIKey)
	assert.Equal(t, "seed.yaml", cfg.Database.SeedFile)
	assert.Equal(t, 20*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, "0 3 * * *", cfg.Refresh.Schedule)
	assert.Equal(t, 30*time.Second, cfg.Refresh.JitterMin)
	assert.Equal(t, 5*time.Minute, cfg.Refresh.JitterMax)
	assert.Equal(t,
		"host=db.internal port=5432 user=app password= dbname=content sslmode=disable",
		cfg.Database.DSN(),
	)
}

func TestLoad_RejectsInvertedJitter(t *testing.T) {
	_, err := Load(writeConfig(t, `
refresh:
  jitter_min: 10m
  jitter_max: 1m
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jitter_max")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}
