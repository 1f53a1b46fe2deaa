package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "storage:\n  backend: memory\n"))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "reeltrack.db", cfg.Storage.Path)
	assert.Equal(t, "disable", cfg.Storage.Postgres.SSLMode)
	assert.Equal(t, "reeltrack", cfg.RabbitMQ.Exchange)
	assert.Equal(t, 30*time.Second, cfg.Collector.Timeout)
	assert.Equal(t, 3, cfg.Collector.Retry.MaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Run.Interval)
	assert.Equal(t, int64(1000), cfg.Run.MinViews)
	assert.Equal(t, 14, cfg.Run.MaxAgeDays)
	assert.False(t, cfg.Run.DryRun)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("COLLECTOR_TOKEN", "s3cret")
	t.Setenv("PG_PASSWORD", "hunter2")

	cfg, err := Load(writeConfig(t, `
storage:
  backend: postgres
  postgres:
    host: db.internal
    port: 5432
    user: reeltrack
    password: ${PG_PASSWORD}
    dbname: reeltrack
run:
  min_views: 500
  auth_token: ${COLLECTOR_TOKEN}
`))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Run.AuthToken)
	assert.Equal(t, int64(500), cfg.Run.MinViews)
	assert.Equal(t,
		"host=db.internal port=5432 user=reeltrack password=hunter2 dbname=reeltrack sslmode=disable",
		cfg.Storage.Postgres.DSN(),
	)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
