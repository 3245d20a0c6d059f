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
	path := writeConfig(t, "log_level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, time.Minute, cfg.Scheduler.PollInterval)
	assert.Equal(t, 1, cfg.Publish.Retry.MaxAttempts)
	assert.Equal(t, "https://bsky.social", cfg.Bluesky.Service)
	assert.Equal(t, 1200, cfg.Render.MaxImageSize)
	assert.Equal(t, 3, cfg.RSS.Retry.MaxAttempts)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "Microblog", cfg.Digest.SiteName)
	assert.False(t, cfg.Bluesky.Configured())
	assert.False(t, cfg.Mastodon.Configured())
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("MB_TEST_TOKEN", "secret-token")
	path := writeConfig(t, `
scheduler:
  interval: 30m
mastodon:
  server: https://mastodon.example
  access_token: ${MB_TEST_TOKEN}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "secret-token", cfg.Mastodon.AccessToken)
	assert.True(t, cfg.Mastodon.Configured())
}

func TestLoad_UnknownDriver(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: sqlite\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage driver")
}

func TestLoad_NegativeDurations(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"interval", "scheduler:\n  interval: -1h\n", "scheduler.interval"},
		{"poll interval", "scheduler:\n  poll_interval: -1s\n", "scheduler.poll_interval"},
		{"publish timeout", "scheduler:\n  publish_timeout: -30s\n", "scheduler.publish_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "blog", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=blog sslmode=disable", d.DSN())
}
