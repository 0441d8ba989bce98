package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pgrest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
client:
  url: https://db.example.com/rest/v1
  schema: api
  timeout: 3s
  headers:
    apikey: anon
  retry:
    enabled: true
    maxRetries: 5
mock:
  listenAddr: ":4000"
  fixture: testdata/chat.yaml
  pg:
    schemas: [public, api]
metrics:
  enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://db.example.com/rest/v1", cfg.Client.URL)
	assert.Equal(t, "api", cfg.Client.Schema)
	assert.Equal(t, 3*time.Second, cfg.Client.Timeout)
	assert.Equal(t, map[string]string{"apikey": "anon"}, cfg.Client.Headers)
	assert.Equal(t, RetryConfig{Enabled: true, MaxRetries: 5}, cfg.Client.Retry)
	assert.Equal(t, ":4000", cfg.Mock.ListenAddr)
	assert.Equal(t, "testdata/chat.yaml", cfg.Mock.Fixture)
	assert.Equal(t, []string{"public", "api"}, cfg.Mock.PG.Schemas)
	assert.Equal(t, 1000, cfg.Mock.PG.RowLimit)
	assert.True(t, cfg.Mock.CORS)
	assert.Equal(t, MetricsConfig{Enabled: true, Addr: ":9100"}, cfg.Metrics)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "client:\n  url: http://from-file:3000\n")
	t.Setenv("PGREST_CLIENT_URL", "http://from-env:3000")
	t.Setenv("PGREST_MOCK_PG_CONNSTRING", "postgres://localhost/db")
	t.Setenv("PGREST_METRICS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:3000", cfg.Client.URL)
	assert.Equal(t, "postgres://localhost/db", cfg.Mock.PG.ConnString)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadWithFlagsWin(t *testing.T) {
	path := writeConfig(t, "mock:\n  listenAddr: \":4000\"\n")
	v := viper.New()
	v.Set("mock.listenAddr", ":5000")

	cfg, err := LoadWith(v, path)
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.Mock.ListenAddr)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "client: [not, a, map"))
	assert.Error(t, err)
}
