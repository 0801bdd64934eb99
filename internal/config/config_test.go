package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("GOOGLE_API_KEY", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, 20, cfg.Sandbox.RowLimit)
	assert.Equal(t, "plots", cfg.Plots.Dir)
	assert.Equal(t, "analysis_events", cfg.Redis.Channel)
	assert.Empty(t, cfg.MongoDB.URI)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: 9090
sandbox:
  timeout: 3s
  row_limit: 5
auth:
  enabled: true
  api_keys: ["k1", "k2"]
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Setenv("SHEET_MODEL_MODEL", "gemini-test")
	t.Setenv("GOOGLE_API_KEY", "from-google-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, 5, cfg.Sandbox.RowLimit)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Auth.APIKeys)
	assert.Equal(t, "gemini-test", cfg.Model.Model)
	assert.Equal(t, "from-google-env", cfg.Model.APIKey)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// chdir switches into dir for the duration of the test (t.Chdir is Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
