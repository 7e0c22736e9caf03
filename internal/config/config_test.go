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

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "backend:\n  base_url: http://backend:5000\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "http://localhost:8090", cfg.Server.PublicURL)
	assert.Equal(t, int64(100*1024*1024), cfg.Upload.MaxBytes)
	assert.Equal(t, "memory", cfg.Cache.Store)
	assert.Equal(t, 30*time.Second, cfg.Cache.HistoryStaleTime)
	assert.Equal(t, time.Minute, cfg.Cache.TimelineStaleTime)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.MinIO.Enabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "backend:\n  base_url: http://backend:5000\nserver:\n  port: 9000\n")
	t.Setenv("OCEAN_SERVER_PORT", "9100")
	t.Setenv("OCEAN_BACKEND_URL", "http://override:5000")
	t.Setenv("OCEAN_UPLOAD_MAX_BYTES", "1024")
	t.Setenv("OCEAN_MEDIA_DIR", "/srv/media")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "http://override:5000", cfg.Backend.BaseURL)
	assert.Equal(t, int64(1024), cfg.Upload.MaxBytes)
	assert.Equal(t, "/srv/media", cfg.Upload.MediaDir)
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("OCEAN_BACKEND_URL", "http://backend:5000")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://backend:5000", cfg.Backend.BaseURL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing backend", "server:\n  port: 9000\n"},
		{"redis without addr", "backend:\n  base_url: http://b\ncache:\n  store: redis\n"},
		{"unknown store", "backend:\n  base_url: http://b\ncache:\n  store: disk\n"},
		{"bad yaml", "backend: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
