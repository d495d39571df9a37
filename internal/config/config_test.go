package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/claimwiz/internal/store"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database: /tmp/claims.db
driver: sqlite
submit_url: https://example.test/api/submit
probe_url: https://example.test/ping.txt
probe_interval: 10s
assets:
  - https://example.test/index.html
  - https://example.test/styles.css
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/claims.db", cfg.Database)
	assert.Equal(t, store.DriverPureGo, cfg.Driver)
	assert.Equal(t, "https://example.test/api/submit", cfg.SubmitURL)
	assert.Equal(t, 10*time.Second, cfg.ProbeInterval)
	assert.Len(t, cfg.Assets, 2)

	// Untouched fields keep defaults.
	assert.Equal(t, DefaultProbeTimeout, cfg.ProbeTimeout)
	assert.Equal(t, DefaultTotalSteps, cfg.TotalSteps)
	assert.Equal(t, DefaultCacheName, cfg.CacheName)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown driver", "driver: postgres", "unknown driver"},
		{"zero interval", "probe_interval: 0s", "probe_interval must be positive"},
		{"no steps", "total_steps: 0", "total_steps must be at least 1"},
		{"malformed", "database: [", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.SubmitURL = "https://example.test/api/submit"
	cfg.ProbeTimeout = 2 * time.Second

	require.NoError(t, cfg.Save(path))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestPath_RespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "claimwiz", "config.yaml"), Path())
}
