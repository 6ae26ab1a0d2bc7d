package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "vst_mystop.conf", cfg.SettingsFile)
	assert.Equal(t, 82.0, cfg.ArrivalThresholdMeters)
	assert.Equal(t, 33*time.Second, cfg.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.LoginRetryInterval)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, PollSourceCurrent, cfg.PollSource)
	assert.Nil(t, cfg.SchoolSearch)
	assert.Empty(t, cfg.StatusAddr)
	assert.Empty(t, cfg.NATSURL)
	assert.False(t, cfg.RedisEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("ARRIVAL_THRESHOLD_METERS", "120.5")
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("POLL_SOURCE", "recent")
	t.Setenv("SCHOOL_SEARCH_LAT", "40.1")
	t.Setenv("SCHOOL_SEARCH_LON", "-75.2")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1, ,127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 120.5, cfg.ArrivalThresholdMeters)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, PollSourceRecent, cfg.PollSource)
	require.NotNil(t, cfg.SchoolSearch)
	assert.Equal(t, 40.1, cfg.SchoolSearch.Latitude)
	assert.Equal(t, -75.2, cfg.SchoolSearch.Longitude)
	assert.Equal(t, 10.0, cfg.SchoolSearch.Distance)
	assert.Equal(t, []string{"10.0.0.1", "127.0.0.1"}, cfg.RateLimitWhitelist)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MYSTOP_DEVICE_NAME=Kitchen-Tablet\n"), 0o644))
	t.Setenv("MYSTOP_DEVICE_NAME", "")
	os.Unsetenv("MYSTOP_DEVICE_NAME")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Kitchen-Tablet", cfg.DeviceName)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown poll source", env: map[string]string{"POLL_SOURCE": "stream"}},
		{name: "unknown log format", env: map[string]string{"LOG_FORMAT": "xml"}},
		{name: "negative threshold", env: map[string]string{"ARRIVAL_THRESHOLD_METERS": "-1"}},
		{name: "half a search point", env: map[string]string{"SCHOOL_SEARCH_LAT": "40"}},
		{name: "search latitude out of range", env: map[string]string{"SCHOOL_SEARCH_LAT": "140", "SCHOOL_SEARCH_LON": "0"}},
		{name: "directory url", env: map[string]string{"MYSTOP_DIRECTORY_URL": "not a url"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
