package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60, cfg.Scheduler.TickSeconds)
	assert.Equal(t, 5, cfg.Sends.MinDelaySec)
	assert.Equal(t, 15, cfg.Sends.MaxDelaySec)
	assert.Nil(t, cfg.Window.StartHour)
	assert.Equal(t, 1, cfg.Depth.DefaultLevel)
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("scheduler:\n  tick_seconds: 30\nwindow:\n  start_hour: 21\n  end_hour: 6\n"))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Scheduler.TickSeconds)
	require.NotNil(t, cfg.Window.StartHour)
	assert.Equal(t, 21, *cfg.Window.StartHour)
	assert.Equal(t, 6, *cfg.Window.EndHour)
	// Untouched sections keep their defaults.
	assert.Equal(t, 5, cfg.Sends.MinDelaySec)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero tick", "scheduler:\n  tick_seconds: 0\n"},
		{"negative min delay", "sends:\n  min_delay_sec: -1\n"},
		{"max below min", "sends:\n  min_delay_sec: 10\n  max_delay_sec: 3\n"},
		{"half window", "window:\n  start_hour: 9\n"},
		{"window hour out of range", "window:\n  start_hour: 9\n  end_hour: 24\n"},
		{"depth out of range", "depth:\n  default_level: 11\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptionalMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Scheduler.TickSeconds)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "castline.yml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  tick_seconds: 5\n"), 0o644))
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Scheduler.TickSeconds)
}
