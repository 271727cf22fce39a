package tracker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-botsort/gmc"
)

func TestDefaultConfigValid(t *testing.T) {

	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30, cfg.MaxTimeLost())

	cfg.FrameRate = 60
	assert.Equal(t, 60, cfg.MaxTimeLost())
}

func TestConfigValidate(t *testing.T) {

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"high thresh above one", func(c *Config) { c.TrackHighThresh = 1.5 }},
		{"negative match thresh", func(c *Config) { c.MatchThresh = -0.1 }},
		{"lambda above one", func(c *Config) { c.Lambda = 2 }},
		{"low above high", func(c *Config) { c.TrackLowThresh = 0.7 }},
		{"negative appearance", func(c *Config) { c.AppearanceThresh = -1 }},
		{"zero frame rate", func(c *Config) { c.FrameRate = 0 }},
		{"negative buffer", func(c *Config) { c.TrackBuffer = -1 }},
		{"unknown gmc", func(c *Config) { c.GMCMethod = "optical" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfigUnknownGMCWrapsMethodError(t *testing.T) {

	cfg := DefaultConfig()
	cfg.GMCMethod = "sift"

	err := cfg.Validate()
	assert.ErrorIs(t, err, gmc.ErrUnknownMethod)

	_, err = NewBoTSORT(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfig(t *testing.T) {

	path := filepath.Join(t.TempDir(), "botsort.json")

	data := []byte(`{"track_high_thresh": 0.6, "track_buffer": 60, "gmc_method": "orb", "fuse_score": false}`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	want := DefaultConfig()
	want.TrackHighThresh = 0.6
	want.TrackBuffer = 60
	want.GMCMethod = "orb"
	want.FuseScore = false

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("LoadConfig mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigErrors(t *testing.T) {

	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"track_buffer": "long"}`), 0o644))

	_, err = LoadConfig(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"match_thresh": 3}`), 0o644))

	_, err = LoadConfig(invalid)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
