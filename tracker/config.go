package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/swdee/go-botsort/gmc"
)

// ErrInvalidConfig is returned by Validate for out of range settings
var ErrInvalidConfig = errors.New("invalid tracker config")

// Config holds the BoT-SORT tuning parameters.  The JSON field names match
// the option names used by the reference tracker so existing parameter
// files can be loaded directly.
type Config struct {
	// TrackHighThresh splits detections into the high (>=) and low
	// confidence sets
	TrackHighThresh float32 `json:"track_high_thresh"`
	// TrackLowThresh is the confidence at or below which detections are
	// discarded
	TrackLowThresh float32 `json:"track_low_thresh"`
	// NewTrackThresh is the minimum confidence for an unmatched detection
	// to start a new track
	NewTrackThresh float32 `json:"new_track_thresh"`
	// TrackBuffer is the number of frames, at 30 FPS, a lost track is kept
	TrackBuffer int `json:"track_buffer"`
	// MatchThresh is the cost cutoff of the first association
	MatchThresh float32 `json:"match_thresh"`
	// SecondMatchThresh is the cost cutoff of the low confidence association
	SecondMatchThresh float32 `json:"second_match_thresh"`
	// UnconfirmedMatchThresh is the cost cutoff when matching unconfirmed
	// tracks
	UnconfirmedMatchThresh float32 `json:"unconfirmed_match_thresh"`
	// ProximityThresh is the IoU distance above which appearance is ignored
	ProximityThresh float32 `json:"proximity_thresh"`
	// AppearanceThresh is the embedding distance above which appearance is
	// ignored
	AppearanceThresh float32 `json:"appearance_thresh"`
	// GMCMethod names the camera motion compensation method
	GMCMethod string `json:"gmc_method"`
	// FrameRate of the video stream
	FrameRate int `json:"frame_rate"`
	// Lambda weights the geometric cost against the appearance cost
	Lambda float32 `json:"lambda"`
	// FuseScore scales the IoU cost by detection confidence
	FuseScore bool `json:"fuse_score"`
	// FeatureAlpha is the EMA momentum of a track's smoothed embedding
	FeatureAlpha float32 `json:"feature_alpha"`
}

// DefaultConfig returns the BoT-SORT default parameters
func DefaultConfig() Config {
	return Config{
		TrackHighThresh:        0.5,
		TrackLowThresh:         0.1,
		NewTrackThresh:         0.6,
		TrackBuffer:            30,
		MatchThresh:            0.8,
		SecondMatchThresh:      0.5,
		UnconfirmedMatchThresh: 0.7,
		ProximityThresh:        0.5,
		AppearanceThresh:       0.25,
		GMCMethod:              gmc.SparseOptFlow.String(),
		FrameRate:              30,
		Lambda:                 0.985,
		FuseScore:              true,
		FeatureAlpha:           0.9,
	}
}

// LoadConfig reads a JSON config file.  Fields missing from the file keep
// their DefaultConfig value.
func LoadConfig(path string) (Config, error) {

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)

	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// MaxTimeLost returns the number of frames a track may stay lost, the track
// buffer scaled by the frame rate
func (c Config) MaxTimeLost() int {
	return int(float32(c.FrameRate) / 30.0 * float32(c.TrackBuffer))
}

// Validate checks that every parameter is in range
func (c Config) Validate() error {

	unit := []struct {
		name string
		v    float32
	}{
		{"track_high_thresh", c.TrackHighThresh},
		{"track_low_thresh", c.TrackLowThresh},
		{"new_track_thresh", c.NewTrackThresh},
		{"match_thresh", c.MatchThresh},
		{"second_match_thresh", c.SecondMatchThresh},
		{"unconfirmed_match_thresh", c.UnconfirmedMatchThresh},
		{"proximity_thresh", c.ProximityThresh},
		{"lambda", c.Lambda},
		{"feature_alpha", c.FeatureAlpha},
	}

	for _, u := range unit {
		if u.v < 0 || u.v > 1 {
			return fmt.Errorf("%w: %s=%v must be within [0,1]", ErrInvalidConfig, u.name, u.v)
		}
	}

	if c.AppearanceThresh < 0 {
		return fmt.Errorf("%w: appearance_thresh=%v must not be negative",
			ErrInvalidConfig, c.AppearanceThresh)
	}

	if c.TrackLowThresh > c.TrackHighThresh {
		return fmt.Errorf("%w: track_low_thresh %v above track_high_thresh %v",
			ErrInvalidConfig, c.TrackLowThresh, c.TrackHighThresh)
	}

	if c.FrameRate <= 0 {
		return fmt.Errorf("%w: frame_rate=%d must be positive", ErrInvalidConfig, c.FrameRate)
	}

	if c.TrackBuffer < 0 {
		return fmt.Errorf("%w: track_buffer=%d must not be negative", ErrInvalidConfig, c.TrackBuffer)
	}

	if _, err := gmc.ParseMethod(c.GMCMethod); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}
