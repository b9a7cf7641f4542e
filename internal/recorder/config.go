package recorder

import (
	"errors"
	"fmt"
	"time"

	"github.com/petems/voxgate/internal/audio"
)

// Config holds every tunable of a recording. There are no implicit
// defaults: zero values are rejected by Validate.
type Config struct {
	Format audio.Format

	// MinSpeech is the voiced time required before silence can end a recording.
	MinSpeech time.Duration
	// SilenceHang is the trailing silence that ends a recording.
	SilenceHang time.Duration
	// MaxDuration caps the recording regardless of voice activity.
	MaxDuration time.Duration
	// MinRecording is the shortest finalized recording that is accepted.
	MinRecording time.Duration

	// Threshold is the normalized energy for sustained voicing.
	Threshold float64
	// StartThreshold is the normalized energy for speech onset.
	StartThreshold float64

	// AutoStart begins recording without waiting for Start.
	AutoStart bool
	// OutputDir receives the artifact.
	OutputDir string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if err := c.Format.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MinSpeech <= 0 {
		errs = append(errs, fmt.Errorf("min speech must be positive, got %s", c.MinSpeech))
	}
	if c.SilenceHang <= 0 {
		errs = append(errs, fmt.Errorf("silence hang must be positive, got %s", c.SilenceHang))
	}
	if c.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("max duration must be positive, got %s", c.MaxDuration))
	}
	if c.MinRecording < 0 {
		errs = append(errs, fmt.Errorf("min recording must not be negative, got %s", c.MinRecording))
	}
	if c.MinSpeech > c.MaxDuration {
		errs = append(errs, fmt.Errorf("min speech %s exceeds max duration %s", c.MinSpeech, c.MaxDuration))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output dir is required"))
	}
	return errors.Join(errs...)
}
