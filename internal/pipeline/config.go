package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/recognizer"
)

// Config holds the pipeline tuning knobs.
type Config struct {
	// FramesBetweenDetection is how many preview frames reuse the previous
	// boxes before the detector runs again.
	FramesBetweenDetection int
	// PaddingWidth and PaddingHeight inflate the detected box on each side,
	// as a fraction of its size, before cropping.
	PaddingWidth  float64
	PaddingHeight float64
	// DisplayReference is the orientation preview output is expressed in.
	DisplayReference geometry.Orientation
	// ResultDisplayDuration is how long a snapshot result stays visible.
	ResultDisplayDuration time.Duration
	NotFoundText          string
	// CropDebugDir, when set, receives a PNG of every snapshot crop.
	CropDebugDir string
	Recognition  recognizer.Options
}

// DefaultConfig returns the defaults the capture app ships with.
func DefaultConfig() Config {
	return Config{
		FramesBetweenDetection: 2,
		PaddingWidth:           0.05,
		PaddingHeight:          0.05,
		DisplayReference:       geometry.Up,
		ResultDisplayDuration:  2 * time.Second,
		NotFoundText:           "\U0001F937",
		Recognition:            recognizer.DefaultOptions(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.FramesBetweenDetection < 0 {
		return fmt.Errorf("frames_between_detection must be >= 0, got %d", c.FramesBetweenDetection)
	}
	if c.PaddingWidth < 0 || c.PaddingHeight < 0 {
		return errors.New("padding factors must be >= 0")
	}
	if !c.DisplayReference.Valid() {
		return fmt.Errorf("invalid display reference: %v", c.DisplayReference)
	}
	if c.ResultDisplayDuration <= 0 {
		return fmt.Errorf("result_display_duration must be positive, got %s", c.ResultDisplayDuration)
	}
	if err := c.Recognition.Validate(); err != nil {
		return fmt.Errorf("recognition: %w", err)
	}
	return nil
}
