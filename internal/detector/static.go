package detector

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
)

// StaticConfig holds the fixed region reported by the static backend, in
// upright normalized coordinates.
type StaticConfig struct {
	Region geometry.Rect `mapstructure:"region" yaml:"region" json:"region"`
}

// DefaultStaticConfig covers the central half of the picture.
func DefaultStaticConfig() StaticConfig {
	return StaticConfig{Region: geometry.NewRect(0.25, 0.25, 0.5, 0.5)}
}

// Static always reports the same region. Useful for fixed-mount rigs where
// the title card never moves.
type Static struct {
	region geometry.Rect
}

// NewStatic validates the region.
func NewStatic(cfg StaticConfig) (*Static, error) {
	r := cfg.Region.Clamp()
	if r.IsEmpty() {
		return nil, fmt.Errorf("static detector: region %s has no area inside the picture", cfg.Region)
	}
	return &Static{region: r}, nil
}

// Detect implements Detector.
func (s *Static) Detect(ctx context.Context, img image.Image, _ geometry.Orientation) ([]geometry.Rect, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, errors.New("static detector: nil image")
	}
	return []geometry.Rect{s.region}, nil
}
