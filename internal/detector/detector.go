// Package detector finds the region of interest in a camera frame.
//
// Every backend returns boxes in normalized coordinates of the upright
// picture; callers rotate them back to the sensor layout with
// geometry.RotateToMatch.
package detector

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
)

// Detector locates regions of interest in a raw sensor image captured with
// orientation o. An empty slice means nothing was found.
type Detector interface {
	Detect(ctx context.Context, img image.Image, o geometry.Orientation) ([]geometry.Rect, error)
}

// Func adapts a plain function to Detector.
type Func func(ctx context.Context, img image.Image, o geometry.Orientation) ([]geometry.Rect, error)

// Detect implements Detector.
func (f Func) Detect(ctx context.Context, img image.Image, o geometry.Orientation) ([]geometry.Rect, error) {
	return f(ctx, img, o)
}

const (
	BackendONNX   = "onnx"
	BackendStatic = "static"
)

// Config selects and configures a backend.
type Config struct {
	Backend string       `mapstructure:"backend" yaml:"backend" json:"backend"`
	ONNX    ONNXConfig   `mapstructure:"onnx" yaml:"onnx" json:"onnx"`
	Static  StaticConfig `mapstructure:"static" yaml:"static" json:"static"`
}

// DefaultConfig returns the ONNX backend with default settings.
func DefaultConfig() Config {
	return Config{
		Backend: BackendONNX,
		ONNX:    DefaultONNXConfig(),
		Static:  DefaultStaticConfig(),
	}
}

// New builds the configured backend. The returned closer releases backend
// resources and is never nil.
func New(cfg Config) (Detector, io.Closer, error) {
	switch cfg.Backend {
	case BackendONNX:
		d, err := NewONNXDetector(cfg.ONNX)
		if err != nil {
			return nil, nil, err
		}
		return d, d, nil
	case BackendStatic:
		d, err := NewStatic(cfg.Static)
		if err != nil {
			return nil, nil, err
		}
		return d, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown detector backend: %q", cfg.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
