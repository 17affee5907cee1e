// Package recognizer turns a cropped region of a snapshot into text.
package recognizer

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
)

// Level trades recognition speed for accuracy.
type Level string

const (
	LevelFast     Level = "fast"
	LevelAccurate Level = "accurate"
)

// ParseLevel accepts "fast" or "accurate".
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelFast:
		return LevelFast, nil
	case LevelAccurate:
		return LevelAccurate, nil
	}
	return "", fmt.Errorf("unknown recognition level: %q (must be fast or accurate)", s)
}

// Options tune a single recognition request.
type Options struct {
	Level              Level    `mapstructure:"level" yaml:"level" json:"level"`
	Languages          []string `mapstructure:"languages" yaml:"languages" json:"languages"`
	AutoDetectLanguage bool     `mapstructure:"auto_detect_language" yaml:"auto_detect_language" json:"auto_detect_language"`
	LanguageCorrection bool     `mapstructure:"language_correction" yaml:"language_correction" json:"language_correction"`
	// MinTextHeight is the smallest text line height kept, as a fraction of
	// the image height.
	MinTextHeight float64 `mapstructure:"min_text_height" yaml:"min_text_height" json:"min_text_height"`
	// ROI restricts recognition to a normalized region of the upright image.
	ROI           *geometry.Rect `mapstructure:"roi" yaml:"roi,omitempty" json:"roi,omitempty"`
	MaxCandidates int            `mapstructure:"max_candidates" yaml:"max_candidates" json:"max_candidates"`
}

// DefaultOptions mirrors the settings the capture app ships with.
func DefaultOptions() Options {
	return Options{
		Level:              LevelAccurate,
		Languages:          []string{"en"},
		AutoDetectLanguage: false,
		LanguageCorrection: true,
		MinTextHeight:      0.05,
		MaxCandidates:      2,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.Level != LevelFast && o.Level != LevelAccurate {
		return fmt.Errorf("invalid recognition level: %q", o.Level)
	}
	if o.MinTextHeight < 0 || o.MinTextHeight > 1 {
		return fmt.Errorf("min_text_height must be between 0 and 1, got %v", o.MinTextHeight)
	}
	if o.MaxCandidates < 1 {
		return fmt.Errorf("max_candidates must be at least 1, got %d", o.MaxCandidates)
	}
	if !o.AutoDetectLanguage && len(o.Languages) == 0 {
		return fmt.Errorf("at least one language is required unless auto_detect_language is set")
	}
	if o.ROI != nil && o.ROI.Clamp().IsEmpty() {
		return fmt.Errorf("roi %s has no area", o.ROI)
	}
	return nil
}

// Candidate is one reading of an observation.
type Candidate struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Observation is a text line found in the image. Candidates are ranked,
// best first.
type Observation struct {
	Box        geometry.Rect `json:"box"`
	Candidates []Candidate   `json:"candidates"`
}

// Top returns the best candidate text, or "" when there is none.
func (o Observation) Top() string {
	if len(o.Candidates) == 0 {
		return ""
	}
	return o.Candidates[0].Text
}

// Recognizer reads text from img, a raw buffer captured with orientation o.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, o geometry.Orientation, opts Options) ([]Observation, error)
}

// Func adapts a function to Recognizer.
type Func func(ctx context.Context, img image.Image, o geometry.Orientation, opts Options) ([]Observation, error)

// Recognize implements Recognizer.
func (f Func) Recognize(ctx context.Context, img image.Image, o geometry.Orientation, opts Options) ([]Observation, error) {
	return f(ctx, img, o, opts)
}

const (
	BackendAzure = "azure"
	BackendNone  = "none"
)

// Config selects a backend and the default request options.
type Config struct {
	Backend string      `mapstructure:"backend" yaml:"backend" json:"backend"`
	Azure   AzureConfig `mapstructure:"azure" yaml:"azure" json:"azure"`
	Options Options     `mapstructure:"options" yaml:"options" json:"options"`
}

// DefaultConfig returns the azure backend with default options.
func DefaultConfig() Config {
	return Config{
		Backend: BackendAzure,
		Azure:   DefaultAzureConfig(),
		Options: DefaultOptions(),
	}
}

// New builds the configured backend.
func New(cfg Config) (Recognizer, error) {
	switch cfg.Backend {
	case BackendAzure:
		return NewAzure(cfg.Azure)
	case BackendNone:
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown recognizer backend: %q", cfg.Backend)
	}
}

// None recognizes nothing; used for preview-only setups.
type None struct{}

// Recognize implements Recognizer.
func (None) Recognize(ctx context.Context, _ image.Image, _ geometry.Orientation, _ Options) ([]Observation, error) {
	return nil, ctx.Err()
}
