// Package config defines the titlecam configuration, its defaults and
// validation, and converts it into the settings of each component.
package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/MeKo-Tech/titlecam/internal/camera"
	"github.com/MeKo-Tech/titlecam/internal/detector"
	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/orientation"
	"github.com/MeKo-Tech/titlecam/internal/pipeline"
	"github.com/MeKo-Tech/titlecam/internal/recognizer"
	"github.com/MeKo-Tech/titlecam/internal/server"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	p := pipeline.DefaultConfig()
	feed := camera.DefaultFeedConfig()
	srv := server.DefaultConfig()
	hub := server.DefaultHubConfig()

	return Config{
		LogLevel: "info",
		Pipeline: PipelineConfig{
			FramesBetweenDetection: p.FramesBetweenDetection,
			PaddingWidth:           p.PaddingWidth,
			PaddingHeight:          p.PaddingHeight,
			DisplayReference:       p.DisplayReference.String(),
			ResultDisplayDuration:  p.ResultDisplayDuration,
			NotFoundText:           p.NotFoundText,
		},
		Camera: CameraConfig{
			FramesDir:          "frames",
			FPS:                10,
			Loop:               true,
			PreviewWidth:       feed.PreviewWidth,
			SnapshotBuffer:     feed.SnapshotBuffer,
			SensorLayout:       feed.SensorLayout,
			InitialOrientation: orientation.DefaultOrientation.String(),
		},
		Detector:   detector.DefaultConfig(),
		Recognizer: recognizer.DefaultConfig(),
		Server: ServerConfig{
			Host:                srv.Host,
			Port:                srv.Port,
			CORSOrigin:          srv.CORSOrigin,
			ReadTimeout:         srv.ReadTimeout,
			ShutdownTimeout:     srv.ShutdownTimeout,
			ClientBuffer:        hub.ClientBuffer,
			PreviewJPEGQuality:  hub.JPEGQuality,
			PreviewHashDistance: hub.PreviewHashDistance,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "titlecam.db",
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log_level %q (must be one of %v)", c.LogLevel, validLogLevels)
	}
	if _, err := c.ToPipelineConfig(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.validateCamera(); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if err := c.validateDetector(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := c.validateRecognizer(); err != nil {
		return fmt.Errorf("recognizer: %w", err)
	}
	if err := c.ToServerConfig().Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if c.Server.PreviewJPEGQuality < 1 || c.Server.PreviewJPEGQuality > 100 {
		return fmt.Errorf("server: preview_jpeg_quality must be in [1,100], got %d", c.Server.PreviewJPEGQuality)
	}
	if c.History.Enabled && c.History.Path == "" {
		return errors.New("history: path is required when enabled")
	}
	return nil
}

func (c *Config) validateCamera() error {
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %v", c.Camera.FPS)
	}
	if c.Camera.PreviewWidth < 0 {
		return fmt.Errorf("preview_width must be >= 0, got %d", c.Camera.PreviewWidth)
	}
	if c.Camera.SnapshotBuffer < 1 {
		return fmt.Errorf("snapshot_buffer must be >= 1, got %d", c.Camera.SnapshotBuffer)
	}
	if _, err := geometry.ParseOrientation(c.Camera.InitialOrientation); err != nil {
		return fmt.Errorf("initial_orientation: %w", err)
	}
	return nil
}

func (c *Config) validateDetector() error {
	switch c.Detector.Backend {
	case detector.BackendONNX:
		o := c.Detector.ONNX
		if err := validateThreshold(o.ScoreThreshold, "score_threshold"); err != nil {
			return err
		}
		if err := validateThreshold(o.IoUThreshold, "iou_threshold"); err != nil {
			return err
		}
		if o.InputSize <= 0 {
			return fmt.Errorf("input_size must be positive, got %d", o.InputSize)
		}
	case detector.BackendStatic:
		if c.Detector.Static.Region.Clamp().IsEmpty() {
			return errors.New("static region is empty")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Detector.Backend)
	}
	return nil
}

func (c *Config) validateRecognizer() error {
	switch c.Recognizer.Backend {
	case recognizer.BackendAzure, recognizer.BackendNone:
	default:
		return fmt.Errorf("unknown backend %q", c.Recognizer.Backend)
	}
	return c.Recognizer.Options.Validate()
}

// ToPipelineConfig converts to the pipeline settings.
func (c *Config) ToPipelineConfig() (pipeline.Config, error) {
	display, err := geometry.ParseOrientation(c.Pipeline.DisplayReference)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("display_reference: %w", err)
	}
	p := pipeline.Config{
		FramesBetweenDetection: c.Pipeline.FramesBetweenDetection,
		PaddingWidth:           c.Pipeline.PaddingWidth,
		PaddingHeight:          c.Pipeline.PaddingHeight,
		DisplayReference:       display,
		ResultDisplayDuration:  c.Pipeline.ResultDisplayDuration,
		NotFoundText:           c.Pipeline.NotFoundText,
		CropDebugDir:           c.Pipeline.CropDebugDir,
		Recognition:            c.Recognizer.Options,
	}
	return p, p.Validate()
}

// ToFileCameraConfig converts to the file camera settings.
func (c *Config) ToFileCameraConfig() camera.FileCameraConfig {
	return camera.FileCameraConfig{
		Dir:  c.Camera.FramesDir,
		FPS:  c.Camera.FPS,
		Loop: c.Camera.Loop,
		Feed: camera.FeedConfig{
			PreviewWidth:   c.Camera.PreviewWidth,
			SnapshotBuffer: c.Camera.SnapshotBuffer,
			SensorLayout:   c.Camera.SensorLayout,
		},
	}
}

// InitialOrientation returns the orientation the tracker starts with.
func (c *Config) InitialOrientation() geometry.Orientation {
	o, err := geometry.ParseOrientation(c.Camera.InitialOrientation)
	if err != nil {
		return orientation.DefaultOrientation
	}
	return o
}

// ToServerConfig converts to the HTTP server settings.
func (c *Config) ToServerConfig() server.Config {
	return server.Config{
		Host:            c.Server.Host,
		Port:            c.Server.Port,
		CORSOrigin:      c.Server.CORSOrigin,
		ReadTimeout:     c.Server.ReadTimeout,
		ShutdownTimeout: c.Server.ShutdownTimeout,
		NotFoundText:    c.Pipeline.NotFoundText,
	}
}

// ToHubConfig converts to the display hub settings.
func (c *Config) ToHubConfig() server.HubConfig {
	return server.HubConfig{
		ClientBuffer:        c.Server.ClientBuffer,
		JPEGQuality:         c.Server.PreviewJPEGQuality,
		PreviewHashDistance: c.Server.PreviewHashDistance,
		NotFoundText:        c.Pipeline.NotFoundText,
	}
}

func validateThreshold(value float64, name string) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("%s must be in [0,1], got %v", name, value)
	}
	return nil
}
