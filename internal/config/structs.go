//nolint:lll
package config

import (
	"time"

	"github.com/MeKo-Tech/titlecam/internal/detector"
	"github.com/MeKo-Tech/titlecam/internal/recognizer"
)

// Config represents the complete configuration of the titlecam application.
// It is loaded from a configuration file, a .env file, environment variables
// and command-line flags.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Pipeline   PipelineConfig    `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Camera     CameraConfig      `mapstructure:"camera" yaml:"camera" json:"camera"`
	Detector   detector.Config   `mapstructure:"detector" yaml:"detector" json:"detector"`
	Recognizer recognizer.Config `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`
	Server     ServerConfig      `mapstructure:"server" yaml:"server" json:"server"`
	History    HistoryConfig     `mapstructure:"history" yaml:"history" json:"history"`
}

// PipelineConfig contains capture loop settings.
type PipelineConfig struct {
	FramesBetweenDetection int           `mapstructure:"frames_between_detection" yaml:"frames_between_detection" json:"frames_between_detection"`
	PaddingWidth           float64       `mapstructure:"padding_width" yaml:"padding_width" json:"padding_width"`
	PaddingHeight          float64       `mapstructure:"padding_height" yaml:"padding_height" json:"padding_height"`
	DisplayReference       string        `mapstructure:"display_reference" yaml:"display_reference" json:"display_reference"`
	ResultDisplayDuration  time.Duration `mapstructure:"result_display_duration" yaml:"result_display_duration" json:"result_display_duration"`
	NotFoundText           string        `mapstructure:"not_found_text" yaml:"not_found_text" json:"not_found_text"`
	CropDebugDir           string        `mapstructure:"crop_debug_dir" yaml:"crop_debug_dir" json:"crop_debug_dir"`
}

// CameraConfig contains frame source settings.
type CameraConfig struct {
	FramesDir          string  `mapstructure:"frames_dir" yaml:"frames_dir" json:"frames_dir"`
	FPS                float64 `mapstructure:"fps" yaml:"fps" json:"fps"`
	Loop               bool    `mapstructure:"loop" yaml:"loop" json:"loop"`
	PreviewWidth       int     `mapstructure:"preview_width" yaml:"preview_width" json:"preview_width"`
	SnapshotBuffer     int     `mapstructure:"snapshot_buffer" yaml:"snapshot_buffer" json:"snapshot_buffer"`
	SensorLayout       bool    `mapstructure:"sensor_layout" yaml:"sensor_layout" json:"sensor_layout"`
	InitialOrientation string  `mapstructure:"initial_orientation" yaml:"initial_orientation" json:"initial_orientation"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host                string        `mapstructure:"host" yaml:"host" json:"host"`
	Port                int           `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin          string        `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	ReadTimeout         time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	ClientBuffer        int           `mapstructure:"client_buffer" yaml:"client_buffer" json:"client_buffer"`
	PreviewJPEGQuality  int           `mapstructure:"preview_jpeg_quality" yaml:"preview_jpeg_quality" json:"preview_jpeg_quality"`
	PreviewHashDistance int           `mapstructure:"preview_hash_distance" yaml:"preview_hash_distance" json:"preview_hash_distance"`
}

// HistoryConfig contains result persistence settings.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" json:"path"`
}
