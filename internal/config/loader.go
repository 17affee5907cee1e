package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "titlecam"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "TITLECAM"

	// DefaultEnvFile is read before environment variables are resolved.
	DefaultEnvFile = ".env"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v       *viper.Viper
	envFile string
}

// NewLoader creates a loader on the global viper instance so cobra flag
// bindings are honoured.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper(), envFile: DefaultEnvFile}
}

// NewLoaderWithViper creates a loader on v.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v, envFile: DefaultEnvFile}
}

// SetEnvFile changes the dotenv file; "" disables it.
func (l *Loader) SetEnvFile(path string) { l.envFile = path }

// Load searches the standard locations for a configuration file, then
// applies the .env file, environment variables and defaults.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	return l.load(true, false)
}

// LoadWithFile loads configuration from a specific file path. An empty path
// falls back to Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}
	l.v.SetConfigFile(configFile)
	return l.load(true, true)
}

// LoadWithoutValidation is Load without the final Validate call.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	return l.load(false, false)
}

func (l *Loader) load(validate, fileRequired bool) (*Config, error) {
	if err := l.loadEnvFile(); err != nil {
		return nil, err
	}
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if fileRequired || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &cfg, nil
}

// loadEnvFile exports the variables of the dotenv file. Variables already
// set in the environment win.
func (l *Loader) loadEnvFile() error {
	if l.envFile == "" {
		return nil
	}
	if err := godotenv.Load(l.envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error reading env file %s: %w", l.envFile, err)
	}
	return nil
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper { return l.v }

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string { return l.v.ConfigFileUsed() }

// GetResolvedConfig returns every resolved setting.
func (l *Loader) GetResolvedConfig() map[string]any { return l.v.AllSettings() }

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so environment variables can override it.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("pipeline.frames_between_detection", d.Pipeline.FramesBetweenDetection)
	l.v.SetDefault("pipeline.padding_width", d.Pipeline.PaddingWidth)
	l.v.SetDefault("pipeline.padding_height", d.Pipeline.PaddingHeight)
	l.v.SetDefault("pipeline.display_reference", d.Pipeline.DisplayReference)
	l.v.SetDefault("pipeline.result_display_duration", d.Pipeline.ResultDisplayDuration)
	l.v.SetDefault("pipeline.not_found_text", d.Pipeline.NotFoundText)
	l.v.SetDefault("pipeline.crop_debug_dir", d.Pipeline.CropDebugDir)

	l.v.SetDefault("camera.frames_dir", d.Camera.FramesDir)
	l.v.SetDefault("camera.fps", d.Camera.FPS)
	l.v.SetDefault("camera.loop", d.Camera.Loop)
	l.v.SetDefault("camera.preview_width", d.Camera.PreviewWidth)
	l.v.SetDefault("camera.snapshot_buffer", d.Camera.SnapshotBuffer)
	l.v.SetDefault("camera.sensor_layout", d.Camera.SensorLayout)
	l.v.SetDefault("camera.initial_orientation", d.Camera.InitialOrientation)

	l.v.SetDefault("detector.backend", d.Detector.Backend)
	l.v.SetDefault("detector.onnx.model_path", d.Detector.ONNX.ModelPath)
	l.v.SetDefault("detector.onnx.library_path", d.Detector.ONNX.LibraryPath)
	l.v.SetDefault("detector.onnx.input_size", d.Detector.ONNX.InputSize)
	l.v.SetDefault("detector.onnx.score_threshold", d.Detector.ONNX.ScoreThreshold)
	l.v.SetDefault("detector.onnx.iou_threshold", d.Detector.ONNX.IoUThreshold)
	l.v.SetDefault("detector.onnx.max_detections", d.Detector.ONNX.MaxDetections)
	l.v.SetDefault("detector.onnx.classes", d.Detector.ONNX.Classes)
	l.v.SetDefault("detector.onnx.num_threads", d.Detector.ONNX.NumThreads)
	l.v.SetDefault("detector.onnx.gpu.use_gpu", d.Detector.ONNX.GPU.UseGPU)
	l.v.SetDefault("detector.onnx.gpu.device_id", d.Detector.ONNX.GPU.DeviceID)
	l.v.SetDefault("detector.onnx.gpu.gpu_mem_limit", d.Detector.ONNX.GPU.GPUMemLimit)
	l.v.SetDefault("detector.static.region.x", d.Detector.Static.Region.X)
	l.v.SetDefault("detector.static.region.y", d.Detector.Static.Region.Y)
	l.v.SetDefault("detector.static.region.width", d.Detector.Static.Region.Width)
	l.v.SetDefault("detector.static.region.height", d.Detector.Static.Region.Height)

	l.v.SetDefault("recognizer.backend", d.Recognizer.Backend)
	l.v.SetDefault("recognizer.azure.endpoint", d.Recognizer.Azure.Endpoint)
	l.v.SetDefault("recognizer.azure.key", d.Recognizer.Azure.Key)
	l.v.SetDefault("recognizer.azure.jpeg_quality", d.Recognizer.Azure.JPEGQuality)
	l.v.SetDefault("recognizer.options.level", string(d.Recognizer.Options.Level))
	l.v.SetDefault("recognizer.options.languages", d.Recognizer.Options.Languages)
	l.v.SetDefault("recognizer.options.auto_detect_language", d.Recognizer.Options.AutoDetectLanguage)
	l.v.SetDefault("recognizer.options.language_correction", d.Recognizer.Options.LanguageCorrection)
	l.v.SetDefault("recognizer.options.min_text_height", d.Recognizer.Options.MinTextHeight)
	l.v.SetDefault("recognizer.options.max_candidates", d.Recognizer.Options.MaxCandidates)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.client_buffer", d.Server.ClientBuffer)
	l.v.SetDefault("server.preview_jpeg_quality", d.Server.PreviewJPEGQuality)
	l.v.SetDefault("server.preview_hash_distance", d.Server.PreviewHashDistance)

	l.v.SetDefault("history.enabled", d.History.Enabled)
	l.v.SetDefault("history.path", d.History.Path)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(configDir, "titlecam"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "titlecam"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}
	return append(paths, "/etc/titlecam")
}

// WriteYAML writes cfg as YAML to path.
func WriteYAML(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// GenerateDefaultConfigFile writes the default configuration to filename
// (titlecam.yaml when empty).
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return WriteYAML(filename, DefaultConfig())
}
