package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/detector"
	"github.com/MeKo-Tech/titlecam/internal/recognizer"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	t.Chdir(t.TempDir())
	return NewLoaderWithViper(viper.New())
}

func TestLoadWithNoConfigFile(t *testing.T) {
	l := newTestLoader(t)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Pipeline, cfg.Pipeline)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
	assert.Empty(t, l.GetConfigFileUsed())
}

func TestLoadFromYAMLFile(t *testing.T) {
	l := newTestLoader(t)
	content := `
log_level: debug
pipeline:
  frames_between_detection: 4
  display_reference: right
  result_display_duration: 3s
camera:
  frames_dir: /srv/frames
  fps: 15
detector:
  backend: static
  static:
    region:
      x: 0.1
      y: 0.2
      width: 0.3
      height: 0.4
recognizer:
  backend: none
  options:
    level: fast
    languages: [en, de]
server:
  port: 9090
`
	require.NoError(t, os.WriteFile("titlecam.yaml", []byte(content), 0o600))

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Pipeline.FramesBetweenDetection)
	assert.Equal(t, "right", cfg.Pipeline.DisplayReference)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.ResultDisplayDuration)
	assert.InDelta(t, 0.05, cfg.Pipeline.PaddingWidth, 1e-12, "unset keys keep defaults")
	assert.Equal(t, "/srv/frames", cfg.Camera.FramesDir)
	assert.InDelta(t, 15.0, cfg.Camera.FPS, 1e-12)
	assert.Equal(t, detector.BackendStatic, cfg.Detector.Backend)
	assert.InDelta(t, 0.4, cfg.Detector.Static.Region.Height, 1e-12)
	assert.Equal(t, recognizer.BackendNone, cfg.Recognizer.Backend)
	assert.Equal(t, recognizer.LevelFast, cfg.Recognizer.Options.Level)
	assert.Equal(t, []string{"en", "de"}, cfg.Recognizer.Options.Languages)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Contains(t, l.GetConfigFileUsed(), "titlecam.yaml")
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	l := newTestLoader(t)
	t.Setenv("TITLECAM_SERVER_PORT", "7070")
	t.Setenv("TITLECAM_PIPELINE_FRAMES_BETWEEN_DETECTION", "0")
	t.Setenv("TITLECAM_RECOGNIZER_AZURE_ENDPOINT", "https://vision.example.com/")

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 0, cfg.Pipeline.FramesBetweenDetection)
	assert.Equal(t, "https://vision.example.com/", cfg.Recognizer.Azure.Endpoint)
}

func TestLoadDotEnvFile(t *testing.T) {
	l := newTestLoader(t)
	t.Setenv("TITLECAM_HISTORY_PATH", "from-env.db")
	require.NoError(t, os.WriteFile(".env",
		[]byte("TITLECAM_RECOGNIZER_AZURE_KEY=secret\nTITLECAM_HISTORY_PATH=from-dotenv.db\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TITLECAM_RECOGNIZER_AZURE_KEY") })

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Recognizer.Azure.Key)
	assert.Equal(t, "from-env.db", cfg.History.Path, "real environment wins over .env")
}

func TestLoadInvalidConfig(t *testing.T) {
	l := newTestLoader(t)
	require.NoError(t, os.WriteFile("titlecam.yaml", []byte("camera:\n  fps: -1\n"), 0o600))

	_, err := l.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fps")

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithoutValidation()
	require.NoError(t, err)
	assert.InDelta(t, -1.0, cfg.Camera.FPS, 1e-12)
}

func TestLoadWithFile(t *testing.T) {
	l := newTestLoader(t)
	_, err := l.LoadWithFile("missing.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  host: 0.0.0.0\n"), 0o600))
	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestGenerateDefaultConfigFileRoundTrip(t *testing.T) {
	l := newTestLoader(t)
	require.NoError(t, GenerateDefaultConfigFile(""))

	_, err := os.Stat("titlecam.yaml")
	require.NoError(t, err)

	cfg, err := l.Load()
	require.NoError(t, err)
	want := DefaultConfig()
	assert.Equal(t, want.Pipeline, cfg.Pipeline)
	assert.Equal(t, want.Camera, cfg.Camera)
	assert.Equal(t, want.Server, cfg.Server)
	assert.Equal(t, want.History, cfg.History)
	assert.Equal(t, want.Recognizer.Options.Languages, cfg.Recognizer.Options.Languages)
	assert.Equal(t, want.Detector.Static.Region, cfg.Detector.Static.Region)
}

func TestGetConfigSearchPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	paths := GetConfigSearchPaths()
	assert.Equal(t, ".", paths[0])
	assert.Contains(t, paths, filepath.Join("/xdg", "titlecam"))
	assert.Equal(t, "/etc/titlecam", paths[len(paths)-1])
}
