package detector

import (
	"context"
	"image"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	d, err := NewStatic(StaticConfig{Region: geometry.NewRect(0.8, 0.1, 0.4, 0.2)})
	require.NoError(t, err)

	img := image.NewGray(image.Rect(0, 0, 4, 4))
	boxes, err := d.Detect(context.Background(), img, geometry.Right)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.True(t, boxes[0].ApproxEqual(geometry.NewRect(0.8, 0.1, 0.2, 0.2), 1e-9))

	_, err = d.Detect(context.Background(), nil, geometry.Up)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Detect(ctx, img, geometry.Up)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewStatic_RejectsEmptyRegion(t *testing.T) {
	_, err := NewStatic(StaticConfig{Region: geometry.NewRect(1.2, 0, 0.2, 0.2)})
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendStatic
	d, closer, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.NoError(t, closer.Close())

	cfg.Backend = "magic"
	_, _, err = New(cfg)
	require.Error(t, err)

	cfg.Backend = BackendONNX
	cfg.ONNX.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")
	_, _, err = New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")

	cfg.ONNX.ModelPath = ""
	_, _, err = New(cfg)
	require.Error(t, err)
}

func TestFunc(t *testing.T) {
	var got geometry.Orientation
	d := Func(func(_ context.Context, _ image.Image, o geometry.Orientation) ([]geometry.Rect, error) {
		got = o
		return nil, nil
	})
	_, err := d.Detect(context.Background(), nil, geometry.Left)
	require.NoError(t, err)
	assert.Equal(t, geometry.Left, got)
}

func TestDefaultONNXConfig(t *testing.T) {
	cfg := DefaultONNXConfig()
	assert.Equal(t, 640, cfg.InputSize)
	assert.Greater(t, cfg.ScoreThreshold, 0.0)
	assert.Greater(t, cfg.MaxDetections, 0)
}
