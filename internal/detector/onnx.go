package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/mempool"
	"github.com/MeKo-Tech/titlecam/internal/utils"
	"github.com/yalue/onnxruntime_go"
)

// ONNXConfig configures the ONNX Runtime object detector.
type ONNXConfig struct {
	ModelPath      string    `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LibraryPath    string    `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	InputSize      int       `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	ScoreThreshold float64   `mapstructure:"score_threshold" yaml:"score_threshold" json:"score_threshold"`
	IoUThreshold   float64   `mapstructure:"iou_threshold" yaml:"iou_threshold" json:"iou_threshold"`
	MaxDetections  int       `mapstructure:"max_detections" yaml:"max_detections" json:"max_detections"`
	Classes        []int     `mapstructure:"classes" yaml:"classes" json:"classes"`
	NumThreads     int       `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	GPU            GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// DefaultONNXConfig returns defaults.
func DefaultONNXConfig() ONNXConfig {
	return ONNXConfig{
		ModelPath:      "models/title_detector.onnx",
		InputSize:      640,
		ScoreThreshold: 0.5,
		IoUThreshold:   0.45,
		MaxDetections:  5,
	}
}

// ONNXDetector runs a single-input box detection model.
type ONNXDetector struct {
	cfg        ONNXConfig
	size       int
	session    *onnxruntime_go.DynamicAdvancedSession
	inputInfo  onnxruntime_go.InputOutputInfo
	outputInfo onnxruntime_go.InputOutputInfo
	mu         sync.Mutex
}

// NewONNXDetector loads the model and creates the session.
func NewONNXDetector(cfg ONNXConfig) (*ONNXDetector, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path cannot be empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	slog.Debug("Initializing detector",
		"model_path", cfg.ModelPath,
		"gpu_enabled", cfg.GPU.UseGPU,
		"score_threshold", cfg.ScoreThreshold,
		"iou_threshold", cfg.IoUThreshold)

	if err := setupONNXEnvironment(cfg.LibraryPath, cfg.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputInfo, outputInfo, err := validateModelInfo(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	size, err := inputSize(inputInfo, cfg.InputSize)
	if err != nil {
		return nil, err
	}

	session, err := createSession(cfg.ModelPath, inputInfo, outputInfo, cfg)
	if err != nil {
		return nil, err
	}

	slog.Debug("Detector initialized successfully", "input_size", size)
	return &ONNXDetector{
		cfg:        cfg,
		size:       size,
		session:    session,
		inputInfo:  inputInfo,
		outputInfo: outputInfo,
	}, nil
}

// Close releases the session.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			slog.Warn("failed to destroy detector session", "error", err)
		}
		d.session = nil
	}
	return nil
}

// InputSize returns the square model input side.
func (d *ONNXDetector) InputSize() int { return d.size }

// Detect implements Detector. The raw image is made upright first so the
// model always sees the picture the way a person would.
func (d *ONNXDetector) Detect(ctx context.Context, img image.Image, o geometry.Orientation) ([]geometry.Rect, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, errors.New("input image is nil")
	}

	start := time.Now()
	upright := utils.Upright(img, o)
	resized, err := utils.ResizeExact(upright, d.size, d.size)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}
	data, w, h, err := utils.NormalizeImage(resized)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}

	output, shape, err := d.run(data, w, h)
	mempool.PutFloat32(data)
	if err != nil {
		return nil, err
	}

	dets, err := DecodeRows(output, shape, d.size, d.cfg.ScoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("postprocessing failed: %w", err)
	}
	dets = filterClasses(dets, d.cfg.Classes)
	dets = Suppress(dets, d.cfg.IoUThreshold, d.cfg.MaxDetections)

	slog.Debug("detection finished",
		"orientation", o.String(),
		"exif", o.EXIF(),
		"detections", len(dets),
		"duration_ms", time.Since(start).Milliseconds())
	return Boxes(dets), nil
}

func (d *ONNXDetector) run(data []float32, w, h int) ([]float32, []int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil, nil, errors.New("detector session is closed")
	}

	input, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(1, 3, int64(h), int64(w)), data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := input.Destroy(); err != nil {
			slog.Warn("failed to destroy input tensor", "error", err)
		}
	}()

	outputs := []onnxruntime_go.Value{nil}
	if err := d.session.Run([]onnxruntime_go.Value{input}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		if err := outputs[0].Destroy(); err != nil {
			slog.Warn("failed to destroy output tensor", "error", err)
		}
	}()

	tensor, ok := outputs[0].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("expected float32 tensor, got %T", outputs[0])
	}
	// GetData aliases tensor memory that Destroy frees.
	src := tensor.GetData()
	out := make([]float32, len(src))
	copy(out, src)
	return out, []int64(tensor.GetShape()), nil
}
