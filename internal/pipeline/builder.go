package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/camera"
	"github.com/MeKo-Tech/titlecam/internal/detector"
	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/recognizer"
)

// Builder constructs a Coordinator with fluent configuration.
type Builder struct {
	cfg       Config
	cam       camera.Camera
	det       detector.Detector
	rec       recognizer.Recognizer
	sink      PreviewSink
	presenter Presenter
	recorder  Recorder
}

// NewBuilder creates a builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithFramesBetweenDetection sets the throttling interval.
func (b *Builder) WithFramesBetweenDetection(n int) *Builder {
	b.cfg.FramesBetweenDetection = n
	return b
}

// WithPadding sets the crop padding factors.
func (b *Builder) WithPadding(width, height float64) *Builder {
	b.cfg.PaddingWidth = width
	b.cfg.PaddingHeight = height
	return b
}

// WithDisplayReference sets the orientation preview output is expressed in.
func (b *Builder) WithDisplayReference(o geometry.Orientation) *Builder {
	b.cfg.DisplayReference = o
	return b
}

// WithResultDisplayDuration sets how long results stay visible.
func (b *Builder) WithResultDisplayDuration(d time.Duration) *Builder {
	if d > 0 {
		b.cfg.ResultDisplayDuration = d
	}
	return b
}

// WithCropDebugDir enables writing snapshot crops to dir.
func (b *Builder) WithCropDebugDir(dir string) *Builder {
	b.cfg.CropDebugDir = dir
	return b
}

// WithRecognitionOptions sets the recognizer request options.
func (b *Builder) WithRecognitionOptions(opts recognizer.Options) *Builder {
	b.cfg.Recognition = opts
	return b
}

// WithCamera sets the frame source.
func (b *Builder) WithCamera(cam camera.Camera) *Builder {
	b.cam = cam
	return b
}

// WithDetector sets the detector shared by both pipelines.
func (b *Builder) WithDetector(det detector.Detector) *Builder {
	b.det = det
	return b
}

// WithRecognizer sets the recognizer.
func (b *Builder) WithRecognizer(rec recognizer.Recognizer) *Builder {
	b.rec = rec
	return b
}

// WithPreviewSink sets where preview frames go.
func (b *Builder) WithPreviewSink(sink PreviewSink) *Builder {
	b.sink = sink
	return b
}

// WithPresenter sets who shows snapshot results.
func (b *Builder) WithPresenter(p Presenter) *Builder {
	b.presenter = p
	return b
}

// WithRecorder sets where snapshot results are persisted.
func (b *Builder) WithRecorder(r Recorder) *Builder {
	b.recorder = r
	return b
}

// Config returns the current configuration.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks configuration and required collaborators.
func (b *Builder) Validate() error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}
	if b.cam == nil {
		return errors.New("camera is required")
	}
	if b.det == nil {
		return errors.New("detector is required")
	}
	if b.rec == nil {
		return errors.New("recognizer is required")
	}
	return nil
}

// Build assembles the coordinator.
func (b *Builder) Build() (*Coordinator, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	sink := b.sink
	if sink == nil {
		sink = PreviewSinkFunc(func(_ context.Context, _ PreviewFrame) {})
	}
	return &Coordinator{
		cam:       b.cam,
		preview:   NewPreviewPipeline(NewThrottler(b.det, b.cfg.FramesBetweenDetection), b.cfg.DisplayReference),
		snapshot:  NewSnapshotPipeline(b.det, b.rec, b.cfg),
		sink:      sink,
		presenter: b.presenter,
		recorder:  b.recorder,
		cfg:       b.cfg,
		logger:    slog.Default().With("component", "coordinator"),
	}, nil
}
