package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/camera"
	"github.com/MeKo-Tech/titlecam/internal/detector"
	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/recognizer"
	"github.com/MeKo-Tech/titlecam/internal/utils"
)

// SnapshotPipeline runs detection and recognition exactly once per snapshot.
type SnapshotPipeline struct {
	det    detector.Detector
	rec    recognizer.Recognizer
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewSnapshotPipeline creates a snapshot pipeline.
func NewSnapshotPipeline(det detector.Detector, rec recognizer.Recognizer, cfg Config) *SnapshotPipeline {
	return &SnapshotPipeline{
		det:    det,
		rec:    rec,
		cfg:    cfg,
		logger: slog.Default().With("component", "snapshot"),
		now:    time.Now,
	}
}

// Run processes snapshots in order until the channel closes (nil) or ctx is
// done (ctx error). Every snapshot is bracketed by SnapshotStarted and
// SnapshotFinished; a result that completes after cancellation is dropped.
func (p *SnapshotPipeline) Run(ctx context.Context, snapshots <-chan camera.Frame, obs SnapshotObserver) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-snapshots:
			if !ok {
				p.logger.Debug("snapshot source closed")
				return nil
			}
			obs.SnapshotStarted(f.Seq)
			result := p.Process(ctx, f)
			if ctx.Err() != nil {
				p.logger.Debug("discarding snapshot result after cancellation", "seq", f.Seq)
				return ctx.Err()
			}
			obs.SnapshotFinished(result)
		}
	}
}

// Process detects, crops and recognizes a single snapshot. It never fails:
// problems are logged and yield a result with Found unset.
func (p *SnapshotPipeline) Process(ctx context.Context, f camera.Frame) SnapshotResult {
	start := p.now()
	result := SnapshotResult{
		Seq:         f.Seq,
		Orientation: f.Orientation,
		CapturedAt:  f.CapturedAt,
		Words:       []string{},
	}
	finish := func(outcome string, err error) SnapshotResult {
		result.Duration = p.now().Sub(start)
		if err != nil {
			result.Error = err.Error()
		}
		snapshotsTotal.WithLabelValues(outcome).Inc()
		p.logger.Info("snapshot processed",
			"seq", f.Seq,
			"outcome", outcome,
			"orientation", f.Orientation.String(),
			"text", result.Text,
			"duration_ms", result.Duration.Milliseconds())
		return result
	}

	detStart := time.Now()
	boxes, err := p.det.Detect(ctx, f.Image, f.Orientation)
	detectorDuration.WithLabelValues("snapshot").Observe(time.Since(detStart).Seconds())
	if err != nil {
		detectorRunsTotal.WithLabelValues("snapshot", "error").Inc()
		p.logger.Warn("snapshot detection failed", "seq", f.Seq, "error", err)
		return finish("detector_error", err)
	}
	detectorRunsTotal.WithLabelValues("snapshot", "ok").Inc()
	if len(boxes) == 0 {
		return finish("no_detection", nil)
	}

	// Only the first detection is used.
	padded := geometry.Scale(boxes[0].Clamp(), p.cfg.PaddingWidth, p.cfg.PaddingHeight)
	box := padded.Clamp()
	result.Box = &box

	sensorBox := geometry.RotateToMatch(padded, f.Orientation)
	crop, px, err := utils.CropNormalized(f.Image, sensorBox)
	if err != nil {
		if errors.Is(err, utils.ErrEmptyCrop) {
			return finish("empty_crop", nil)
		}
		return finish("crop_error", err)
	}
	result.Crop = crop
	result.CropSize = px.Size()
	p.saveDebugCrop(f.Seq, crop)

	recStart := time.Now()
	obs, err := p.rec.Recognize(ctx, crop, f.Orientation, p.cfg.Recognition)
	recognitionDuration.Observe(time.Since(recStart).Seconds())
	if err != nil {
		p.logger.Warn("snapshot recognition failed", "seq", f.Seq, "error", err)
		return finish("recognizer_error", err)
	}

	result.Observations = recognizer.Limit(obs, p.cfg.Recognition.MaxCandidates)
	result.Words = recognizer.Words(result.Observations)
	result.Text = strings.Join(result.Words, " ")
	result.Found = result.Text != ""
	if !result.Found {
		return finish("no_text", nil)
	}
	return finish("recognized", nil)
}

func (p *SnapshotPipeline) saveDebugCrop(seq uint64, crop image.Image) {
	if p.cfg.CropDebugDir == "" {
		return
	}
	path := filepath.Join(p.cfg.CropDebugDir, fmt.Sprintf("crop-%06d.png", seq))
	if err := utils.SavePNG(path, crop); err != nil {
		p.logger.Warn("failed to write debug crop", "path", path, "error", err)
		return
	}
	p.logger.Debug("debug crop written", "path", path)
}
