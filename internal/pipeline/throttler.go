package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/camera"
	"github.com/MeKo-Tech/titlecam/internal/detector"
	"github.com/MeKo-Tech/titlecam/internal/geometry"
)

// Throttler limits detector calls on the preview stream. The detector runs
// on a frame once n frames were skipped since the last run; in between
// the previous boxes are reused as they are. Within any n+1 consecutive
// frames the detector runs at least once.
//
// A Throttler is owned by a single goroutine.
type Throttler struct {
	det         detector.Detector
	n           int
	lastBoxes   []geometry.Rect
	framesSince int
	logger      *slog.Logger
}

// NewThrottler returns a throttler that detects on the first frame.
func NewThrottler(det detector.Detector, framesBetween int) *Throttler {
	if framesBetween < 0 {
		framesBetween = 0
	}
	t := &Throttler{
		det:    det,
		n:      framesBetween,
		logger: slog.Default().With("component", "throttler"),
	}
	t.Reset()
	return t
}

// Reset forgets the last boxes so the next frame runs the detector.
func (t *Throttler) Reset() {
	t.lastBoxes = nil
	t.framesSince = t.n + 1
}

// Boxes returns the boxes for f in upright coordinates and whether the
// detector ran for it. A detector error counts as "nothing detected".
func (t *Throttler) Boxes(ctx context.Context, f camera.Frame) ([]geometry.Rect, bool) {
	if t.framesSince < t.n {
		t.framesSince++
		return t.lastBoxes, false
	}

	start := time.Now()
	boxes, err := t.det.Detect(ctx, f.Image, f.Orientation)
	detectorDuration.WithLabelValues("preview").Observe(time.Since(start).Seconds())
	if err != nil {
		detectorRunsTotal.WithLabelValues("preview", "error").Inc()
		t.logger.Warn("preview detection failed", "seq", f.Seq, "error", err)
		boxes = nil
	} else {
		detectorRunsTotal.WithLabelValues("preview", "ok").Inc()
	}
	t.lastBoxes = boxes
	t.framesSince = 0
	return boxes, true
}
