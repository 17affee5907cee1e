package pipeline

import (
	"context"
	"log/slog"

	"github.com/MeKo-Tech/titlecam/internal/camera"
	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/utils"
)

// PreviewPipeline annotates preview frames with throttled detections.
type PreviewPipeline struct {
	throttler *Throttler
	display   geometry.Orientation
	logger    *slog.Logger
}

// NewPreviewPipeline creates a preview pipeline emitting in the display
// reference orientation.
func NewPreviewPipeline(t *Throttler, display geometry.Orientation) *PreviewPipeline {
	return &PreviewPipeline{
		throttler: t,
		display:   display,
		logger:    slog.Default().With("component", "preview"),
	}
}

// Run processes frames in order until the channel closes (nil) or ctx is done
// (ctx error). Detection state starts fresh on every Run.
func (p *PreviewPipeline) Run(ctx context.Context, frames <-chan camera.Frame, sink PreviewSink) error {
	p.throttler.Reset()
	p.logger.Debug("preview pipeline started", "display_reference", p.display.String())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				p.logger.Debug("preview source closed")
				return nil
			}
			out := p.Process(ctx, f)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			previewFramesTotal.Inc()
			sink.ShowPreview(ctx, out)
		}
	}
}

// Process maps the throttled boxes for f into the display reference.
func (p *PreviewPipeline) Process(ctx context.Context, f camera.Frame) PreviewFrame {
	upright, ran := p.throttler.Boxes(ctx, f)
	boxes := geometry.RotateAll(upright, f.Orientation.Then(p.display))
	return PreviewFrame{
		Seq:         f.Seq,
		Image:       utils.ToSensor(f.Image, p.display),
		Boxes:       boxes,
		Orientation: f.Orientation,
		CapturedAt:  f.CapturedAt,
		Detected:    ran,
	}
}
