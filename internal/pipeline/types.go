package pipeline

import (
	"context"
	"errors"
	"image"
	"strings"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/recognizer"
	"github.com/google/uuid"
)

// ErrCaptureInFlight is returned by RequestCapture while a snapshot is being
// taken or processed. Requests are not queued.
var ErrCaptureInFlight = errors.New("capture already in flight")

// PreviewFrame is a preview image with boxes expressed in its own coordinates.
type PreviewFrame struct {
	Seq         uint64               `json:"seq"`
	Image       image.Image          `json:"-"`
	Boxes       []geometry.Rect      `json:"boxes"`
	Orientation geometry.Orientation `json:"orientation"`
	CapturedAt  time.Time            `json:"captured_at"`
	Detected    bool                 `json:"detected"`
}

// SnapshotResult is the outcome of one snapshot. Found is false when nothing
// was detected or recognized; that is a normal outcome, not an error.
type SnapshotResult struct {
	CaptureID    uuid.UUID                `json:"capture_id"`
	Seq          uint64                   `json:"seq"`
	Orientation  geometry.Orientation     `json:"orientation"`
	CapturedAt   time.Time                `json:"captured_at"`
	Box          *geometry.Rect           `json:"box,omitempty"`
	CropSize     image.Point              `json:"crop_size"`
	Crop         image.Image              `json:"-"`
	Observations []recognizer.Observation `json:"observations,omitempty"`
	Words        []string                 `json:"words"`
	Text         string                   `json:"text"`
	Found        bool                     `json:"found"`
	Duration     time.Duration            `json:"duration"`
	Error        string                   `json:"error,omitempty"`
}

// DisplayText returns Text, or notFound when nothing was recognized.
func (r SnapshotResult) DisplayText(notFound string) string {
	if !r.Found || strings.TrimSpace(r.Text) == "" {
		return notFound
	}
	return r.Text
}

// PreviewSink receives preview frames. Implementations must not block.
type PreviewSink interface {
	ShowPreview(ctx context.Context, frame PreviewFrame)
}

// SnapshotObserver is told when a snapshot starts and finishes processing.
type SnapshotObserver interface {
	SnapshotStarted(seq uint64)
	SnapshotFinished(result SnapshotResult)
}

// Presenter shows and clears snapshot results.
type Presenter interface {
	ShowResult(result SnapshotResult)
	ClearResult()
}

// Recorder persists snapshot results.
type Recorder interface {
	Record(ctx context.Context, result SnapshotResult) error
}

// PreviewSinkFunc adapts a function to PreviewSink.
type PreviewSinkFunc func(ctx context.Context, frame PreviewFrame)

// ShowPreview implements PreviewSink.
func (f PreviewSinkFunc) ShowPreview(ctx context.Context, frame PreviewFrame) { f(ctx, frame) }
