package camera

import (
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/utils"
	"github.com/disintegration/imaging"
)

// FeedConfig controls how a Feed turns pictures into frames.
type FeedConfig struct {
	// PreviewWidth bounds preview frame width in pixels; 0 keeps full size.
	PreviewWidth int
	// SnapshotBuffer is the snapshot queue capacity.
	SnapshotBuffer int
	// SensorLayout rotates each upright picture into the raw sensor layout
	// for the stamped orientation. Disable when pictures are already raw.
	SensorLayout bool
}

// DefaultFeedConfig returns defaults.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{PreviewWidth: 640, SnapshotBuffer: 1, SensorLayout: true}
}

// Feed is a Camera driven by the caller: every Emit produces a preview frame
// stamped with the current orientation and remembers the full resolution
// picture for the next CaptureImage.
type Feed struct {
	cfg       FeedConfig
	orient    OrientationSource
	preview   *PreviewStream
	snapshots *SnapshotStream
	seq       atomic.Uint64
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	last    *Frame
	closed  bool
	closeMu sync.Once
}

// NewFeed creates a feed. A nil orientation source means always Up.
func NewFeed(cfg FeedConfig, orient OrientationSource) *Feed {
	if orient == nil {
		orient = FixedOrientation(geometry.Up)
	}
	return &Feed{
		cfg:       cfg,
		orient:    orient,
		preview:   NewPreviewStream(),
		snapshots: NewSnapshotStream(cfg.SnapshotBuffer),
		now:       time.Now,
		logger:    slog.Default().With("component", "camera"),
	}
}

// Preview implements Camera.
func (f *Feed) Preview() <-chan Frame { return f.preview.Frames() }

// Snapshots implements Camera.
func (f *Feed) Snapshots() <-chan Frame { return f.snapshots.Frames() }

// PausePreview implements Camera.
func (f *Feed) PausePreview() { f.preview.Pause() }

// ResumePreview implements Camera.
func (f *Feed) ResumePreview() { f.preview.Resume() }

// PreviewPaused reports whether preview delivery is paused.
func (f *Feed) PreviewPaused() bool { return f.preview.Paused() }

// DroppedPreviewFrames returns the number of preview frames not delivered.
func (f *Feed) DroppedPreviewFrames() uint64 { return f.preview.Dropped() }

// Emit captures picture as the next frame. The orientation is read once here
// and stays attached to the frame.
func (f *Feed) Emit(picture image.Image) (Frame, bool) {
	o := f.orient.Current()
	raw := picture
	if f.cfg.SensorLayout {
		raw = utils.ToSensor(picture, o)
	}
	full := Frame{
		Seq:         f.seq.Add(1),
		Image:       raw,
		Orientation: o,
		CapturedAt:  f.now(),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return Frame{}, false
	}
	f.last = &full
	f.mu.Unlock()

	preview := full
	if w := f.cfg.PreviewWidth; w > 0 && raw.Bounds().Dx() > w {
		preview.Image = imaging.Resize(raw, w, 0, imaging.Linear)
	}
	return preview, f.preview.Publish(preview)
}

// CaptureImage implements Camera by queueing the most recent full resolution
// frame as a snapshot.
func (f *Feed) CaptureImage() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.last == nil {
		f.mu.Unlock()
		return ErrNoFrame
	}
	snap := *f.last
	f.mu.Unlock()

	snap.Seq = f.seq.Add(1)
	snap.CapturedAt = f.now()
	if err := f.snapshots.TryPublish(snap); err != nil {
		return err
	}
	f.logger.Debug("snapshot captured", "seq", snap.Seq, "orientation", snap.Orientation.String())
	return nil
}

// Close ends both streams.
func (f *Feed) Close() {
	f.closeMu.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		f.preview.Close()
		f.snapshots.Close()
	})
}
