// Package camera provides the frame sources feeding the preview and snapshot
// pipelines: the stream primitives, a programmable Feed and a FileCamera that
// replays a directory of pictures.
package camera

import (
	"errors"
	"image"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
)

var (
	// ErrNoFrame is returned by CaptureImage before any frame was produced.
	ErrNoFrame = errors.New("camera: no frame captured yet")
	// ErrClosed is returned once the camera has stopped.
	ErrClosed = errors.New("camera: closed")
	// ErrSnapshotBusy is returned when the snapshot buffer is full.
	ErrSnapshotBusy = errors.New("camera: snapshot buffer full")
)

// Frame is one captured picture in raw sensor layout.
type Frame struct {
	Seq         uint64
	Image       image.Image
	Orientation geometry.Orientation
	CapturedAt  time.Time
}

// Size returns the pixel dimensions of the frame image.
func (f Frame) Size() (int, int) {
	if f.Image == nil {
		return 0, 0
	}
	b := f.Image.Bounds()
	return b.Dx(), b.Dy()
}

// Camera is the contract the pipeline coordinator drives.
type Camera interface {
	Preview() <-chan Frame
	Snapshots() <-chan Frame
	PausePreview()
	ResumePreview()
	CaptureImage() error
}

// OrientationSource provides the orientation stamped on each captured frame.
type OrientationSource interface {
	Current() geometry.Orientation
}

// FixedOrientation is an OrientationSource that never changes.
type FixedOrientation geometry.Orientation

// Current implements OrientationSource.
func (f FixedOrientation) Current() geometry.Orientation { return geometry.Orientation(f) }
