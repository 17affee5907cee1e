// Package orientation tracks the physical device rotation and maps it onto the
// sensor orientation stamped on every captured frame.
package orientation

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
)

// DeviceOrientation is the raw rotation reported by the device.
type DeviceOrientation int

const (
	Unknown DeviceOrientation = iota
	Portrait
	PortraitUpsideDown
	LandscapeLeft
	LandscapeRight
	FaceUp
	FaceDown
)

var deviceNames = map[DeviceOrientation]string{
	Unknown:            "unknown",
	Portrait:           "portrait",
	PortraitUpsideDown: "portrait_upside_down",
	LandscapeLeft:      "landscape_left",
	LandscapeRight:     "landscape_right",
	FaceUp:             "face_up",
	FaceDown:           "face_down",
}

func (d DeviceOrientation) String() string {
	if s, ok := deviceNames[d]; ok {
		return s
	}
	return fmt.Sprintf("device(%d)", int(d))
}

// ParseDeviceOrientation accepts the names produced by String. Dashes and
// spaces are treated as underscores.
func ParseDeviceOrientation(s string) (DeviceOrientation, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	for d, name := range deviceNames {
		if name == norm {
			return d, nil
		}
	}
	return Unknown, fmt.Errorf("unknown device orientation: %q", s)
}

// DefaultOrientation is the sensor orientation before any rotation is reported.
const DefaultOrientation = geometry.Right

// SensorOrientation maps a device rotation to the sensor orientation. The
// second return value is false for rotations that carry no information
// (flat on a table, unknown).
func SensorOrientation(d DeviceOrientation) (geometry.Orientation, bool) {
	switch d {
	case Portrait:
		return geometry.Right, true
	case PortraitUpsideDown:
		return geometry.Left, true
	case LandscapeLeft:
		return geometry.Up, true
	case LandscapeRight:
		return geometry.Down, true
	default:
		return 0, false
	}
}

// Tracker holds the current sensor orientation. Writes come from the device
// notification path, reads from the capture path once per frame.
type Tracker struct {
	current atomic.Int32
	logger  *slog.Logger
}

// NewTracker returns a tracker starting at initial.
func NewTracker(initial geometry.Orientation) *Tracker {
	t := &Tracker{logger: slog.Default().With("component", "orientation")}
	t.current.Store(int32(initial))
	return t
}

// Current returns the orientation to stamp on the next captured frame.
func (t *Tracker) Current() geometry.Orientation {
	return geometry.Orientation(t.current.Load())
}

// Set overrides the current orientation directly.
func (t *Tracker) Set(o geometry.Orientation) bool {
	prev := geometry.Orientation(t.current.Swap(int32(o)))
	return prev != o
}

// OnDeviceRotation applies a raw device rotation and reports whether the
// sensor orientation changed. Unmapped rotations keep the previous value.
func (t *Tracker) OnDeviceRotation(d DeviceOrientation) bool {
	o, ok := SensorOrientation(d)
	if !ok {
		t.logger.Debug("ignoring device orientation", "device", d.String(), "current", t.Current().String())
		return false
	}
	changed := t.Set(o)
	if changed {
		t.logger.Debug("sensor orientation changed", "device", d.String(), "orientation", o.String())
	}
	return changed
}
