// Package geometry implements the normalized rectangle algebra used to move
// detection boxes between the sensor frame, the upright frame and the display.
package geometry

import (
	"fmt"
	"strings"
)

// Orientation is the rotation of the capture sensor relative to an upright
// reference at the moment a frame was captured.
type Orientation int

const (
	// Up means the picture is already facing up.
	Up Orientation = iota
	// Down means the sensor is upside down, the top of the picture faces down.
	Down
	// Left means the sensor lies on its left side, the top of the picture faces left.
	Left
	// Right means the sensor lies on its right side, the top of the picture faces right.
	Right
)

// Orientations lists every orientation in declaration order.
var Orientations = []Orientation{Up, Down, Left, Right}

var orientationNames = map[Orientation]string{
	Up:    "up",
	Down:  "down",
	Left:  "left",
	Right: "right",
}

// String returns the lower-case name used in config files and JSON payloads.
func (o Orientation) String() string {
	if s, ok := orientationNames[o]; ok {
		return s
	}
	return fmt.Sprintf("orientation(%d)", int(o))
}

// Valid reports whether o is one of the four known orientations.
func (o Orientation) Valid() bool {
	_, ok := orientationNames[o]
	return ok
}

// ParseOrientation parses the names produced by String (case-insensitive).
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return Up, fmt.Errorf("unknown orientation: %q (must be one of: up, down, left, right)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (o Orientation) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("invalid orientation: %d", int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Orientation) UnmarshalText(text []byte) error {
	parsed, err := ParseOrientation(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Angle returns the clockwise rotation in degrees, one of {0, 90, 180, 270},
// that takes the upright picture to the raw sensor buffer.
func (o Orientation) Angle() int {
	switch o {
	case Right:
		return 90
	case Down:
		return 180
	case Left:
		return 270
	default:
		return 0
	}
}

// EXIF returns the EXIF orientation tag handed to inference engines for o.
// The table is fixed: up=1, down=3, right=6, left=8.
func (o Orientation) EXIF() int {
	switch o {
	case Down:
		return 3
	case Right:
		return 6
	case Left:
		return 8
	default:
		return 1
	}
}

// Inverse returns the orientation that undoes o under RotateToMatch.
func (o Orientation) Inverse() Orientation {
	switch o {
	case Left:
		return Right
	case Right:
		return Left
	default:
		return o
	}
}

// Then returns the single orientation equivalent to applying o and then next.
func (o Orientation) Then(next Orientation) Orientation {
	return fromAngle(o.Angle() + next.Angle())
}

func fromAngle(deg int) Orientation {
	switch ((deg % 360) + 360) % 360 {
	case 90:
		return Right
	case 180:
		return Down
	case 270:
		return Left
	default:
		return Up
	}
}
