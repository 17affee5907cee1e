package geometry

import (
	"fmt"
	"image"
	"math"
)

// Rect is a rectangle in normalized [0,1] coordinates with a top-left origin.
// Rect values are never mutated in place; every transform returns a new value.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewRect is shorthand for a Rect literal.
func NewRect(x, y, w, h float64) Rect {
	return Rect{X: x, Y: y, Width: w, Height: h}
}

// MaxX returns the right edge.
func (r Rect) MaxX() float64 { return r.X + r.Width }

// MaxY returns the bottom edge.
func (r Rect) MaxY() float64 { return r.Y + r.Height }

// Center returns the center point of the rectangle.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns Width*Height.
func (r Rect) Area() float64 { return r.Width * r.Height }

// IsEmpty reports whether the rectangle has no positive area.
func (r Rect) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// String renders the rectangle with four decimals.
func (r Rect) String() string {
	return fmt.Sprintf("{x:%.4f y:%.4f w:%.4f h:%.4f}", r.X, r.Y, r.Width, r.Height)
}

// ApproxEqual compares two rectangles component-wise within eps.
func (r Rect) ApproxEqual(o Rect, eps float64) bool {
	return math.Abs(r.X-o.X) <= eps &&
		math.Abs(r.Y-o.Y) <= eps &&
		math.Abs(r.Width-o.Width) <= eps &&
		math.Abs(r.Height-o.Height) <= eps
}

// Clamp trims the rectangle to the unit square. Detectors overshoot the image
// edges slightly; callers clamp before handing boxes to the crop path.
// An axis that already lies inside [0, 1] is returned unchanged.
func (r Rect) Clamp() Rect {
	x, w := clampSpan(r.X, r.Width)
	y, h := clampSpan(r.Y, r.Height)
	return Rect{X: x, Y: y, Width: w, Height: h}
}

func clampSpan(pos, size float64) (float64, float64) {
	if pos >= 0 && size >= 0 && pos+size <= 1 {
		return pos, size
	}
	lo := clampUnit(pos)
	hi := clampUnit(pos + size)
	return lo, math.Max(0, hi-lo)
}

// IoU returns the intersection over union of two rectangles.
func (r Rect) IoU(o Rect) float64 {
	ix := math.Min(r.MaxX(), o.MaxX()) - math.Max(r.X, o.X)
	iy := math.Min(r.MaxY(), o.MaxY()) - math.Max(r.Y, o.Y)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// RotateToMatch re-expresses a box found in the upright picture in the frame
// implied by orientation o (the raw sensor buffer for that orientation).
//
// Right followed by Left (and Left followed by Right) is the identity, Down is
// an involution and Up is the identity.
func RotateToMatch(r Rect, o Orientation) Rect {
	switch o {
	case Down:
		return Rect{X: 1 - r.X - r.Width, Y: 1 - r.Y - r.Height, Width: r.Width, Height: r.Height}
	case Right:
		return Rect{X: 1 - r.Y - r.Height, Y: r.X, Width: r.Height, Height: r.Width}
	case Left:
		return Rect{X: r.Y, Y: 1 - r.X - r.Width, Width: r.Height, Height: r.Width}
	default:
		return r
	}
}

// RotateAll applies RotateToMatch to every box and returns a new slice.
func RotateAll(boxes []Rect, o Orientation) []Rect {
	out := make([]Rect, len(boxes))
	for i, b := range boxes {
		out[i] = RotateToMatch(b, o)
	}
	return out
}

// Scale inflates the rectangle symmetrically about its center by widthFactor
// of its width and heightFactor of its height on each side. The total width
// grows by 2*widthFactor*width. A factor of 0 leaves that axis untouched.
func Scale(r Rect, widthFactor, heightFactor float64) Rect {
	dx := r.Width * widthFactor
	dy := r.Height * heightFactor
	return Rect{
		X:      r.X - dx,
		Y:      r.Y - dy,
		Width:  r.Width + 2*dx,
		Height: r.Height + 2*dy,
	}
}

// ToPixelCoordinates maps a normalized rectangle onto a width x height image.
// The origin is floored and the extent ceiled, then both are clamped to the
// image so the result never exceeds its bounds. The result may be empty when
// the rectangle lies entirely outside the image.
func ToPixelCoordinates(r Rect, width, height int) image.Rectangle {
	x0 := clampInt(int(math.Floor(r.X*float64(width))), 0, width)
	y0 := clampInt(int(math.Floor(r.Y*float64(height))), 0, height)
	x1 := clampInt(int(math.Ceil(r.MaxX()*float64(width))), 0, width)
	y1 := clampInt(int(math.Ceil(r.MaxY()*float64(height))), 0, height)
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return image.Rect(x0, y0, x1, y1)
}

// FromPixelCoordinates is the inverse mapping of a pixel rectangle inside a
// width x height image.
func FromPixelCoordinates(p image.Rectangle, width, height int) Rect {
	if width <= 0 || height <= 0 {
		return Rect{}
	}
	fw, fh := float64(width), float64(height)
	return Rect{
		X:      float64(p.Min.X) / fw,
		Y:      float64(p.Min.Y) / fh,
		Width:  float64(p.Dx()) / fw,
		Height: float64(p.Dy()) / fh,
	}
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
