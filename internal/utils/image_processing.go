package utils

import (
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/mempool"
	"github.com/disintegration/imaging"
)

// ErrEmptyCrop is returned when a crop rectangle has no pixels inside the image.
var ErrEmptyCrop = errors.New("empty crop")

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// Upright rotates a raw sensor buffer captured with orientation o so that the
// picture faces up. Up returns img unchanged.
func Upright(img image.Image, o geometry.Orientation) image.Image {
	switch o {
	case geometry.Right:
		return imaging.Rotate90(img)
	case geometry.Left:
		return imaging.Rotate270(img)
	case geometry.Down:
		return imaging.Rotate180(img)
	default:
		return img
	}
}

// ToSensor is the inverse of Upright: it re-expresses an upright picture in
// the raw buffer layout for orientation o, matching geometry.RotateToMatch.
func ToSensor(img image.Image, o geometry.Orientation) image.Image {
	return Upright(img, o.Inverse())
}

// Crop extracts rect from img. Rectangles are relative to img.Bounds().Min.
// An empty intersection yields ErrEmptyCrop.
func Crop(img image.Image, rect image.Rectangle) (image.Image, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "crop", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	abs := rect.Add(b.Min).Intersect(b)
	if abs.Empty() {
		return nil, &ImageProcessingError{Operation: "crop", Err: ErrEmptyCrop}
	}
	return imaging.Crop(img, abs), nil
}

// CropNormalized maps r onto img and crops it.
func CropNormalized(img image.Image, r geometry.Rect) (image.Image, image.Rectangle, error) {
	if img == nil {
		return nil, image.Rectangle{}, &ImageProcessingError{Operation: "crop", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	px := geometry.ToPixelCoordinates(r, b.Dx(), b.Dy())
	out, err := Crop(img, px)
	return out, px, err
}

// ResizeExact stretches img to w x h. Detector inputs are square and
// boxes are mapped back per axis, so aspect ratio is not preserved.
func ResizeExact(img image.Image, w, h int) (image.Image, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "resize", Err: errors.New("input image is nil")}
	}
	if w <= 0 || h <= 0 {
		return nil, &ImageProcessingError{Operation: "resize", Err: fmt.Errorf("invalid target size %dx%d", w, h)}
	}
	return imaging.Resize(img, w, h, imaging.Linear), nil
}

// Enhance grayscales and sharpens img, raising contrast for text recognition.
func Enhance(img image.Image) image.Image {
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 20)
	return imaging.Sharpen(out, 1.0)
}

// NormalizeImage converts img into an NCHW float32 tensor with values in [0,1].
// The tensor comes from mempool; callers may return it with mempool.PutFloat32.
func NormalizeImage(img image.Image) ([]float32, int, int, error) {
	if img == nil {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("input image is nil")}
	}

	nrgba := imaging.Clone(img)
	bounds := nrgba.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	plane := width * height

	tensor := mempool.GetFloat32(3 * plane)
	for y := range height {
		for x := range width {
			i := nrgba.PixOffset(x+bounds.Min.X, y+bounds.Min.Y)
			idx := y*width + x
			tensor[idx] = float32(nrgba.Pix[i]) / 255.0
			tensor[plane+idx] = float32(nrgba.Pix[i+1]) / 255.0
			tensor[2*plane+idx] = float32(nrgba.Pix[i+2]) / 255.0
		}
	}

	return tensor, width, height, nil
}
