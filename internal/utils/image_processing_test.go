package utils

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var marker = color.NRGBA{R: 255, A: 255}

// markedImage returns a white w x h image with the pixel rectangle m painted red.
func markedImage(w, h int, m image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			if image.Pt(x, y).In(m) {
				img.Set(x, y, marker)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

func isMarker(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 == 255 && g>>8 == 0 && b>>8 == 0
}

func countMarked(img image.Image) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if isMarker(img.At(x, y)) {
				n++
			}
		}
	}
	return n
}

// TestRotationMatchesGeometry checks that rotating pixels with ToSensor and
// rotating boxes with geometry.RotateToMatch land on the same pixels.
func TestRotationMatchesGeometry(t *testing.T) {
	const w, h = 40, 20
	mark := image.Rect(8, 4, 16, 8)
	upright := markedImage(w, h, mark)
	box := geometry.FromPixelCoordinates(mark, w, h)

	for _, o := range geometry.Orientations {
		t.Run(o.String(), func(t *testing.T) {
			raw := ToSensor(upright, o)
			rb := raw.Bounds()
			if o == geometry.Left || o == geometry.Right {
				assert.Equal(t, h, rb.Dx())
				assert.Equal(t, w, rb.Dy())
			}

			px := geometry.ToPixelCoordinates(geometry.RotateToMatch(box, o), rb.Dx(), rb.Dy())
			crop, err := Crop(raw, px)
			require.NoError(t, err)
			assert.Equal(t, mark.Dx()*mark.Dy(), countMarked(crop), "crop must cover the marked block")
			assert.Equal(t, mark.Dx()*mark.Dy(), countMarked(raw))

			back := Upright(raw, o)
			assert.Equal(t, upright.Bounds().Size(), back.Bounds().Size())
			for y := range h {
				for x := range w {
					assert.Equal(t, isMarker(upright.At(x, y)), isMarker(back.At(x, y)))
				}
			}
		})
	}
}

func TestCrop(t *testing.T) {
	img := markedImage(10, 10, image.Rect(2, 2, 4, 4))

	crop, err := Crop(img, image.Rect(2, 2, 4, 4))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(2, 2), crop.Bounds().Size())
	assert.Equal(t, 4, countMarked(crop))

	crop, err = Crop(img, image.Rect(8, 8, 20, 20))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(2, 2), crop.Bounds().Size())

	_, err = Crop(img, image.Rect(12, 12, 20, 20))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyCrop))

	_, err = Crop(img, image.Rect(3, 3, 3, 8))
	assert.ErrorIs(t, err, ErrEmptyCrop)

	_, err = Crop(nil, image.Rect(0, 0, 1, 1))
	var ipe *ImageProcessingError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "crop", ipe.Operation)
}

func TestCrop_OffsetBounds(t *testing.T) {
	base := markedImage(10, 10, image.Rect(5, 5, 6, 6))
	sub := base.SubImage(image.Rect(4, 4, 10, 10))
	crop, err := Crop(sub, image.Rect(1, 1, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, countMarked(crop))
}

func TestCropNormalized(t *testing.T) {
	img := markedImage(100, 50, image.Rect(0, 0, 1, 1))
	crop, px, err := CropNormalized(img, geometry.NewRect(0.5, 0.5, 0.5, 0.5))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(50, 25, 100, 50), px)
	assert.Equal(t, image.Pt(50, 25), crop.Bounds().Size())

	_, _, err = CropNormalized(img, geometry.NewRect(1.1, 0, 0.1, 0.1))
	assert.ErrorIs(t, err, ErrEmptyCrop)
}

func TestResizeExact(t *testing.T) {
	img := markedImage(30, 10, image.Rectangle{})
	out, err := ResizeExact(img, 16, 16)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(16, 16), out.Bounds().Size())

	_, err = ResizeExact(img, 0, 16)
	require.Error(t, err)
	_, err = ResizeExact(nil, 1, 1)
	require.Error(t, err)
}

func TestNormalizeImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	img.Set(1, 0, color.NRGBA{R: 0, G: 255, B: 51, A: 255})

	tensor, w, h, err := NormalizeImage(img)
	require.NoError(t, err)
	assert.Equal(t, 2, w)
	assert.Equal(t, 1, h)
	require.Len(t, tensor, 6)
	assert.InDelta(t, 1.0, tensor[0], 1e-6) // R plane
	assert.InDelta(t, 0.0, tensor[1], 1e-6)
	assert.InDelta(t, 0.0, tensor[2], 1e-6) // G plane
	assert.InDelta(t, 1.0, tensor[3], 1e-6)
	assert.InDelta(t, 0.2, tensor[5], 1e-6) // B plane

	_, _, _, err = NormalizeImage(nil)
	require.Error(t, err)
}

func TestEnhanceKeepsSize(t *testing.T) {
	img := markedImage(12, 7, image.Rect(1, 1, 3, 3))
	out := Enhance(img)
	assert.Equal(t, img.Bounds().Size(), out.Bounds().Size())
}

func TestImageProcessingError(t *testing.T) {
	inner := errors.New("boom")
	err := &ImageProcessingError{Operation: "load", Err: inner}
	assert.Equal(t, "image processing error in load: boom", err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestSaveAndLoadImage(t *testing.T) {
	dir := t.TempDir()
	img := markedImage(6, 4, image.Rect(0, 0, 3, 2))
	path := filepath.Join(dir, "nested", "frame.png")
	require.NoError(t, SavePNG(path, img))

	loaded, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(6, 4), loaded.Bounds().Size())
	assert.Equal(t, 6, countMarked(loaded))

	paths, err := ListImages(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths)

	_, err = LoadImage(filepath.Join(dir, "frame.gif"))
	require.Error(t, err)
	_, err = LoadImage("")
	require.Error(t, err)
	_, err = LoadImage(filepath.Join(dir, "missing.png"))
	require.Error(t, err)
}

func TestJPEGBytes(t *testing.T) {
	data, err := JPEGBytes(markedImage(8, 8, image.Rect(0, 0, 4, 4)), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])
}

func TestAnnotate(t *testing.T) {
	img := markedImage(20, 20, image.Rectangle{})
	out := Annotate(img, []geometry.Rect{geometry.NewRect(0.25, 0.25, 0.5, 0.5)}, marker)
	assert.True(t, isMarker(out.At(5, 5)))
	assert.False(t, isMarker(out.At(10, 10)))
	assert.Equal(t, 0, countMarked(img), "source is not modified")
}
