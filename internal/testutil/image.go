// Package testutil holds synthetic frames and scripted collaborators shared by
// the package tests and the feature suite.
package testutil

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/utils"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// CardColor is the fill used for title cards.
var CardColor = color.RGBA{R: 220, G: 30, B: 30, A: 255}

// TitleCardConfig describes an upright picture with a title card on it.
type TitleCardConfig struct {
	Width, Height int
	// Card is the card area in pixels.
	Card       image.Rectangle
	Text       string
	Background color.Color
	TextColor  color.Color
}

// DefaultTitleCardConfig returns a 320x240 picture with a card in the upper
// middle.
func DefaultTitleCardConfig() TitleCardConfig {
	return TitleCardConfig{
		Width:      320,
		Height:     240,
		Card:       image.Rect(80, 48, 240, 96),
		Text:       "THE MATRIX",
		Background: color.White,
		TextColor:  color.White,
	}
}

// CardRect returns the card area in normalized upright coordinates.
func (c TitleCardConfig) CardRect() geometry.Rect {
	return geometry.FromPixelCoordinates(c.Card, c.Width, c.Height)
}

// GenerateTitleCard draws the picture described by cfg.
func GenerateTitleCard(cfg TitleCardConfig) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: cfg.Background}, image.Point{}, draw.Src)
	draw.Draw(img, cfg.Card, &image.Uniform{C: CardColor}, image.Point{}, draw.Src)

	if cfg.Text != "" {
		face := basicfont.Face7x13
		d := &font.Drawer{Dst: img, Src: &image.Uniform{C: cfg.TextColor}, Face: face}
		width := d.MeasureString(cfg.Text).Ceil()
		x := cfg.Card.Min.X + (cfg.Card.Dx()-width)/2
		y := cfg.Card.Min.Y + (cfg.Card.Dy()+face.Metrics().Ascent.Ceil())/2
		d.Dot = fixed.P(x, y)
		d.DrawString(cfg.Text)
	}
	return img
}

// CountCardPixels counts pixels painted with CardColor.
func CountCardPixels(img image.Image) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r>>8 == uint32(CardColor.R) && g>>8 == uint32(CardColor.G) && bl>>8 == uint32(CardColor.B) {
				n++
			}
		}
	}
	return n
}

// WriteFrames writes n copies of the title card picture into dir and returns
// their paths.
func WriteFrames(t *testing.T, dir string, n int, cfg TitleCardConfig) []string {
	t.Helper()
	img := GenerateTitleCard(cfg)
	paths := make([]string, n)
	for i := range n {
		paths[i] = filepath.Join(dir, fmt.Sprintf("frame-%03d.png", i))
		require.NoError(t, utils.SavePNG(paths[i], img))
	}
	return paths
}
