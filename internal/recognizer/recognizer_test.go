package recognizer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOCR struct {
	result   computervision.OcrResult
	err      error
	language computervision.OcrLanguages
	size     image.Point
	calls    int
}

func (f *fakeOCR) RecognizePrintedTextInStream(_ context.Context, _ bool, body io.ReadCloser,
	language computervision.OcrLanguages,
) (computervision.OcrResult, error) {
	f.calls++
	f.language = language
	defer func() { _ = body.Close() }()
	img, err := jpeg.Decode(body)
	if err != nil {
		return computervision.OcrResult{}, err
	}
	f.size = img.Bounds().Size()
	return f.result, f.err
}

func strp(s string) *string { return &s }

func ocrLine(box string, words ...string) computervision.OcrLine {
	ws := make([]computervision.OcrWord, len(words))
	for i, w := range words {
		ws[i] = computervision.OcrWord{Text: strp(w)}
	}
	return computervision.OcrLine{BoundingBox: strp(box), Words: &ws}
}

func ocrResult(lines ...computervision.OcrLine) computervision.OcrResult {
	regions := []computervision.OcrRegion{{Lines: &lines}}
	return computervision.OcrResult{Regions: &regions}
}

func grayImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.Gray{Y: 200})
		}
	}
	return img
}

func TestAzure_Recognize(t *testing.T) {
	fake := &fakeOCR{result: ocrResult(
		ocrLine("0,0,50,20", "The", "Matrix"),
		ocrLine("0,90,10,2", "tiny"), // below min text height
		ocrLine("bad", "ignored"),
	)}
	a := newAzureWithClient(fake, 80)

	opts := DefaultOptions()
	obs, err := a.Recognize(context.Background(), grayImage(100, 200), geometry.Right, opts)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "The Matrix", obs[0].Top())
	assert.Equal(t, computervision.OcrLanguagesEn, fake.language)
	assert.Equal(t, image.Pt(200, 100), fake.size, "image is sent upright")
	assert.True(t, obs[0].Box.ApproxEqual(geometry.NewRect(0, 0, 0.25, 0.2), 1e-9), obs[0].Box.String())
	assert.Equal(t, []string{"the matrix"}, Words(obs))
}

func TestAzure_AutoDetectAndROI(t *testing.T) {
	fake := &fakeOCR{result: ocrResult()}
	a := newAzureWithClient(fake, 80)

	roi := geometry.NewRect(0.5, 0.5, 0.5, 0.5)
	opts := DefaultOptions()
	opts.AutoDetectLanguage = true
	opts.Level = LevelFast
	opts.ROI = &roi

	obs, err := a.Recognize(context.Background(), grayImage(100, 60), geometry.Up, opts)
	require.NoError(t, err)
	assert.Empty(t, obs)
	assert.Equal(t, computervision.OcrLanguagesUnk, fake.language)
	assert.Equal(t, image.Pt(50, 30), fake.size)
}

func TestAzure_Errors(t *testing.T) {
	fake := &fakeOCR{err: errors.New("quota exceeded")}
	a := newAzureWithClient(fake, 80)

	_, err := a.Recognize(context.Background(), grayImage(10, 10), geometry.Up, DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	_, err = a.Recognize(context.Background(), nil, geometry.Up, DefaultOptions())
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Recognize(ctx, grayImage(10, 10), geometry.Up, DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fake.calls)
}

func TestNewAzure_RequiresCredentials(t *testing.T) {
	_, err := NewAzure(AzureConfig{})
	require.Error(t, err)

	a, err := NewAzure(AzureConfig{Endpoint: "https://example.cognitiveservices.azure.com/", Key: "k"})
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestParseBoundingBox(t *testing.T) {
	r, ok := parseBoundingBox(strp("10, 20, 30, 40"), 100, 100)
	require.True(t, ok)
	assert.True(t, r.ApproxEqual(geometry.NewRect(0.1, 0.2, 0.3, 0.4), 1e-9))

	_, ok = parseBoundingBox(nil, 100, 100)
	assert.False(t, ok)
	_, ok = parseBoundingBox(strp("1,2,3"), 100, 100)
	assert.False(t, ok)
	_, ok = parseBoundingBox(strp("1,2,3,x"), 100, 100)
	assert.False(t, ok)
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())

	bad := DefaultOptions()
	bad.Level = "slow"
	assert.Error(t, bad.Validate())

	bad = DefaultOptions()
	bad.MinTextHeight = 2
	assert.Error(t, bad.Validate())

	bad = DefaultOptions()
	bad.MaxCandidates = 0
	assert.Error(t, bad.Validate())

	bad = DefaultOptions()
	bad.Languages = nil
	assert.Error(t, bad.Validate())
	bad.AutoDetectLanguage = true
	assert.NoError(t, bad.Validate())
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("Fast")
	require.NoError(t, err)
	assert.Equal(t, LevelFast, l)
	_, err = ParseLevel("turbo")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	r, err := New(Config{Backend: BackendNone})
	require.NoError(t, err)
	obs, err := r.Recognize(context.Background(), grayImage(2, 2), geometry.Up, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, obs)

	_, err = New(Config{Backend: "tesseract"})
	require.Error(t, err)

	_, err = New(DefaultConfig())
	require.Error(t, err, "azure without credentials")
}
