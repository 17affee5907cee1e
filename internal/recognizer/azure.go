package recognizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/utils"
)

// AzureConfig holds the Computer Vision endpoint and key. Both are usually
// supplied through AZURE_VISION_ENDPOINT and AZURE_VISION_KEY.
type AzureConfig struct {
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	Key         string `mapstructure:"key" yaml:"key" json:"-"`
	JPEGQuality int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
}

// DefaultAzureConfig returns defaults without credentials.
func DefaultAzureConfig() AzureConfig {
	return AzureConfig{JPEGQuality: 90}
}

// ocrClient is the subset of computervision.BaseClient used here.
type ocrClient interface {
	RecognizePrintedTextInStream(ctx context.Context, detectOrientation bool, image io.ReadCloser,
		language computervision.OcrLanguages) (computervision.OcrResult, error)
}

// Azure recognizes printed text with the Azure Computer Vision OCR API.
type Azure struct {
	client  ocrClient
	quality int
	logger  *slog.Logger
}

// NewAzure creates a client for cfg.Endpoint.
func NewAzure(cfg AzureConfig) (*Azure, error) {
	if cfg.Endpoint == "" || cfg.Key == "" {
		return nil, errors.New("azure recognizer: endpoint and key are required")
	}
	client := computervision.New(cfg.Endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(cfg.Key)
	return newAzureWithClient(client, cfg.JPEGQuality), nil
}

func newAzureWithClient(client ocrClient, quality int) *Azure {
	return &Azure{
		client:  client,
		quality: quality,
		logger:  slog.Default().With("component", "recognizer", "backend", BackendAzure),
	}
}

// Recognize implements Recognizer. The image is made upright locally, so the
// service never has to guess the orientation.
func (a *Azure) Recognize(ctx context.Context, img image.Image, o geometry.Orientation, opts Options) ([]Observation, error) {
	if img == nil {
		return nil, errors.New("azure recognizer: nil image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	upright := utils.Upright(img, o)
	if opts.ROI != nil {
		cropped, _, err := utils.CropNormalized(upright, opts.ROI.Clamp())
		if err != nil {
			return nil, fmt.Errorf("azure recognizer: roi: %w", err)
		}
		upright = cropped
	}
	if opts.Level == LevelAccurate {
		upright = utils.Enhance(upright)
	}

	data, err := utils.JPEGBytes(upright, a.quality)
	if err != nil {
		return nil, fmt.Errorf("azure recognizer: %w", err)
	}

	lang := ocrLanguage(opts)
	result, err := a.client.RecognizePrintedTextInStream(ctx, false, io.NopCloser(bytes.NewReader(data)), lang)
	if err != nil {
		return nil, fmt.Errorf("azure recognizer: failed to extract text: %w", err)
	}

	b := upright.Bounds()
	obs := observationsFromResult(result, b.Dx(), b.Dy(), opts)
	a.logger.Debug("recognition finished",
		"language", string(lang),
		"exif", o.EXIF(),
		"observations", len(obs))
	return obs, nil
}

// ocrLanguage picks the request language; auto-detection maps to "unk".
func ocrLanguage(opts Options) computervision.OcrLanguages {
	if opts.AutoDetectLanguage || len(opts.Languages) == 0 {
		return computervision.OcrLanguagesUnk
	}
	return computervision.OcrLanguages(strings.ToLower(opts.Languages[0]))
}

// observationsFromResult turns every OCR line into an observation whose single
// candidate is the line text.
func observationsFromResult(result computervision.OcrResult, width, height int, opts Options) []Observation {
	if result.Regions == nil {
		return nil
	}
	lang := ""
	if opts.LanguageCorrection {
		lang = "und"
		if len(opts.Languages) > 0 {
			lang = opts.Languages[0]
		}
	}

	var out []Observation
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			box, ok := parseBoundingBox(line.BoundingBox, width, height)
			if !ok {
				continue
			}
			if opts.MinTextHeight > 0 && box.Height < opts.MinTextHeight {
				continue
			}
			text := CleanText(lineText(line), lang)
			if text == "" || (opts.LanguageCorrection && !LooksLikeText(text)) {
				continue
			}
			out = append(out, Observation{
				Box:        box,
				Candidates: []Candidate{{Text: text, Confidence: 1}},
			})
		}
	}
	return Limit(out, opts.MaxCandidates)
}

func lineText(line computervision.OcrLine) string {
	if line.Words == nil {
		return ""
	}
	parts := make([]string, 0, len(*line.Words))
	for _, w := range *line.Words {
		if w.Text != nil {
			parts = append(parts, *w.Text)
		}
	}
	return strings.Join(parts, " ")
}

// parseBoundingBox reads the "x,y,w,h" pixel string used by the OCR API.
func parseBoundingBox(s *string, width, height int) (geometry.Rect, bool) {
	if s == nil || width <= 0 || height <= 0 {
		return geometry.Rect{}, false
	}
	parts := strings.Split(*s, ",")
	if len(parts) != 4 {
		return geometry.Rect{}, false
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return geometry.Rect{}, false
		}
		v[i] = n
	}
	return geometry.FromPixelCoordinates(image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), width, height), true
}
