package testutil

import (
	"context"
	"image"
	"sync"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/pipeline"
	"github.com/MeKo-Tech/titlecam/internal/recognizer"
)

// ScriptedDetector returns fixed boxes (or an error) and counts calls.
type ScriptedDetector struct {
	mu           sync.Mutex
	boxes        []geometry.Rect
	err          error
	calls        int
	orientations []geometry.Orientation
}

// NewScriptedDetector returns a detector reporting boxes.
func NewScriptedDetector(boxes ...geometry.Rect) *ScriptedDetector {
	return &ScriptedDetector{boxes: boxes}
}

// Set replaces the scripted response.
func (d *ScriptedDetector) Set(boxes []geometry.Rect, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.boxes, d.err = boxes, err
}

// Detect implements detector.Detector.
func (d *ScriptedDetector) Detect(ctx context.Context, _ image.Image, o geometry.Orientation) ([]geometry.Rect, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.orientations = append(d.orientations, o)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.err != nil {
		return nil, d.err
	}
	out := make([]geometry.Rect, len(d.boxes))
	copy(out, d.boxes)
	return out, nil
}

// Calls returns the number of Detect calls.
func (d *ScriptedDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Orientations returns the orientation passed to every call.
func (d *ScriptedDetector) Orientations() []geometry.Orientation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]geometry.Orientation(nil), d.orientations...)
}

// RecognizeCall is one recorded recognition request.
type RecognizeCall struct {
	Image       image.Image
	Orientation geometry.Orientation
	Options     recognizer.Options
}

// ScriptedRecognizer returns fixed text lines and records requests. Block,
// when set, is waited on before answering.
type ScriptedRecognizer struct {
	mu    sync.Mutex
	lines []string
	err   error
	calls []RecognizeCall
	Block chan struct{}
}

// NewScriptedRecognizer returns a recognizer answering one observation per line.
func NewScriptedRecognizer(lines ...string) *ScriptedRecognizer {
	return &ScriptedRecognizer{lines: lines}
}

// Set replaces the scripted response.
func (r *ScriptedRecognizer) Set(lines []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines, r.err = lines, err
}

// Recognize implements recognizer.Recognizer.
func (r *ScriptedRecognizer) Recognize(ctx context.Context, img image.Image, o geometry.Orientation,
	opts recognizer.Options,
) ([]recognizer.Observation, error) {
	r.mu.Lock()
	r.calls = append(r.calls, RecognizeCall{Image: img, Orientation: o, Options: opts})
	block := r.Block
	lines, err := r.lines, r.err
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	obs := make([]recognizer.Observation, len(lines))
	for i, l := range lines {
		obs[i] = recognizer.Observation{Candidates: []recognizer.Candidate{{Text: l, Confidence: 0.9}}}
	}
	return obs, nil
}

// Calls returns the recorded requests.
func (r *ScriptedRecognizer) Calls() []RecognizeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecognizeCall(nil), r.calls...)
}

// RecordingPresenter collects shown and cleared results.
type RecordingPresenter struct {
	mu      sync.Mutex
	shown   []pipeline.SnapshotResult
	cleared int
	Shown   chan pipeline.SnapshotResult
	Cleared chan struct{}
}

// NewRecordingPresenter returns a presenter with buffered notification channels.
func NewRecordingPresenter() *RecordingPresenter {
	return &RecordingPresenter{
		Shown:   make(chan pipeline.SnapshotResult, 16),
		Cleared: make(chan struct{}, 16),
	}
}

// ShowResult implements pipeline.Presenter.
func (p *RecordingPresenter) ShowResult(r pipeline.SnapshotResult) {
	p.mu.Lock()
	p.shown = append(p.shown, r)
	p.mu.Unlock()
	select {
	case p.Shown <- r:
	default:
	}
}

// ClearResult implements pipeline.Presenter.
func (p *RecordingPresenter) ClearResult() {
	p.mu.Lock()
	p.cleared++
	p.mu.Unlock()
	select {
	case p.Cleared <- struct{}{}:
	default:
	}
}

// Results returns every shown result.
func (p *RecordingPresenter) Results() []pipeline.SnapshotResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pipeline.SnapshotResult(nil), p.shown...)
}

// ClearCount returns how often the result was cleared.
func (p *RecordingPresenter) ClearCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cleared
}

// PreviewRecorder collects preview frames.
type PreviewRecorder struct {
	mu     sync.Mutex
	frames []pipeline.PreviewFrame
	Frames chan pipeline.PreviewFrame
}

// NewPreviewRecorder returns a recorder with a buffered notification channel.
func NewPreviewRecorder() *PreviewRecorder {
	return &PreviewRecorder{Frames: make(chan pipeline.PreviewFrame, 64)}
}

// ShowPreview implements pipeline.PreviewSink.
func (r *PreviewRecorder) ShowPreview(_ context.Context, f pipeline.PreviewFrame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	select {
	case r.Frames <- f:
	default:
	}
}

// All returns every recorded frame.
func (r *PreviewRecorder) All() []pipeline.PreviewFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.PreviewFrame(nil), r.frames...)
}
