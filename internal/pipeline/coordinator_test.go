package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/camera"
	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/pipeline"
	"github.com/MeKo-Tech/titlecam/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRecorder struct {
	mu      sync.Mutex
	results []pipeline.SnapshotResult
}

func (r *memoryRecorder) Record(_ context.Context, res pipeline.SnapshotResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func (r *memoryRecorder) All() []pipeline.SnapshotResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.SnapshotResult(nil), r.results...)
}

type harness struct {
	feed      *camera.Feed
	det       *testutil.ScriptedDetector
	rec       *testutil.ScriptedRecognizer
	presenter *testutil.RecordingPresenter
	recorder  *memoryRecorder
	sink      *testutil.PreviewRecorder
	coord     *pipeline.Coordinator
	picture   testutil.TitleCardConfig
}

func newHarness(t *testing.T, o geometry.Orientation, display time.Duration) *harness {
	t.Helper()
	card := testutil.DefaultTitleCardConfig()
	h := &harness{
		feed:      camera.NewFeed(camera.DefaultFeedConfig(), camera.FixedOrientation(o)),
		det:       testutil.NewScriptedDetector(card.CardRect()),
		rec:       testutil.NewScriptedRecognizer("Blade Runner"),
		presenter: testutil.NewRecordingPresenter(),
		recorder:  &memoryRecorder{},
		sink:      testutil.NewPreviewRecorder(),
		picture:   card,
	}
	coord, err := pipeline.NewBuilder().
		WithResultDisplayDuration(display).
		WithCamera(h.feed).
		WithDetector(h.det).
		WithRecognizer(h.rec).
		WithPreviewSink(h.sink).
		WithPresenter(h.presenter).
		WithRecorder(h.recorder).
		Build()
	require.NoError(t, err)
	h.coord = coord
	return h
}

func (h *harness) start(t *testing.T) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.coord.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		h.feed.Close()
	})
	return cancel, done
}

func waitResult(t *testing.T, p *testutil.RecordingPresenter) pipeline.SnapshotResult {
	t.Helper()
	select {
	case r := <-p.Shown:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("no result shown")
		return pipeline.SnapshotResult{}
	}
}

func TestCoordinator_CaptureCycle(t *testing.T) {
	h := newHarness(t, geometry.Right, time.Minute)
	h.start(t)

	_, ok := h.feed.Emit(testutil.GenerateTitleCard(h.picture))
	require.True(t, ok)

	id, err := h.coord.RequestCapture(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	res := waitResult(t, h.presenter)
	assert.Equal(t, id, res.CaptureID)
	assert.True(t, res.Found)
	assert.Equal(t, "blade runner", res.Text)
	assert.Equal(t, geometry.Right, res.Orientation)

	require.Eventually(t, func() bool { return !h.coord.InFlight() }, time.Second, time.Millisecond)
	assert.Equal(t, pipeline.StateIdle, h.coord.State())
	assert.False(t, h.feed.PreviewPaused())

	latest, ok := h.coord.Latest()
	require.True(t, ok)
	assert.Equal(t, id, latest.CaptureID)

	require.Eventually(t, func() bool { return len(h.recorder.All()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, id, h.recorder.All()[0].CaptureID)
}

func TestCoordinator_SecondRequestWhileInFlightIsRejected(t *testing.T) {
	h := newHarness(t, geometry.Up, time.Minute)
	h.rec.Block = make(chan struct{})
	h.start(t)
	h.feed.Emit(testutil.GenerateTitleCard(h.picture))

	_, err := h.coord.RequestCapture(context.Background())
	require.NoError(t, err)
	assert.True(t, h.feed.PreviewPaused())

	for range 3 {
		_, err = h.coord.RequestCapture(context.Background())
		assert.ErrorIs(t, err, pipeline.ErrCaptureInFlight)
	}

	require.Eventually(t, func() bool { return len(h.rec.Calls()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, pipeline.StateProcessing, h.coord.State())
	close(h.rec.Block)

	waitResult(t, h.presenter)
	require.Eventually(t, func() bool { return !h.coord.InFlight() }, time.Second, time.Millisecond)
	assert.Len(t, h.rec.Calls(), 1)

	_, err = h.coord.RequestCapture(context.Background())
	assert.NoError(t, err, "a new cycle may start once idle")
}

func TestCoordinator_CaptureFailureRollsBack(t *testing.T) {
	h := newHarness(t, geometry.Up, time.Minute)
	h.start(t)

	_, err := h.coord.RequestCapture(context.Background())
	require.ErrorIs(t, err, camera.ErrNoFrame)
	assert.Equal(t, pipeline.StateIdle, h.coord.State())
	assert.False(t, h.feed.PreviewPaused())
}

func TestCoordinator_RequestWithCancelledContext(t *testing.T) {
	h := newHarness(t, geometry.Up, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.coord.RequestCapture(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, pipeline.StateIdle, h.coord.State())
}

func TestCoordinator_ResultClearsAfterDisplayDuration(t *testing.T) {
	h := newHarness(t, geometry.Up, 30*time.Millisecond)
	h.start(t)
	h.feed.Emit(testutil.GenerateTitleCard(h.picture))

	_, err := h.coord.RequestCapture(context.Background())
	require.NoError(t, err)
	waitResult(t, h.presenter)

	select {
	case <-h.presenter.Cleared:
	case <-time.After(2 * time.Second):
		t.Fatal("result was not cleared")
	}
	_, ok := h.coord.Latest()
	assert.False(t, ok)
}

func TestCoordinator_NewerResultRestartsDisplayTimer(t *testing.T) {
	h := newHarness(t, geometry.Up, 150*time.Millisecond)

	h.coord.SnapshotStarted(1)
	h.coord.SnapshotFinished(pipeline.SnapshotResult{Seq: 1, Text: "first", Found: true})
	time.Sleep(100 * time.Millisecond)
	h.coord.SnapshotStarted(2)
	h.coord.SnapshotFinished(pipeline.SnapshotResult{Seq: 2, Text: "second", Found: true})

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, h.presenter.ClearCount(), "first timer must not clear the newer result")
	latest, ok := h.coord.Latest()
	require.True(t, ok)
	assert.Equal(t, "second", latest.Text)

	require.Eventually(t, func() bool { return h.presenter.ClearCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.presenter.ClearCount())
}

func TestCoordinator_UnrequestedSnapshotIsProcessed(t *testing.T) {
	h := newHarness(t, geometry.Up, time.Minute)

	h.coord.SnapshotStarted(9)
	assert.Equal(t, pipeline.StateProcessing, h.coord.State())
	assert.True(t, h.feed.PreviewPaused())

	h.coord.SnapshotFinished(pipeline.SnapshotResult{Seq: 9})
	res := waitResult(t, h.presenter)
	assert.NotEqual(t, uuid.Nil, res.CaptureID)
	assert.Equal(t, pipeline.StateIdle, h.coord.State())
	assert.False(t, h.feed.PreviewPaused())
}

func TestCoordinator_StreamsPreviewWhileIdle(t *testing.T) {
	h := newHarness(t, geometry.Left, time.Minute)
	h.start(t)

	h.feed.Emit(testutil.GenerateTitleCard(h.picture))
	select {
	case f := <-h.sink.Frames:
		require.Len(t, f.Boxes, 1)
		assert.True(t, geometry.RotateToMatch(h.picture.CardRect(), geometry.Left).ApproxEqual(f.Boxes[0], 1e-9))
	case <-time.After(2 * time.Second):
		t.Fatal("no preview frame")
	}
}

func TestCoordinator_RunEndsWhenCameraCloses(t *testing.T) {
	h := newHarness(t, geometry.Up, time.Minute)
	_, done := h.start(t)
	h.feed.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop")
	}
}

func TestCoordinator_CancelDiscardsInFlightResult(t *testing.T) {
	h := newHarness(t, geometry.Up, time.Minute)
	h.rec.Block = make(chan struct{})
	cancel, done := h.start(t)
	h.feed.Emit(testutil.GenerateTitleCard(h.picture))

	_, err := h.coord.RequestCapture(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(h.rec.Calls()) == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop")
	}
	assert.Empty(t, h.presenter.Results())
	assert.Empty(t, h.recorder.All())
	assert.Equal(t, pipeline.StateIdle, h.coord.State())
	assert.False(t, h.feed.PreviewPaused())
}

func TestCoordinator_RestartAfterStopDuringCaptureDeliversPreview(t *testing.T) {
	h := newHarness(t, geometry.Up, time.Minute)
	h.rec.Block = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.coord.Run(ctx) }()

	h.feed.Emit(testutil.GenerateTitleCard(h.picture))
	_, err := h.coord.RequestCapture(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(h.rec.Calls()) == 1 }, time.Second, time.Millisecond)
	require.True(t, h.feed.PreviewPaused())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop")
	}
	require.False(t, h.feed.PreviewPaused())

	// Drain what the first run left behind.
	for len(h.sink.Frames) > 0 {
		<-h.sink.Frames
	}

	_, _ = h.start(t)
	h.feed.Emit(testutil.GenerateTitleCard(h.picture))
	select {
	case f := <-h.sink.Frames:
		assert.NotZero(t, f.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("no preview frame after restart")
	}
	assert.Equal(t, pipeline.StateIdle, h.coord.State())
}

func TestBuilder_Validate(t *testing.T) {
	_, err := pipeline.NewBuilder().Build()
	require.Error(t, err)

	_, err = pipeline.NewBuilder().
		WithCamera(camera.NewFeed(camera.DefaultFeedConfig(), nil)).
		WithDetector(testutil.NewScriptedDetector()).
		WithRecognizer(testutil.NewScriptedRecognizer()).
		WithFramesBetweenDetection(-1).
		Build()
	require.Error(t, err)

	b := pipeline.NewBuilder().WithPadding(0.1, 0.2).WithDisplayReference(geometry.Left)
	assert.InDelta(t, 0.1, b.Config().PaddingWidth, 1e-12)
	assert.Equal(t, geometry.Left, b.Config().DisplayReference)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, pipeline.DefaultConfig().Validate())

	cfg := pipeline.DefaultConfig()
	cfg.ResultDisplayDuration = 0
	assert.Error(t, cfg.Validate())

	cfg = pipeline.DefaultConfig()
	cfg.PaddingHeight = -0.1
	assert.Error(t, cfg.Validate())
}

func TestSnapshotResult_DisplayText(t *testing.T) {
	assert.Equal(t, "dune", pipeline.SnapshotResult{Text: "dune", Found: true}.DisplayText("?"))
	assert.Equal(t, "?", pipeline.SnapshotResult{}.DisplayText("?"))
	assert.Equal(t, "?", pipeline.SnapshotResult{Error: errors.New("x").Error()}.DisplayText("?"))
}
