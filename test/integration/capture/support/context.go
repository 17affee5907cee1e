// Package support holds the state and step definitions of the capture
// feature suite.
package support

import (
	"context"
	"fmt"
	"net/http/httptest"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/camera"
	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/history"
	"github.com/MeKo-Tech/titlecam/internal/orientation"
	"github.com/MeKo-Tech/titlecam/internal/pipeline"
	"github.com/MeKo-Tech/titlecam/internal/server"
	"github.com/MeKo-Tech/titlecam/internal/testutil"
)

// NotFoundText is shown when a snapshot yields no title.
const NotFoundText = "no title"

// waitTimeout bounds every asynchronous expectation.
const waitTimeout = 2 * time.Second

// TestContext holds the running system of one scenario.
type TestContext struct {
	Tracker    *orientation.Tracker
	Feed       *camera.Feed
	Detector   *testutil.ScriptedDetector
	Recognizer *testutil.ScriptedRecognizer
	Presenter  *testutil.RecordingPresenter
	Previews   *testutil.PreviewRecorder
	Hub        *server.Hub
	History    *history.Store
	Coord      *pipeline.Coordinator
	HTTP       *httptest.Server

	Card testutil.TitleCardConfig

	LastStatus int
	LastBody   []byte
	LastResult *pipeline.SnapshotResult

	cancel context.CancelFunc
	done   chan error
}

// hubPresenter forwards results to the hub and to the recording presenter.
type hubPresenter struct {
	hub *server.Hub
	rec *testutil.RecordingPresenter
}

func (p hubPresenter) ShowResult(r pipeline.SnapshotResult) {
	p.hub.ShowResult(r)
	p.rec.ShowResult(r)
}

func (p hubPresenter) ClearResult() {
	p.hub.ClearResult()
	p.rec.ClearResult()
}

// NewTestContext starts the pipelines, the history store and the HTTP server.
func NewTestContext(display geometry.Orientation) (*TestContext, error) {
	ctx, cancel := context.WithCancel(context.Background())

	store, err := history.Open(ctx, ":memory:")
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open history: %w", err)
	}

	tc := &TestContext{
		Tracker:    orientation.NewTracker(orientation.DefaultOrientation),
		Detector:   testutil.NewScriptedDetector(),
		Recognizer: testutil.NewScriptedRecognizer(),
		Presenter:  testutil.NewRecordingPresenter(),
		Previews:   testutil.NewPreviewRecorder(),
		History:    store,
		Card:       testutil.DefaultTitleCardConfig(),
		cancel:     cancel,
		done:       make(chan error, 1),
	}
	tc.Feed = camera.NewFeed(camera.FeedConfig{SnapshotBuffer: 1, SensorLayout: true}, tc.Tracker)

	hubCfg := server.DefaultHubConfig()
	hubCfg.NotFoundText = NotFoundText
	tc.Hub = server.NewHub(hubCfg)

	coord, err := pipeline.NewBuilder().
		WithFramesBetweenDetection(0).
		WithDisplayReference(display).
		WithResultDisplayDuration(time.Minute).
		WithCamera(tc.Feed).
		WithDetector(tc.Detector).
		WithRecognizer(tc.Recognizer).
		WithPreviewSink(pipeline.PreviewSinkFunc(func(ctx context.Context, f pipeline.PreviewFrame) {
			tc.Hub.ShowPreview(ctx, f)
			tc.Previews.ShowPreview(ctx, f)
		})).
		WithPresenter(hubPresenter{hub: tc.Hub, rec: tc.Presenter}).
		WithRecorder(store).
		Build()
	if err != nil {
		tc.Cleanup()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	tc.Coord = coord

	srvCfg := server.DefaultConfig()
	srvCfg.NotFoundText = NotFoundText
	srv, err := server.NewServer(srvCfg, coord, tc.Hub, tc.Tracker, store)
	if err != nil {
		tc.Cleanup()
		return nil, fmt.Errorf("create server: %w", err)
	}
	tc.HTTP = httptest.NewServer(srv.Handler())

	go func() { tc.done <- coord.Run(ctx) }()
	return tc, nil
}

// Cleanup stops everything started by NewTestContext.
func (tc *TestContext) Cleanup() error {
	if tc.Recognizer.Block != nil {
		select {
		case <-tc.Recognizer.Block:
		default:
			close(tc.Recognizer.Block)
		}
	}
	if tc.HTTP != nil {
		tc.HTTP.Close()
	}
	tc.cancel()
	if tc.Feed != nil {
		tc.Feed.Close()
	}
	if tc.Coord != nil {
		select {
		case <-tc.done:
		case <-time.After(waitTimeout):
			return fmt.Errorf("coordinator did not stop within %s", waitTimeout)
		}
	}
	return tc.History.Close()
}
