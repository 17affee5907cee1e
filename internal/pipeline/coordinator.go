package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/camera"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State is the capture cycle state.
type State int

const (
	StateIdle State = iota
	StateAwaitingSnapshot
	StateProcessing
	StateResuming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingSnapshot:
		return "awaiting_snapshot"
	case StateProcessing:
		return "processing"
	case StateResuming:
		return "resuming"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Coordinator runs the preview and snapshot pipelines against one camera and
// drives the capture cycle: Idle, AwaitingSnapshot (preview paused),
// Processing, Resuming and back to Idle. At most one snapshot is in flight.
type Coordinator struct {
	cam       camera.Camera
	preview   *PreviewPipeline
	snapshot  *SnapshotPipeline
	sink      PreviewSink
	presenter Presenter
	recorder  Recorder
	cfg       Config
	logger    *slog.Logger

	mu         sync.Mutex
	state      State
	captureID  uuid.UUID
	latest     *SnapshotResult
	clearTimer *time.Timer
	clearGen   uint64
	runCtx     context.Context
}

// State returns the current capture state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InFlight reports whether a capture cycle is in progress.
func (c *Coordinator) InFlight() bool { return c.State() != StateIdle }

// Latest returns the result currently on display, if any.
func (c *Coordinator) Latest() (SnapshotResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return SnapshotResult{}, false
	}
	return *c.latest, true
}

// RequestCapture starts a capture cycle. It returns ErrCaptureInFlight unless
// the coordinator is idle. If the camera refuses, the cycle is rolled back.
func (c *Coordinator) RequestCapture(ctx context.Context) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		captureRequestsTotal.WithLabelValues("in_flight").Inc()
		c.logger.Debug("capture ignored", "state", c.state.String())
		return uuid.Nil, ErrCaptureInFlight
	}

	c.state = StateAwaitingSnapshot
	c.captureID = uuid.New()
	c.cam.PausePreview()

	if err := c.cam.CaptureImage(); err != nil {
		c.cam.ResumePreview()
		c.state = StateIdle
		c.captureID = uuid.Nil
		captureRequestsTotal.WithLabelValues("error").Inc()
		c.logger.Warn("capture failed", "error", err)
		return uuid.Nil, fmt.Errorf("capture image: %w", err)
	}

	captureRequestsTotal.WithLabelValues("accepted").Inc()
	c.logger.Info("capture requested", "capture_id", c.captureID.String())
	return c.captureID, nil
}

// SnapshotStarted implements SnapshotObserver.
func (c *Coordinator) SnapshotStarted(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingSnapshot {
		// A snapshot nobody asked for still gets processed.
		c.logger.Debug("unrequested snapshot", "seq", seq, "state", c.state.String())
		c.cam.PausePreview()
		c.captureID = uuid.New()
	}
	c.state = StateProcessing
}

// SnapshotFinished implements SnapshotObserver: preview resumes, the
// coordinator returns to Idle and the result is shown until the display
// duration elapses or a newer result replaces it.
func (c *Coordinator) SnapshotFinished(result SnapshotResult) {
	c.mu.Lock()
	c.state = StateResuming
	c.cam.ResumePreview()
	c.state = StateIdle

	result.CaptureID = c.captureID
	c.latest = &result
	if c.clearTimer != nil {
		c.clearTimer.Stop()
	}
	c.clearGen++
	gen := c.clearGen
	c.clearTimer = time.AfterFunc(c.cfg.ResultDisplayDuration, func() { c.clearResult(gen) })
	ctx := c.runCtx
	c.mu.Unlock()

	if c.presenter != nil {
		c.presenter.ShowResult(result)
	}
	if c.recorder != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		if err := c.recorder.Record(ctx, result); err != nil {
			c.logger.Warn("failed to record snapshot result", "capture_id", result.CaptureID.String(), "error", err)
		}
	}
}

func (c *Coordinator) clearResult(gen uint64) {
	c.mu.Lock()
	if gen != c.clearGen {
		c.mu.Unlock()
		return
	}
	c.latest = nil
	c.clearTimer = nil
	c.mu.Unlock()

	if c.presenter != nil {
		c.presenter.ClearResult()
	}
}

// Run runs both pipelines until both sources close or ctx is done. Stopping
// cancels both pipelines; results still in flight are discarded.
func (c *Coordinator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	c.mu.Lock()
	c.runCtx = gctx
	c.mu.Unlock()

	c.logger.Info("pipelines started")
	g.Go(func() error {
		return c.preview.Run(gctx, c.cam.Preview(), c.sink)
	})
	g.Go(func() error {
		return c.snapshot.Run(gctx, c.cam.Snapshots(), c)
	})

	err := g.Wait()

	c.mu.Lock()
	if c.clearTimer != nil {
		c.clearTimer.Stop()
		c.clearTimer = nil
	}
	if c.state != StateIdle {
		c.cam.ResumePreview()
		c.captureID = uuid.Nil
	}
	c.state = StateIdle
	c.runCtx = nil
	c.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("pipelines stopped", "error", err)
		return err
	}
	c.logger.Info("pipelines stopped")
	return nil
}
