package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/history"
	"github.com/MeKo-Tech/titlecam/internal/orientation"
	"github.com/MeKo-Tech/titlecam/internal/pipeline"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeCapture struct {
	mu     sync.Mutex
	state  pipeline.State
	err    error
	calls  int
	latest *pipeline.SnapshotResult
}

func (f *fakeCapture) RequestCapture(ctx context.Context) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return uuid.Nil, f.err
	}
	if f.state != pipeline.StateIdle {
		return uuid.Nil, pipeline.ErrCaptureInFlight
	}
	f.state = pipeline.StateAwaitingSnapshot
	return uuid.New(), nil
}

func (f *fakeCapture) State() pipeline.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeCapture) Latest() (pipeline.SnapshotResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return pipeline.SnapshotResult{}, false
	}
	return *f.latest, true
}

func (f *fakeCapture) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeHistory struct {
	entries []history.Entry
	err     error
	limit   int
}

func (f *fakeHistory) List(_ context.Context, limit int) ([]history.Entry, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

var errBroken = errors.New("broken")

func newTestServer(t *testing.T) (*Server, *fakeCapture, *orientation.Tracker, *fakeHistory) {
	t.Helper()
	capture := &fakeCapture{}
	tracker := orientation.NewTracker(geometry.Right)
	hist := &fakeHistory{}
	s, err := NewServer(DefaultConfig(), capture, NewHub(DefaultHubConfig()), tracker, hist)
	require.NoError(t, err)
	return s, capture, tracker, hist
}
