package camera

import (
	"sync"
	"sync/atomic"
)

// PreviewStream delivers preview frames through a one-slot buffer where the
// newest frame wins. A paused stream drops frames.
type PreviewStream struct {
	mu      sync.Mutex
	ch      chan Frame
	paused  atomic.Bool
	closed  bool
	dropped atomic.Uint64
}

// NewPreviewStream creates an open, unpaused stream.
func NewPreviewStream() *PreviewStream {
	return &PreviewStream{ch: make(chan Frame, 1)}
}

// Frames returns the receive side.
func (s *PreviewStream) Frames() <-chan Frame { return s.ch }

// Pause makes Publish drop frames until Resume. A queued frame that was not
// consumed yet is dropped too.
func (s *PreviewStream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused.Store(true)
	if s.closed {
		return
	}
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
}

// Resume re-enables delivery.
func (s *PreviewStream) Resume() { s.paused.Store(false) }

// Paused reports the pause flag.
func (s *PreviewStream) Paused() bool { return s.paused.Load() }

// Dropped returns how many frames were discarded (paused or replaced).
func (s *PreviewStream) Dropped() uint64 { return s.dropped.Load() }

// Publish offers f without blocking and reports whether it was queued. An
// unconsumed older frame is replaced.
func (s *PreviewStream) Publish(f Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.paused.Load() {
		s.dropped.Add(1)
		return false
	}
	select {
	case s.ch <- f:
		return true
	default:
	}
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- f:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Close ends the stream. Further publishes are ignored.
func (s *PreviewStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// SnapshotStream delivers full resolution captures. Unlike preview frames,
// snapshots are never replaced.
type SnapshotStream struct {
	mu     sync.RWMutex
	ch     chan Frame
	closed bool
}

// NewSnapshotStream creates a stream buffering up to capacity snapshots.
func NewSnapshotStream(capacity int) *SnapshotStream {
	if capacity < 1 {
		capacity = 1
	}
	return &SnapshotStream{ch: make(chan Frame, capacity)}
}

// Frames returns the receive side.
func (s *SnapshotStream) Frames() <-chan Frame { return s.ch }

// TryPublish queues f if there is room.
func (s *SnapshotStream) TryPublish(f Frame) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.ch <- f:
		return nil
	default:
		return ErrSnapshotBusy
	}
}

// Close ends the stream.
func (s *SnapshotStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
