package camera

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviewStream_NewestWins(t *testing.T) {
	s := NewPreviewStream()
	assert.True(t, s.Publish(Frame{Seq: 1}))
	assert.True(t, s.Publish(Frame{Seq: 2}))
	assert.True(t, s.Publish(Frame{Seq: 3}))

	f := <-s.Frames()
	assert.Equal(t, uint64(3), f.Seq)
	assert.Equal(t, uint64(2), s.Dropped())

	select {
	case f := <-s.Frames():
		t.Fatalf("unexpected frame %d", f.Seq)
	default:
	}
}

func TestPreviewStream_PauseDrops(t *testing.T) {
	s := NewPreviewStream()
	s.Pause()
	assert.True(t, s.Paused())
	assert.False(t, s.Publish(Frame{Seq: 1}))

	s.Resume()
	assert.True(t, s.Publish(Frame{Seq: 2}))
	assert.Equal(t, uint64(2), (<-s.Frames()).Seq)
}

func TestPreviewStream_PauseDropsQueuedFrame(t *testing.T) {
	s := NewPreviewStream()
	require.True(t, s.Publish(Frame{Seq: 1}))

	s.Pause()
	select {
	case f := <-s.Frames():
		t.Fatalf("frame %d delivered after pause", f.Seq)
	default:
	}
	assert.Equal(t, uint64(1), s.Dropped())

	s.Resume()
	require.True(t, s.Publish(Frame{Seq: 2}))
	assert.Equal(t, uint64(2), (<-s.Frames()).Seq)
}

func TestPreviewStream_NoDeliveryAfterConcurrentPause(t *testing.T) {
	for range 50 {
		s := NewPreviewStream()
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				s.Publish(Frame{Seq: uint64(i)})
			}
		}()
		s.Pause()
		wg.Wait()
		select {
		case f := <-s.Frames():
			t.Fatalf("frame %d queued while paused", f.Seq)
		default:
		}
	}
}

func TestPreviewStream_Close(t *testing.T) {
	s := NewPreviewStream()
	s.Close()
	s.Close()
	assert.False(t, s.Publish(Frame{Seq: 1}))
	_, ok := <-s.Frames()
	assert.False(t, ok)
}

func TestSnapshotStream(t *testing.T) {
	s := NewSnapshotStream(1)
	require.NoError(t, s.TryPublish(Frame{Seq: 1}))
	assert.ErrorIs(t, s.TryPublish(Frame{Seq: 2}), ErrSnapshotBusy)

	assert.Equal(t, uint64(1), (<-s.Frames()).Seq)
	require.NoError(t, s.TryPublish(Frame{Seq: 3}))
	assert.Equal(t, uint64(3), (<-s.Frames()).Seq)

	s.Close()
	assert.ErrorIs(t, s.TryPublish(Frame{}), ErrClosed)
}
