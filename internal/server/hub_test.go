package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/jpeg"
	"testing"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/pipeline"
	"github.com/MeKo-Tech/titlecam/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeMessage(t *testing.T, data []byte) (string, json.RawMessage) {
	t.Helper()
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	return env.Type, env.Payload
}

func previewFrame(seq uint64, boxes ...geometry.Rect) pipeline.PreviewFrame {
	return pipeline.PreviewFrame{
		Seq:         seq,
		Image:       testutil.GenerateTitleCard(testutil.DefaultTitleCardConfig()),
		Boxes:       boxes,
		Orientation: geometry.Right,
		Detected:    true,
	}
}

func TestHub_PreviewWithoutClientsIsSkipped(t *testing.T) {
	h := NewHub(DefaultHubConfig())
	h.ShowPreview(context.Background(), previewFrame(1))
	assert.Nil(t, h.lastHash, "no work is done without clients")
}

func TestHub_PreviewPayload(t *testing.T) {
	h := NewHub(DefaultHubConfig())
	c := h.register("test")
	defer h.unregister(c)

	box := geometry.NewRect(0.25, 0.2, 0.5, 0.2)
	h.ShowPreview(context.Background(), previewFrame(3, box))

	require.Len(t, c.send, 1)
	typ, raw := decodeMessage(t, <-c.send)
	assert.Equal(t, MessagePreview, typ)

	var p PreviewPayload
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, uint64(3), p.Seq)
	assert.Equal(t, geometry.Right, p.Orientation)
	assert.Equal(t, 320, p.Width)
	assert.Equal(t, 240, p.Height)
	require.Len(t, p.Boxes, 1)
	assert.True(t, box.ApproxEqual(p.Boxes[0], 1e-12))

	jpg, err := base64.StdEncoding.DecodeString(p.Image)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(jpg))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(320, 240), img.Bounds().Size())
}

func TestHub_RepeatedPreviewIsDeduplicated(t *testing.T) {
	h := NewHub(DefaultHubConfig())
	c := h.register("test")
	defer h.unregister(c)

	box := geometry.NewRect(0.1, 0.1, 0.2, 0.2)
	h.ShowPreview(context.Background(), previewFrame(1, box))
	h.ShowPreview(context.Background(), previewFrame(2, box))
	assert.Len(t, c.send, 1, "identical frame with identical boxes is skipped")

	h.ShowPreview(context.Background(), previewFrame(3, geometry.NewRect(0.3, 0.1, 0.2, 0.2)))
	assert.Len(t, c.send, 2, "moved boxes are always sent")
}

func TestHub_DeduplicationDisabled(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.PreviewHashDistance = -1
	h := NewHub(cfg)
	c := h.register("test")
	defer h.unregister(c)

	h.ShowPreview(context.Background(), previewFrame(1))
	h.ShowPreview(context.Background(), previewFrame(2))
	assert.Len(t, c.send, 2)
}

func TestHub_SlowClientDropsInsteadOfBlocking(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.ClientBuffer = 2
	h := NewHub(cfg)
	slow := h.register("slow")
	defer h.unregister(slow)

	for range 5 {
		h.ClearResult()
	}
	assert.Len(t, slow.send, 2)
	assert.Equal(t, 0, h.Broadcast(Message{Type: MessageClear}))
}

func TestHub_ResultAndClear(t *testing.T) {
	h := NewHub(DefaultHubConfig())
	c := h.register("test")
	defer h.unregister(c)

	id := uuid.New()
	h.ShowResult(pipeline.SnapshotResult{CaptureID: id, Text: "the matrix", Words: []string{"the matrix"}, Found: true})
	h.ShowResult(pipeline.SnapshotResult{CaptureID: id, Words: []string{}})
	h.ClearResult()

	typ, raw := decodeMessage(t, <-c.send)
	require.Equal(t, MessageResult, typ)
	var p ResultPayload
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, id.String(), p.CaptureID)
	assert.Equal(t, "the matrix", p.DisplayText)
	assert.True(t, p.Found)

	_, raw = decodeMessage(t, <-c.send)
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.False(t, p.Found)
	assert.Equal(t, "\U0001F937", p.DisplayText)

	typ, _ = decodeMessage(t, <-c.send)
	assert.Equal(t, MessageClear, typ)
}

func TestHub_UnregisterClosesQueue(t *testing.T) {
	h := NewHub(DefaultHubConfig())
	c := h.register("test")
	assert.Equal(t, 1, h.Clients())
	h.unregister(c)
	h.unregister(c)
	assert.Equal(t, 0, h.Clients())
	_, ok := <-c.send
	assert.False(t, ok)
}

var (
	_ pipeline.PreviewSink = (*Hub)(nil)
	_ pipeline.Presenter   = (*Hub)(nil)
)
