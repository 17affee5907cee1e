package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/pipeline"
	"github.com/MeKo-Tech/titlecam/internal/utils"
	"github.com/corona10/goimagehash"
)

// Message types pushed to display clients.
const (
	MessagePreview = "preview"
	MessageResult  = "result"
	MessageClear   = "clear"
	MessageState   = "state"
	MessageError   = "error"
)

// Message is the envelope of every websocket message.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// PreviewPayload is one annotated preview frame.
type PreviewPayload struct {
	Seq         uint64               `json:"seq"`
	Orientation geometry.Orientation `json:"orientation"`
	Width       int                  `json:"width"`
	Height      int                  `json:"height"`
	Boxes       []geometry.Rect      `json:"boxes"`
	Detected    bool                 `json:"detected"`
	// Image is a base64 JPEG.
	Image string `json:"image"`
}

// ResultPayload is a snapshot result as shown to the user.
type ResultPayload struct {
	CaptureID   string               `json:"capture_id"`
	Seq         uint64               `json:"seq"`
	Orientation geometry.Orientation `json:"orientation"`
	Text        string               `json:"text"`
	DisplayText string               `json:"display_text"`
	Words       []string             `json:"words"`
	Found       bool                 `json:"found"`
	Box         *geometry.Rect       `json:"box,omitempty"`
	DurationMs  int64                `json:"duration_ms"`
	Error       string               `json:"error,omitempty"`
}

// NewResultPayload converts a snapshot result for display.
func NewResultPayload(r pipeline.SnapshotResult, notFound string) ResultPayload {
	return ResultPayload{
		CaptureID:   r.CaptureID.String(),
		Seq:         r.Seq,
		Orientation: r.Orientation,
		Text:        r.Text,
		DisplayText: r.DisplayText(notFound),
		Words:       r.Words,
		Found:       r.Found,
		Box:         r.Box,
		DurationMs:  r.Duration.Milliseconds(),
		Error:       r.Error,
	}
}

// HubConfig tunes broadcasting.
type HubConfig struct {
	// ClientBuffer is the per client outgoing queue length.
	ClientBuffer int
	JPEGQuality  int
	// PreviewHashDistance is the largest perceptual hash distance at which a
	// preview frame with unchanged boxes is considered a repeat and skipped.
	// Negative disables de-duplication.
	PreviewHashDistance int
	NotFoundText        string
}

// DefaultHubConfig returns defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		ClientBuffer:        8,
		JPEGQuality:         75,
		PreviewHashDistance: 2,
		NotFoundText:        pipeline.DefaultConfig().NotFoundText,
	}
}

type client struct {
	send   chan []byte
	remote string
}

// Hub fans preview frames and results out to every connected display.
// It implements pipeline.PreviewSink and pipeline.Presenter; neither ever
// blocks on a slow client, whose messages are dropped instead.
type Hub struct {
	cfg    HubConfig
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	dedupMu   sync.Mutex
	lastHash  *goimagehash.ImageHash
	lastBoxes []geometry.Rect
}

// NewHub creates a hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 1
	}
	return &Hub{
		cfg:     cfg,
		logger:  slog.Default().With("component", "hub"),
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) register(remote string) *client {
	c := &client{send: make(chan []byte, h.cfg.ClientBuffer), remote: remote}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	websocketConnections.Inc()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		websocketConnections.Dec()
	}
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every client and returns how many queued it.
func (h *Hub) Broadcast(msg Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal websocket message", "type", msg.Type, "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for c := range h.clients {
		select {
		case c.send <- data:
			sent++
			websocketMessagesTotal.WithLabelValues("sent", msg.Type).Inc()
		default:
			websocketMessagesTotal.WithLabelValues("dropped", msg.Type).Inc()
			h.logger.Debug("client queue full, message dropped", "remote", c.remote, "type", msg.Type)
		}
	}
	return sent
}

// ShowPreview implements pipeline.PreviewSink.
func (h *Hub) ShowPreview(_ context.Context, f pipeline.PreviewFrame) {
	if h.Clients() == 0 || f.Image == nil {
		return
	}
	if h.isRepeat(f) {
		previewDeduplicatedTotal.Inc()
		return
	}

	jpg, err := utils.JPEGBytes(f.Image, h.cfg.JPEGQuality)
	if err != nil {
		h.logger.Warn("Failed to encode preview frame", "seq", f.Seq, "error", err)
		return
	}
	b := f.Image.Bounds()
	boxes := f.Boxes
	if boxes == nil {
		boxes = []geometry.Rect{}
	}
	h.Broadcast(Message{Type: MessagePreview, Payload: PreviewPayload{
		Seq:         f.Seq,
		Orientation: f.Orientation,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Boxes:       boxes,
		Detected:    f.Detected,
		Image:       base64.StdEncoding.EncodeToString(jpg),
	}})
}

// isRepeat reports whether f looks like the last broadcast frame and carries
// the same boxes.
func (h *Hub) isRepeat(f pipeline.PreviewFrame) bool {
	if h.cfg.PreviewHashDistance < 0 {
		return false
	}
	hash, err := goimagehash.PerceptionHash(f.Image)
	if err != nil {
		return false
	}

	h.dedupMu.Lock()
	defer h.dedupMu.Unlock()

	if h.lastHash != nil && sameBoxes(h.lastBoxes, f.Boxes) {
		if dist, err := h.lastHash.Distance(hash); err == nil && dist <= h.cfg.PreviewHashDistance {
			return true
		}
	}
	h.lastHash = hash
	h.lastBoxes = append(h.lastBoxes[:0], f.Boxes...)
	return false
}

func sameBoxes(a, b []geometry.Rect) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].ApproxEqual(b[i], 1e-6) {
			return false
		}
	}
	return true
}

// ShowResult implements pipeline.Presenter.
func (h *Hub) ShowResult(r pipeline.SnapshotResult) {
	h.Broadcast(Message{Type: MessageResult, Payload: NewResultPayload(r, h.cfg.NotFoundText)})
}

// ClearResult implements pipeline.Presenter.
func (h *Hub) ClearResult() {
	h.Broadcast(Message{Type: MessageClear})
}
