package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/history"
	"github.com/MeKo-Tech/titlecam/internal/orientation"
	"github.com/MeKo-Tech/titlecam/internal/pipeline"
	"github.com/MeKo-Tech/titlecam/internal/version"
)

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
	Clients int    `json:"clients"`
}

// CaptureResponse is returned by a successful capture request.
type CaptureResponse struct {
	CaptureID string `json:"capture_id"`
	State     string `json:"state"`
}

// OrientationRequest carries a device rotation event.
type OrientationRequest struct {
	Device string `json:"device"`
}

// OrientationResponse reports the orientation stamped on new frames.
type OrientationResponse struct {
	Orientation geometry.Orientation `json:"orientation"`
	Changed     bool                 `json:"changed"`
}

// StateResponse describes the capture loop.
type StateResponse struct {
	State       string                `json:"state"`
	InFlight    bool                  `json:"in_flight"`
	Orientation *geometry.Orientation `json:"orientation,omitempty"`
	Result      *ResultPayload        `json:"result,omitempty"`
}

// ResultsResponse lists past results.
type ResultsResponse struct {
	Results []history.Entry `json:"results"`
	Count   int             `json:"count"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Clients: s.hub.Clients(),
	})
}

// captureHandler starts a capture cycle. A request while one is in flight is
// answered 409 and not queued.
func (s *Server) captureHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := s.capture.RequestCapture(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrCaptureInFlight):
		s.writeErrorResponse(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		s.writeErrorResponse(w, "capture failed: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, CaptureResponse{CaptureID: id.String(), State: s.capture.State().String()})
}

func (s *Server) orientationHandler(w http.ResponseWriter, r *http.Request) {
	if s.orientation == nil {
		s.writeErrorResponse(w, "orientation tracking not configured", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, OrientationResponse{Orientation: s.orientation.Current()})
	case http.MethodPost:
		var req OrientationRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			s.writeErrorResponse(w, "invalid request body", http.StatusBadRequest)
			return
		}
		resp, err := s.applyRotation(req.Device)
		if err != nil {
			s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) applyRotation(device string) (OrientationResponse, error) {
	d, err := orientation.ParseDeviceOrientation(device)
	if err != nil {
		return OrientationResponse{}, err
	}
	changed := s.orientation.OnDeviceRotation(d)
	return OrientationResponse{Orientation: s.orientation.Current(), Changed: changed}, nil
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.stateSnapshot())
}

func (s *Server) stateSnapshot() StateResponse {
	st := s.capture.State()
	resp := StateResponse{State: st.String(), InFlight: st != pipeline.StateIdle}
	if s.orientation != nil {
		o := s.orientation.Current()
		resp.Orientation = &o
	}
	if latest, ok := s.capture.Latest(); ok {
		p := NewResultPayload(latest, s.notFound)
		resp.Result = &p
	}
	return resp
}

func (s *Server) resultsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		s.writeErrorResponse(w, "history not configured", http.StatusServiceUnavailable)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeErrorResponse(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list results", "error", err)
		s.writeErrorResponse(w, "failed to list results", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ResultsResponse{Results: entries, Count: len(entries)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}
