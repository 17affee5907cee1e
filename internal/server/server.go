// Package server exposes the capture loop over HTTP: a websocket feed for the
// display, capture and orientation endpoints for the device, and result history.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/history"
	"github.com/MeKo-Tech/titlecam/internal/orientation"
	"github.com/MeKo-Tech/titlecam/internal/pipeline"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CaptureController starts capture cycles and reports their state.
type CaptureController interface {
	RequestCapture(ctx context.Context) (uuid.UUID, error)
	State() pipeline.State
	Latest() (pipeline.SnapshotResult, bool)
}

// OrientationController receives device rotation events.
type OrientationController interface {
	Current() geometry.Orientation
	OnDeviceRotation(d orientation.DeviceOrientation) bool
}

// HistoryLister lists past snapshot results.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	NotFoundText    string
}

// DefaultConfig returns defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            8080,
		CORSOrigin:      "*",
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		NotFoundText:    pipeline.DefaultConfig().NotFoundText,
	}
}

// Addr returns host:port.
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", c.Port)
	}
	return nil
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	capture      CaptureController
	orientation  OrientationController
	history      HistoryLister
	hub          *Hub
	corsOrigin   string
	notFound     string
	readTimeout  time.Duration
	shutdownWait time.Duration
	addr         string
}

// NewServer creates a server. capture and hub are required; orientation and
// history are optional and their endpoints answer 503 when missing.
func NewServer(cfg Config, capture CaptureController, hub *Hub, orient OrientationController, hist HistoryLister) (*Server, error) {
	if capture == nil {
		return nil, errors.New("capture controller is required")
	}
	if hub == nil {
		return nil, errors.New("hub is required")
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	return &Server{
		capture:      capture,
		orientation:  orient,
		history:      hist,
		hub:          hub,
		corsOrigin:   cfg.CORSOrigin,
		notFound:     cfg.NotFoundText,
		readTimeout:  cfg.ReadTimeout,
		shutdownWait: cfg.ShutdownTimeout,
		addr:         cfg.Addr(),
	}, nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/api/capture", s.corsMiddleware(s.captureHandler))
	mux.HandleFunc("/api/orientation", s.corsMiddleware(s.orientationHandler))
	mux.HandleFunc("/api/state", s.corsMiddleware(s.stateHandler))
	mux.HandleFunc("/api/results", s.corsMiddleware(s.resultsHandler))
	// The websocket route is not wrapped: the upgrade needs the raw writer.
	mux.HandleFunc("/ws", s.webSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns a mux with every route installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting titlecam server", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server", "timeout", s.shutdownWait.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownWait)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	slog.Info("HTTP server shutdown completed")
	return nil
}
