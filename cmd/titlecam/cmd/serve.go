package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MeKo-Tech/titlecam/internal/camera"
	"github.com/MeKo-Tech/titlecam/internal/config"
	"github.com/MeKo-Tech/titlecam/internal/detector"
	"github.com/MeKo-Tech/titlecam/internal/history"
	"github.com/MeKo-Tech/titlecam/internal/orientation"
	"github.com/MeKo-Tech/titlecam/internal/pipeline"
	"github.com/MeKo-Tech/titlecam/internal/recognizer"
	"github.com/MeKo-Tech/titlecam/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture pipelines behind an HTTP and WebSocket API",
	Long: `Replay a directory of pictures as a live camera, stream annotated preview
frames over WebSocket and read titles from snapshots on request.

The server provides the following endpoints:
  POST /api/capture     - Take a snapshot and recognize its title
  GET  /api/orientation - Current sensor orientation
  POST /api/orientation - Report a device rotation
  GET  /api/state       - Coordinator state and latest result
  GET  /api/results     - Recorded results, newest first
  GET  /ws              - Preview, result and state messages
  GET  /health          - Health check endpoint
  GET  /metrics         - Prometheus metrics

Examples:
  titlecam serve
  titlecam serve --frames-dir ./frames --fps 15
  titlecam serve --host 0.0.0.0 --port 3000 --no-history`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		applyServeFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("cors-origin") {
		cfg.Server.CORSOrigin, _ = cmd.Flags().GetString("cors-origin")
	}
	if cmd.Flags().Changed("frames-dir") {
		cfg.Camera.FramesDir, _ = cmd.Flags().GetString("frames-dir")
	}
	if cmd.Flags().Changed("fps") {
		cfg.Camera.FPS, _ = cmd.Flags().GetFloat64("fps")
	}
	if cmd.Flags().Changed("no-loop") {
		noLoop, _ := cmd.Flags().GetBool("no-loop")
		cfg.Camera.Loop = !noLoop
	}
	if cmd.Flags().Changed("orientation") {
		cfg.Camera.InitialOrientation, _ = cmd.Flags().GetString("orientation")
	}
	if cmd.Flags().Changed("no-history") {
		noHistory, _ := cmd.Flags().GetBool("no-history")
		cfg.History.Enabled = !noHistory
	}
	if cmd.Flags().Changed("history-db") {
		cfg.History.Path, _ = cmd.Flags().GetString("history-db")
	}
	applyBackendFlags(cmd, cfg)
}

// applyBackendFlags handles the flags shared by serve and snapshot.
func applyBackendFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("detector") {
		cfg.Detector.Backend, _ = cmd.Flags().GetString("detector")
	}
	if cmd.Flags().Changed("det-model") {
		cfg.Detector.ONNX.ModelPath, _ = cmd.Flags().GetString("det-model")
	}
	if cmd.Flags().Changed("recognizer") {
		cfg.Recognizer.Backend, _ = cmd.Flags().GetString("recognizer")
	}
	if cmd.Flags().Changed("crop-dir") {
		cfg.Pipeline.CropDebugDir, _ = cmd.Flags().GetString("crop-dir")
	}
}

func addBackendFlags(cmd *cobra.Command) {
	cmd.Flags().String("detector", detector.BackendONNX, "detector backend (onnx, static)")
	cmd.Flags().String("det-model", "", "override detection model path")
	cmd.Flags().String("recognizer", recognizer.BackendAzure, "recognizer backend (azure, none)")
	cmd.Flags().String("crop-dir", "", "write every snapshot crop to this directory")
}

func runServe(ctx context.Context, cfg *config.Config) error {
	pcfg, err := cfg.ToPipelineConfig()
	if err != nil {
		return err
	}

	tracker := orientation.NewTracker(cfg.InitialOrientation())
	cam, err := camera.NewFileCamera(cfg.ToFileCameraConfig(), tracker)
	if err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}

	det, detCloser, err := detector.New(cfg.Detector)
	if err != nil {
		return fmt.Errorf("failed to initialize detector: %w", err)
	}
	defer func() {
		if err := detCloser.Close(); err != nil {
			slog.Warn("Detector cleanup error", "error", err)
		}
	}()

	rec, err := recognizer.New(cfg.Recognizer)
	if err != nil {
		return fmt.Errorf("failed to initialize recognizer: %w", err)
	}

	hub := server.NewHub(cfg.ToHubConfig())
	builder := pipeline.NewBuilder().
		WithConfig(pcfg).
		WithCamera(cam).
		WithDetector(det).
		WithRecognizer(rec).
		WithPreviewSink(hub).
		WithPresenter(hub)

	var hist server.HistoryLister
	if cfg.History.Enabled {
		store, err := history.Open(ctx, cfg.History.Path)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer func() { _ = store.Close() }()
		builder = builder.WithRecorder(store)
		hist = store
	}

	coord, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	srv, err := server.NewServer(cfg.ToServerConfig(), coord, hub, tracker, hist)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	slog.Info("Starting titlecam",
		"frames", cam.Len(),
		"detector", cfg.Detector.Backend,
		"recognizer", cfg.Recognizer.Backend,
		"orientation", tracker.Current().String(),
		"history", cfg.History.Enabled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cam.Run(gctx) })
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Graceful shutdown completed")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().String("frames-dir", "frames", "directory of pictures replayed as the camera")
	serveCmd.Flags().Float64("fps", 10, "camera frame rate")
	serveCmd.Flags().Bool("no-loop", false, "stop the camera after one pass over the directory")
	serveCmd.Flags().String("orientation", "right", "initial sensor orientation (up, down, left, right)")
	serveCmd.Flags().Bool("no-history", false, "do not record results")
	serveCmd.Flags().String("history-db", "titlecam.db", "SQLite database for recorded results")
	addBackendFlags(serveCmd)
}
