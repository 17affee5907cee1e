package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/camera"
	"github.com/MeKo-Tech/titlecam/internal/detector"
	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/pipeline"
	"github.com/MeKo-Tech/titlecam/internal/recognizer"
	"github.com/MeKo-Tech/titlecam/internal/utils"
	"github.com/spf13/cobra"
)

const (
	outputFormatJSON = "json"
	outputFormatText = "text"
)

var annotateColor = color.RGBA{R: 255, A: 255}

// snapshotCmd runs the snapshot pipeline once on a picture file.
var snapshotCmd = &cobra.Command{
	Use:   "snapshot <image>",
	Short: "Read the title from a single picture",
	Long: `Run detection and recognition once on a picture stored in raw sensor
layout, as if it had been captured with the given orientation.

Supported formats: JPEG, PNG, BMP

Examples:
  titlecam snapshot card.jpg
  titlecam snapshot card.jpg --orientation left --format json
  titlecam snapshot card.jpg --annotate boxed.png`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		applyBackendFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		if format != outputFormatText && format != outputFormatJSON {
			return fmt.Errorf("unsupported format %q (must be %s or %s)", format, outputFormatText, outputFormatJSON)
		}
		orientName, _ := cmd.Flags().GetString("orientation")
		o, err := geometry.ParseOrientation(orientName)
		if err != nil {
			return err
		}

		img, err := utils.LoadImage(args[0])
		if err != nil {
			return err
		}

		pcfg, err := cfg.ToPipelineConfig()
		if err != nil {
			return err
		}
		det, detCloser, err := detector.New(cfg.Detector)
		if err != nil {
			return fmt.Errorf("failed to initialize detector: %w", err)
		}
		defer func() { _ = detCloser.Close() }()
		rec, err := recognizer.New(cfg.Recognizer)
		if err != nil {
			return fmt.Errorf("failed to initialize recognizer: %w", err)
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		frame := camera.Frame{Seq: 1, Image: img, Orientation: o, CapturedAt: time.Now()}
		result := pipeline.NewSnapshotPipeline(det, rec, pcfg).Process(ctx, frame)

		if path, _ := cmd.Flags().GetString("annotate"); path != "" {
			var boxes []geometry.Rect
			if result.Box != nil {
				boxes = append(boxes, *result.Box)
			}
			if err := utils.SavePNG(path, utils.Annotate(utils.Upright(img, o), boxes, annotateColor)); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if format == outputFormatJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
		} else {
			_, _ = fmt.Fprintln(out, result.DisplayText(cfg.Pipeline.NotFoundText))
		}

		if result.Error != "" {
			return errors.New(result.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().StringP("orientation", "o", "up", "sensor orientation the picture was taken with (up, down, left, right)")
	snapshotCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
	snapshotCmd.Flags().String("annotate", "", "write the upright picture with the detected box to this PNG")
	snapshotCmd.Flags().Duration("timeout", 30*time.Second, "detection and recognition timeout")
	addBackendFlags(snapshotCmd)
}
