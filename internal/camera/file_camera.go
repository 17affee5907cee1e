package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/utils"
)

// FileCameraConfig configures a FileCamera.
type FileCameraConfig struct {
	Dir  string
	FPS  float64
	Loop bool
	Feed FeedConfig
}

// FileCamera replays the pictures of a directory as a live camera.
type FileCamera struct {
	*Feed
	cfg    FileCameraConfig
	paths  []string
	images map[string]image.Image
}

// NewFileCamera lists the pictures in cfg.Dir. Pictures are decoded lazily
// and cached.
func NewFileCamera(cfg FileCameraConfig, orient OrientationSource) (*FileCamera, error) {
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("camera: fps must be positive, got %v", cfg.FPS)
	}
	paths, err := utils.ListImages(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("camera: no images in %s", cfg.Dir)
	}
	return &FileCamera{
		Feed:   NewFeed(cfg.Feed, orient),
		cfg:    cfg,
		paths:  paths,
		images: make(map[string]image.Image, len(paths)),
	}, nil
}

// Len returns the number of pictures replayed per pass.
func (c *FileCamera) Len() int { return len(c.paths) }

// Run emits one picture per tick until the directory is exhausted (without
// Loop) or ctx is done. Both streams are closed on return.
func (c *FileCamera) Run(ctx context.Context) error {
	defer c.Close()

	interval := time.Duration(float64(time.Second) / c.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("file camera started", "dir", c.cfg.Dir, "images", len(c.paths), "fps", c.cfg.FPS, "loop", c.cfg.Loop)

	for i := 0; ; i++ {
		if i == len(c.paths) {
			if !c.cfg.Loop {
				c.logger.Info("file camera exhausted", "dir", c.cfg.Dir)
				return nil
			}
			i = 0
		}

		img, err := c.load(c.paths[i])
		if err != nil {
			c.logger.Warn("skipping unreadable image", "path", c.paths[i], "error", err)
		} else {
			c.Emit(img)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *FileCamera) load(path string) (image.Image, error) {
	if img, ok := c.images[path]; ok {
		return img, nil
	}
	img, err := utils.LoadImage(path)
	if err != nil {
		return nil, err
	}
	c.images[path] = img
	return img, nil
}
