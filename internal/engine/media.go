package engine

import (
	"context"
	"os"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// MediaConfig tunes upload settle delays. Video processing takes far
// longer than image thumbnailing.
type MediaConfig struct {
	ImageSettle time.Duration
	VideoSettle time.Duration
}

func DefaultMediaConfig() MediaConfig {
	return MediaConfig{
		ImageSettle: 3 * time.Second,
		VideoSettle: 8 * time.Second,
	}
}

// MediaAttacher uploads a local file into the composer's attachment
// surface. Failure here is non-fatal to the request: callers fall back to
// publishing text-only.
type MediaAttacher struct {
	driver *Driver
	cfg    MediaConfig
	log    *zap.Logger
}

func NewMediaAttacher(driver *Driver, cfg MediaConfig, log *zap.Logger) *MediaAttacher {
	return &MediaAttacher{driver: driver, cfg: cfg, log: log.Named("media")}
}

// Attach submits the file to the composer's hidden file input, revealing
// it via the add-media control when it is not already in the DOM.
func (a *MediaAttacher) Attach(ctx context.Context, ref *MediaRef) error {
	if ref == nil {
		return nil
	}
	if _, err := os.Stat(ref.Path); err != nil {
		return &MediaUploadError{Path: ref.Path, Err: err}
	}

	fileInput, err := a.driver.FindControl(ctx, RoleFileInput)
	if err != nil {
		// The input is often only mounted after the add-media control is
		// clicked.
		btn, btnErr := a.driver.FindControl(ctx, RoleMediaButton)
		if btnErr != nil {
			return &MediaUploadError{Path: ref.Path, Err: err}
		}
		if clickErr := btn.Context(ctx).Click(proto.InputMouseButtonLeft, 1); clickErr != nil {
			return &MediaUploadError{Path: ref.Path, Err: wrapPageErr(clickErr)}
		}
		fileInput, err = a.driver.WaitControl(ctx, RoleFileInput, 3*time.Second)
		if err != nil {
			return &MediaUploadError{Path: ref.Path, Err: err}
		}
	}

	if err := fileInput.Context(ctx).SetFiles([]string{ref.Path}); err != nil {
		return &MediaUploadError{Path: ref.Path, Err: wrapPageErr(err)}
	}

	settle := a.cfg.ImageSettle
	if ref.Kind == MediaVideo {
		settle = a.cfg.VideoSettle
	}
	if err := sleepCtx(ctx, settle); err != nil {
		return err
	}
	a.log.Info("media attached", zap.String("path", ref.Path), zap.String("kind", string(ref.Kind)))
	return nil
}
