package browser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
)

// Capturer produces frames from the launcher's tabs. The window key is the
// platform name; CaptureScreen falls back to the most recently used tab.
type Capturer struct {
	logger   *zap.Logger
	launcher *Launcher

	// screenshot is swapped in tests.
	screenshot func(ctx context.Context, s *Session) ([]byte, error)
}

func NewCapturer(logger *zap.Logger, launcher *Launcher) *Capturer {
	c := &Capturer{
		logger:   logger.Named("capture"),
		launcher: launcher,
	}
	c.screenshot = func(ctx context.Context, s *Session) ([]byte, error) {
		runCtx, cancel := s.Context(ctx)
		defer cancel()
		var buf []byte
		if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
			return nil, err
		}
		return buf, nil
	}
	return c
}

var _ schemas.ScreenCapturer = (*Capturer)(nil)

func (c *Capturer) CaptureScreen(ctx context.Context) (*image.RGBA, error) {
	s, ok := c.launcher.activeSession()
	if !ok {
		return nil, &schemas.DetectionError{Op: "no active session to capture"}
	}
	return c.capture(ctx, s)
}

func (c *Capturer) CaptureWindow(ctx context.Context, windowKey string) (*image.RGBA, error) {
	s, ok := c.launcher.session(windowKey)
	if !ok {
		return nil, &schemas.DetectionError{Op: fmt.Sprintf("no session for platform %q", windowKey)}
	}
	return c.capture(ctx, s)
}

func (c *Capturer) capture(ctx context.Context, s *Session) (*image.RGBA, error) {
	buf, err := c.screenshot(ctx, s)
	if err != nil {
		return nil, &schemas.DetectionError{Op: "screenshot " + s.Platform(), Err: err}
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, &schemas.DetectionError{Op: "decode screenshot", Err: err}
	}

	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}
