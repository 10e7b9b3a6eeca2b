package vision

import (
	"context"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
)

// CaptureCache owns the most recent frame and its freshness policy. All
// detection reads go through it so concurrent workers never race the capture
// device. Only one entry is retained; there is no history.
type CaptureCache struct {
	logger    *zap.Logger
	capturer  schemas.ScreenCapturer
	freshness time.Duration
	now       func() time.Time

	mu         sync.Mutex
	frame      *image.RGBA
	capturedAt time.Time
	windowKey  string
}

func NewCaptureCache(logger *zap.Logger, capturer schemas.ScreenCapturer, freshness time.Duration) *CaptureCache {
	if freshness <= 0 {
		freshness = 500 * time.Millisecond
	}
	return &CaptureCache{
		logger:    logger.Named("capture"),
		capturer:  capturer,
		freshness: freshness,
		now:       time.Now,
	}
}

// Capture returns the cached frame when it is fresh enough and belongs to the
// same window key; otherwise it grabs a new one. A window-specific capture
// failure falls back to a full-screen capture and is only logged; a failed
// full-screen capture is a DetectionError.
func (c *CaptureCache) Capture(ctx context.Context, force bool, windowKey string) (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.frame != nil && windowKey == c.windowKey &&
		c.now().Sub(c.capturedAt) < c.freshness {
		return c.frame, nil
	}

	var frame *image.RGBA
	var err error
	if windowKey != "" {
		frame, err = c.capturer.CaptureWindow(ctx, windowKey)
		if err != nil {
			c.logger.Warn("Window capture failed, falling back to full screen",
				zap.String("window_key", windowKey), zap.Error(err))
			frame, err = c.capturer.CaptureScreen(ctx)
		}
	} else {
		frame, err = c.capturer.CaptureScreen(ctx)
	}
	if err != nil {
		return nil, &schemas.DetectionError{Op: "screen capture", Err: err}
	}

	c.frame = frame
	c.capturedAt = c.now()
	c.windowKey = windowKey
	return frame, nil
}
