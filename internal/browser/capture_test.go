package browser

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
)

func launcherWithSession(platform string) *Launcher {
	return &Launcher{
		logger:   zap.NewNop(),
		sessions: map[string]*Session{platform: {platform: platform}},
		active:   platform,
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCaptureScreenDecodesFrame(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 12, 8))
	src.SetRGBA(3, 4, color.RGBA{R: 255, A: 255})

	c := NewCapturer(zap.NewNop(), launcherWithSession("claude"))
	c.screenshot = func(context.Context, *Session) ([]byte, error) {
		return encodePNG(t, src), nil
	}

	frame, err := c.CaptureScreen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 12, 8), frame.Bounds())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, frame.RGBAAt(3, 4))
}

func TestCaptureScreenConvertsNonRGBA(t *testing.T) {
	// PNG round-trips grayscale as *image.Gray, forcing the conversion path.
	gray := image.NewGray(image.Rect(0, 0, 6, 6))
	gray.SetGray(2, 2, color.Gray{Y: 200})

	c := NewCapturer(zap.NewNop(), launcherWithSession("claude"))
	c.screenshot = func(context.Context, *Session) ([]byte, error) {
		return encodePNG(t, gray), nil
	}

	frame, err := c.CaptureScreen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 6, 6), frame.Bounds())
	assert.Equal(t, uint8(200), frame.RGBAAt(2, 2).R)
}

func TestCaptureScreenWithoutSession(t *testing.T) {
	c := NewCapturer(zap.NewNop(), &Launcher{logger: zap.NewNop(), sessions: map[string]*Session{}})
	_, err := c.CaptureScreen(context.Background())
	var derr *schemas.DetectionError
	assert.ErrorAs(t, err, &derr)
}

func TestCaptureWindowUnknownPlatform(t *testing.T) {
	c := NewCapturer(zap.NewNop(), launcherWithSession("claude"))
	_, err := c.CaptureWindow(context.Background(), "gemini")
	var derr *schemas.DetectionError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, err.Error(), "gemini")
}

func TestCaptureScreenshotFailure(t *testing.T) {
	c := NewCapturer(zap.NewNop(), launcherWithSession("claude"))
	c.screenshot = func(context.Context, *Session) ([]byte, error) {
		return nil, assert.AnError
	}

	_, err := c.CaptureScreen(context.Background())
	var derr *schemas.DetectionError
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestCaptureBadImageData(t *testing.T) {
	c := NewCapturer(zap.NewNop(), launcherWithSession("claude"))
	c.screenshot = func(context.Context, *Session) ([]byte, error) {
		return []byte("not a png"), nil
	}

	_, err := c.CaptureScreen(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode screenshot")
}

func TestSessionClipboardReadText(t *testing.T) {
	launcher := launcherWithSession("claude")
	c := NewSessionClipboard(zap.NewNop(), launcher)
	c.evaluate = func(_ context.Context, s *Session, expr string, out *string) error {
		assert.Equal(t, "claude", s.Platform())
		assert.Equal(t, `navigator.clipboard.readText()`, expr)
		*out = "copied text"
		return nil
	}

	text, err := c.ReadText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "copied text", text)
}

func TestSessionClipboardWithoutSession(t *testing.T) {
	c := NewSessionClipboard(zap.NewNop(), &Launcher{logger: zap.NewNop(), sessions: map[string]*Session{}})
	_, err := c.ReadText(context.Background())
	assert.ErrorIs(t, err, errNoActiveSession)
}

func TestSessionClipboardEvaluateFailure(t *testing.T) {
	c := NewSessionClipboard(zap.NewNop(), launcherWithSession("claude"))
	c.evaluate = func(context.Context, *Session, string, *string) error {
		return assert.AnError
	}
	_, err := c.ReadText(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}
