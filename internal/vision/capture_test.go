package vision

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
)

// fakeCapturer counts calls and can fail either path.
type fakeCapturer struct {
	screenCalls int
	windowCalls int
	screenErr   error
	windowErr   error
}

func (f *fakeCapturer) CaptureScreen(_ context.Context) (*image.RGBA, error) {
	f.screenCalls++
	if f.screenErr != nil {
		return nil, f.screenErr
	}
	return image.NewRGBA(image.Rect(0, 0, 10, 10)), nil
}

func (f *fakeCapturer) CaptureWindow(_ context.Context, _ string) (*image.RGBA, error) {
	f.windowCalls++
	if f.windowErr != nil {
		return nil, f.windowErr
	}
	return image.NewRGBA(image.Rect(0, 0, 20, 20)), nil
}

func TestCaptureCacheFreshness(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCapturer{}
	cache := NewCaptureCache(zap.NewNop(), fake, 500*time.Millisecond)

	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	first, err := cache.Capture(ctx, false, "")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.screenCalls)

	// Within the freshness window the same frame comes back.
	now = now.Add(100 * time.Millisecond)
	second, err := cache.Capture(ctx, false, "")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, fake.screenCalls)

	// Past the window a new capture happens.
	now = now.Add(time.Second)
	_, err = cache.Capture(ctx, false, "")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.screenCalls)
}

func TestCaptureCacheForce(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCapturer{}
	cache := NewCaptureCache(zap.NewNop(), fake, time.Hour)

	_, err := cache.Capture(ctx, false, "")
	require.NoError(t, err)
	_, err = cache.Capture(ctx, true, "")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.screenCalls, "force must bypass the cache")
}

func TestCaptureCacheWindowKeyChange(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCapturer{}
	cache := NewCaptureCache(zap.NewNop(), fake, time.Hour)

	_, err := cache.Capture(ctx, false, "claude")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.windowCalls)

	// Same key within freshness: cached.
	_, err = cache.Capture(ctx, false, "claude")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.windowCalls)

	// Different key: fresh capture even though the frame is fresh.
	_, err = cache.Capture(ctx, false, "gemini")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.windowCalls)
}

func TestCaptureCacheWindowFallback(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCapturer{windowErr: errors.New("window lookup failed")}
	cache := NewCaptureCache(zap.NewNop(), fake, time.Hour)

	frame, err := cache.Capture(ctx, false, "claude")
	require.NoError(t, err, "window capture failure falls back, never raises")
	assert.Equal(t, 10, frame.Bounds().Dx(), "fallback frame is the full screen")
	assert.Equal(t, 1, fake.screenCalls)
}

func TestCaptureCacheFailure(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCapturer{screenErr: errors.New("no display")}
	cache := NewCaptureCache(zap.NewNop(), fake, time.Hour)

	_, err := cache.Capture(ctx, false, "")
	require.Error(t, err)
	var dErr *schemas.DetectionError
	assert.ErrorAs(t, err, &dErr)
}
