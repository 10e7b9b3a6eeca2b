package orchestrator

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
	"github.com/DanielAIris/liris/internal/config"
	"github.com/DanielAIris/liris/internal/scheduling"
	"github.com/DanielAIris/liris/internal/vision"
)

type fakeOracle struct {
	mu          sync.Mutex
	unavailable map[string]string
	usage       map[string]int
	tokens      map[string]int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		unavailable: make(map[string]string),
		usage:       make(map[string]int),
		tokens:      make(map[string]int),
	}
}

func (o *fakeOracle) CanUse(platform string) (bool, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if reason, ok := o.unavailable[platform]; ok {
		return false, reason
	}
	return true, "OK"
}

func (o *fakeOracle) RegisterUsage(platform string, tokens int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.usage[platform]++
	o.tokens[platform] += tokens
}

func (o *fakeOracle) Cooldown(string) time.Duration { return 0 }

func (o *fakeOracle) usageCount(platform string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.usage[platform]
}

type fakeExecutor struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	delays    map[string]time.Duration
	positions map[string]schemas.PositionSet
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		delays:    make(map[string]time.Duration),
		positions: make(map[string]schemas.PositionSet),
	}
}

func (e *fakeExecutor) SendPrompt(ctx context.Context, platform, prompt string, positions schemas.PositionSet, _ time.Duration) (*schemas.PromptResult, error) {
	e.mu.Lock()
	delay := e.delays[platform]
	e.positions[platform] = positions
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.errs[platform]; err != nil {
		return nil, err
	}
	response := e.responses[platform]
	return &schemas.PromptResult{Response: response, TokenEstimate: (len(response) + 3) / 4}, nil
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*schemas.InterfaceProfile
	saved    map[string]schemas.PositionSet
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		profiles: make(map[string]*schemas.InterfaceProfile),
		saved:    make(map[string]schemas.PositionSet),
	}
}

func (p *fakeProfiles) GetProfile(_ context.Context, platform string) (*schemas.InterfaceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	profile, ok := p.profiles[platform]
	if !ok {
		return nil, schemas.NewProfileNotFound(platform)
	}
	return profile, nil
}

func (p *fakeProfiles) ListPlatforms(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var names []string
	for n := range p.profiles {
		names = append(names, n)
	}
	return names, nil
}

func (p *fakeProfiles) SavePositions(_ context.Context, platform string, positions schemas.PositionSet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved[platform] = positions
	return nil
}

func (p *fakeProfiles) addGrounded(platform string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[platform] = &schemas.InterfaceProfile{
		Name: platform,
		Positions: schemas.PositionSet{
			schemas.ElementPromptField:  {CenterX: 300, CenterY: 625},
			schemas.ElementSubmitButton: {CenterX: 540, CenterY: 630},
			schemas.ElementResponseArea: {CenterX: 400, CenterY: 300},
		},
	}
}

type frameCapturer struct {
	frame *image.RGBA
}

func (c *frameCapturer) CaptureScreen(context.Context) (*image.RGBA, error) { return c.frame, nil }

func (c *frameCapturer) CaptureWindow(context.Context, string) (*image.RGBA, error) {
	return c.frame, nil
}

type fixture struct {
	conductor *Conductor
	oracle    *fakeOracle
	executor  *fakeExecutor
	profiles  *fakeProfiles
	capturer  *frameCapturer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	cfg := config.EngineConfig{
		WorkerConcurrency:   1,
		QueuePollTimeout:    20 * time.Millisecond,
		MaxDispatchAttempts: 3,
		RetryBackoff:        time.Millisecond,
		RetryBackoffCap:     5 * time.Millisecond,
		DefaultTaskTimeout:  5 * time.Second,
	}

	oracle := newFakeOracle()
	executor := newFakeExecutor()
	profiles := newFakeProfiles()
	capturer := &frameCapturer{frame: image.NewRGBA(image.Rect(0, 0, 200, 200))}

	store := scheduling.NewTaskStore(logger)
	queue := scheduling.NewDispatchQueue()
	pool, err := scheduling.NewWorkerPool(cfg, logger, store, queue, oracle, executor)
	require.NoError(t, err)

	detector := vision.NewDetector(logger, nil, 0, 0)
	grounder := vision.NewGrounder(logger, detector)
	capture := vision.NewCaptureCache(logger, capturer, time.Second)

	conductor, err := NewConductor(logger, cfg, store, queue, pool, oracle, executor, profiles, grounder, capture)
	require.NoError(t, err)
	return &fixture{
		conductor: conductor,
		oracle:    oracle,
		executor:  executor,
		profiles:  profiles,
		capturer:  capturer,
	}
}

func TestNewConductorValidation(t *testing.T) {
	_, err := NewConductor(zap.NewNop(), config.EngineConfig{}, nil, nil, nil, nil, nil, nil, nil, nil)
	var oerr *schemas.OrchestrationError
	assert.ErrorAs(t, err, &oerr)
}

func TestSubmitSyncSuccess(t *testing.T) {
	f := newFixture(t)
	f.profiles.addGrounded("claude")
	f.executor.responses["claude"] = "pong"

	task, err := f.conductor.SubmitSync(context.Background(), Submission{
		Platform: "claude",
		Prompt:   "ping",
	})
	require.NoError(t, err)
	assert.Equal(t, schemas.TaskCompleted, task.Status)
	assert.Equal(t, "pong", task.Result.Response)
	assert.Equal(t, schemas.ModeStandard, task.Mode)
	assert.Equal(t, 1, f.oracle.usageCount("claude"))

	// The executor sees the grounding snapshot, not the live profile.
	assert.Equal(t, 300, f.executor.positions["claude"][schemas.ElementPromptField].CenterX)
}

func TestSubmitSyncExecutionFailure(t *testing.T) {
	f := newFixture(t)
	f.profiles.addGrounded("claude")
	f.executor.errs["claude"] = assert.AnError

	task, err := f.conductor.SubmitSync(context.Background(), Submission{
		Platform: "claude",
		Prompt:   "ping",
	})
	require.Error(t, err)
	assert.Equal(t, schemas.TaskFailed, task.Status)
	assert.Contains(t, task.Error, assert.AnError.Error())
	assert.Equal(t, 1, f.oracle.usageCount("claude"), "usage registers even on failure")
}

func TestSubmitRejectsEmptyFields(t *testing.T) {
	f := newFixture(t)
	var oerr *schemas.OrchestrationError

	_, err := f.conductor.SubmitAsync(context.Background(), Submission{Prompt: "hi"})
	assert.ErrorAs(t, err, &oerr)

	_, err = f.conductor.SubmitAsync(context.Background(), Submission{Platform: "claude"})
	assert.ErrorAs(t, err, &oerr)
}

func TestSubmitRejectsUnavailablePlatform(t *testing.T) {
	f := newFixture(t)
	f.profiles.addGrounded("claude")
	f.oracle.unavailable["claude"] = "daily prompt limit reached"

	_, err := f.conductor.SubmitAsync(context.Background(), Submission{Platform: "claude", Prompt: "hi"})
	var serr *schemas.SchedulingError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "claude", serr.Platform)
	assert.Equal(t, 0, f.conductor.Snapshot().StatusCounts[schemas.TaskPending], "no record created")
}

func TestSubmitRejectsUngroundedPlatform(t *testing.T) {
	f := newFixture(t)
	f.profiles.profiles["claude"] = &schemas.InterfaceProfile{Name: "claude"}

	_, err := f.conductor.SubmitAsync(context.Background(), Submission{Platform: "claude", Prompt: "hi"})
	var oerr *schemas.OrchestrationError
	require.ErrorAs(t, err, &oerr)
	assert.Contains(t, err.Error(), "not grounded")

	snap := f.conductor.Snapshot()
	for status, n := range snap.StatusCounts {
		assert.Zero(t, n, "unexpected %s record", status)
	}
}

func TestSubmitRejectsUnknownPlatform(t *testing.T) {
	f := newFixture(t)
	_, err := f.conductor.SubmitAsync(context.Background(), Submission{Platform: "nope", Prompt: "hi"})
	var oerr *schemas.OrchestrationError
	require.ErrorAs(t, err, &oerr)
}

func TestSubmitAsyncExecutesThroughPool(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	f.profiles.addGrounded("claude")
	f.executor.responses["claude"] = "queued answer"

	f.conductor.Start(context.Background())
	defer f.conductor.Shutdown()

	id, err := f.conductor.SubmitAsync(context.Background(), Submission{
		Platform: "claude",
		Prompt:   "hello",
		Priority: 1,
	})
	require.NoError(t, err)

	task, ok := f.conductor.WaitFor(context.Background(), id, 5*time.Second)
	require.True(t, ok, "task reached a terminal state")
	assert.Equal(t, schemas.TaskCompleted, task.Status)
	assert.Equal(t, "queued answer", task.Result.Response)
}

func TestSubmissionSnapshotIsolatesRegrounding(t *testing.T) {
	f := newFixture(t)
	f.profiles.addGrounded("claude")
	f.executor.responses["claude"] = "ok"

	id, err := f.conductor.SubmitAsync(context.Background(), Submission{Platform: "claude", Prompt: "hi"})
	require.NoError(t, err)

	// Shift the live profile after submission; the queued record keeps its
	// snapshot.
	f.profiles.profiles["claude"].Positions[schemas.ElementPromptField] = schemas.DetectedElement{CenterX: 999}

	task, ok := f.conductor.Task(id)
	require.True(t, ok)
	assert.Equal(t, 300, task.Positions[schemas.ElementPromptField].CenterX)
}

func TestClearQueue(t *testing.T) {
	f := newFixture(t)
	f.profiles.addGrounded("claude")

	for i := 0; i < 3; i++ {
		_, err := f.conductor.SubmitAsync(context.Background(), Submission{Platform: "claude", Prompt: "hi"})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, f.conductor.ClearQueue())
	snap := f.conductor.Snapshot()
	assert.Equal(t, 0, snap.PendingCount)
	assert.Equal(t, 3, snap.StatusCounts[schemas.TaskCancelled])
}

func TestCompareFansOut(t *testing.T) {
	f := newFixture(t)
	f.profiles.addGrounded("claude")
	f.profiles.addGrounded("gemini")
	f.executor.responses["claude"] = "claude says hi"
	f.executor.errs["gemini"] = assert.AnError

	outcomes := f.conductor.Compare(context.Background(), "hi", []string{"claude", "gemini"}, 5*time.Second)
	require.Len(t, outcomes, 2)

	assert.Equal(t, "claude says hi", outcomes["claude"].Response)
	assert.Empty(t, outcomes["claude"].Error)
	assert.False(t, outcomes["claude"].TimedOut)

	assert.Contains(t, outcomes["gemini"].Error, assert.AnError.Error())
	assert.False(t, outcomes["gemini"].TimedOut)
}

func TestCompareMarksSlowPlatformsTimedOut(t *testing.T) {
	f := newFixture(t)
	f.profiles.addGrounded("claude")
	f.profiles.addGrounded("slow")
	f.executor.responses["claude"] = "fast"
	f.executor.delays["slow"] = time.Minute

	outcomes := f.conductor.Compare(context.Background(), "hi", []string{"claude", "slow"}, 150*time.Millisecond)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "fast", outcomes["claude"].Response)
	assert.True(t, outcomes["slow"].TimedOut)
}

// greenRange and blueRange pass saturated green and blue pixels.
var (
	greenRange = &schemas.ColorRange{Lower: [3]int{55, 200, 200}, Upper: [3]int{65, 255, 255}}
	blueRange  = &schemas.ColorRange{Lower: [3]int{115, 200, 200}, Upper: [3]int{125, 255, 255}}
	redRange   = &schemas.ColorRange{Lower: [3]int{0, 200, 200}, Upper: [3]int{10, 255, 255}}
)

func paint(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func groundableProfile() *schemas.InterfaceProfile {
	return &schemas.InterfaceProfile{
		Name: "claude",
		Elements: map[string]schemas.ElementConfig{
			schemas.ElementPromptField:  {Method: schemas.DetectByContour, ColorRange: redRange, MinArea: 50},
			schemas.ElementSubmitButton: {Method: schemas.DetectByContour, ColorRange: greenRange, MinArea: 50},
			schemas.ElementResponseArea: {Method: schemas.DetectByContour, ColorRange: blueRange, MinArea: 50},
		},
	}
}

func TestGroundPersistsCompleteSet(t *testing.T) {
	f := newFixture(t)
	f.profiles.profiles["claude"] = groundableProfile()
	paint(f.capturer.frame, image.Rect(10, 150, 110, 170), color.RGBA{R: 255, A: 255})
	paint(f.capturer.frame, image.Rect(120, 150, 150, 170), color.RGBA{G: 255, A: 255})
	paint(f.capturer.frame, image.Rect(10, 10, 190, 140), color.RGBA{B: 255, A: 255})

	positions, err := f.conductor.Ground(context.Background(), "claude")
	require.NoError(t, err)
	require.Len(t, positions, 3)

	field := positions[schemas.ElementPromptField]
	assert.Equal(t, 10, field.X)
	assert.Equal(t, 150, field.Y)

	area := positions[schemas.ElementResponseArea]
	assert.Equal(t, 100, area.CenterX)
	assert.Equal(t, 75, area.CenterY)

	assert.Equal(t, positions, f.profiles.saved["claude"])
}

func TestGroundIncompleteReturnsPartial(t *testing.T) {
	f := newFixture(t)
	f.profiles.profiles["claude"] = groundableProfile()
	// Only the prompt field's color is on screen.
	paint(f.capturer.frame, image.Rect(10, 150, 110, 170), color.RGBA{R: 255, A: 255})

	_, err := f.conductor.Ground(context.Background(), "claude")
	var verr *schemas.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{schemas.ElementSubmitButton, schemas.ElementResponseArea}, verr.Missing)
	assert.Contains(t, verr.Partial, schemas.ElementPromptField)
	assert.Empty(t, f.profiles.saved, "nothing persisted on incomplete grounding")
}

func TestGroundUnknownPlatform(t *testing.T) {
	f := newFixture(t)
	_, err := f.conductor.Ground(context.Background(), "nope")
	var oerr *schemas.OrchestrationError
	assert.ErrorAs(t, err, &oerr)
}
