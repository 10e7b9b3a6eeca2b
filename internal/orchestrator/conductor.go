// Package orchestrator composes the perception and dispatch engines behind
// one façade. The conductor owns the submission path end to end: validate
// availability, snapshot grounded positions, record, enqueue or execute
// inline, and surface results.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DanielAIris/liris/api/schemas"
	"github.com/DanielAIris/liris/internal/config"
	"github.com/DanielAIris/liris/internal/scheduling"
	"github.com/DanielAIris/liris/internal/vision"
)

// Submission is what a caller asks the conductor to dispatch.
type Submission struct {
	Platform string
	Prompt   string
	Mode     schemas.TaskMode
	Priority int
	Timeout  time.Duration
}

// CompareOutcome is one platform's result in a fan-out comparison. Every
// requested platform gets an entry; slow ones are explicitly marked timed
// out instead of silently missing.
type CompareOutcome struct {
	TaskID   int64         `json:"task_id,omitempty"`
	Response string        `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Conductor is the façade over grounding, scheduling and interaction.
type Conductor struct {
	logger   *zap.Logger
	cfg      config.EngineConfig
	store    *scheduling.TaskStore
	queue    *scheduling.DispatchQueue
	pool     *scheduling.WorkerPool
	oracle   schemas.AvailabilityOracle
	executor schemas.InteractionExecutor
	profiles schemas.ProfileStore
	grounder *vision.Grounder
	capture  *vision.CaptureCache
}

func NewConductor(
	logger *zap.Logger,
	cfg config.EngineConfig,
	store *scheduling.TaskStore,
	queue *scheduling.DispatchQueue,
	pool *scheduling.WorkerPool,
	oracle schemas.AvailabilityOracle,
	executor schemas.InteractionExecutor,
	profiles schemas.ProfileStore,
	grounder *vision.Grounder,
	capture *vision.CaptureCache,
) (*Conductor, error) {
	if store == nil || queue == nil || pool == nil || oracle == nil ||
		executor == nil || profiles == nil || grounder == nil || capture == nil {
		return nil, &schemas.OrchestrationError{Op: "conductor requires all collaborators"}
	}
	return &Conductor{
		logger:   logger.Named("conductor"),
		cfg:      cfg,
		store:    store,
		queue:    queue,
		pool:     pool,
		oracle:   oracle,
		executor: executor,
		profiles: profiles,
		grounder: grounder,
		capture:  capture,
	}, nil
}

// Start launches the dispatch workers.
func (c *Conductor) Start(ctx context.Context) {
	c.pool.Start(ctx)
}

// Shutdown stops the workers after the queue drains out.
func (c *Conductor) Shutdown() {
	c.pool.Stop()
}

// SubmitAsync validates the submission, records a pending task and enqueues
// it. Availability is checked up front so obviously doomed submissions fail
// fast with a SchedulingError; an ungrounded platform fails with an
// OrchestrationError and no record is created.
func (c *Conductor) SubmitAsync(ctx context.Context, sub Submission) (int64, error) {
	task, err := c.prepare(ctx, sub)
	if err != nil {
		return 0, err
	}
	id := c.store.Create(*task)
	c.queue.Push(task.Priority, id)
	c.logger.Info("Task submitted",
		zap.Int64("task_id", id),
		zap.String("platform", sub.Platform),
		zap.Int("priority", sub.Priority))
	return id, nil
}

// SubmitSync bypasses the queue: the prompt is executed inline on the
// caller's goroutine, the record still passes through the normal state
// machine, and the terminal task is returned along with any execution error.
func (c *Conductor) SubmitSync(ctx context.Context, sub Submission) (schemas.Task, error) {
	task, err := c.prepare(ctx, sub)
	if err != nil {
		return schemas.Task{}, err
	}
	id := c.store.Create(*task)
	return c.execute(ctx, id)
}

// prepare runs the submission gates and builds the task record. It never
// touches the store.
func (c *Conductor) prepare(ctx context.Context, sub Submission) (*schemas.Task, error) {
	if sub.Platform == "" || sub.Prompt == "" {
		return nil, &schemas.OrchestrationError{Op: "submission requires a platform and a prompt"}
	}

	if usable, reason := c.oracle.CanUse(sub.Platform); !usable {
		return nil, &schemas.SchedulingError{Platform: sub.Platform, Reason: reason}
	}

	profile, err := c.profiles.GetProfile(ctx, sub.Platform)
	if err != nil {
		return nil, &schemas.OrchestrationError{
			Op:  fmt.Sprintf("resolve platform %q", sub.Platform),
			Err: err,
		}
	}
	if complete, missing := profile.Positions.Validate(); !complete {
		return nil, &schemas.OrchestrationError{
			Op: fmt.Sprintf("platform %q is not grounded, missing %v; run grounding first", sub.Platform, missing),
		}
	}

	mode := sub.Mode
	if mode == "" {
		mode = schemas.ModeStandard
	}
	timeout := sub.Timeout
	if timeout <= 0 {
		timeout = c.cfg.DefaultTaskTimeout
	}

	return &schemas.Task{
		Platform: sub.Platform,
		Prompt:   sub.Prompt,
		Mode:     mode,
		Priority: sub.Priority,
		Timeout:  timeout,
		// Snapshot so later re-grounding cannot shift coordinates under a
		// queued task.
		Positions: profile.Positions.Clone(),
	}, nil
}

// execute runs one recorded task inline through the full state machine and
// returns the terminal record. Usage registers regardless of the result.
func (c *Conductor) execute(ctx context.Context, id int64) (schemas.Task, error) {
	task, ok := c.store.Get(id)
	if !ok {
		return schemas.Task{}, &schemas.OrchestrationError{Op: fmt.Sprintf("execute unknown task %d", id)}
	}
	if err := c.store.Transition(id, schemas.TaskRunning, nil); err != nil {
		return schemas.Task{}, err
	}

	taskCtx, cancel := context.WithTimeout(ctx, task.Timeout)
	result, execErr := c.executor.SendPrompt(taskCtx, task.Platform, task.Prompt, task.Positions, task.Timeout)
	cancel()

	tokens := 0
	if execErr != nil {
		_ = c.store.Transition(id, schemas.TaskFailed, func(t *schemas.Task) {
			t.Error = execErr.Error()
		})
	} else {
		tokens = result.TokenEstimate
		_ = c.store.Transition(id, schemas.TaskCompleted, func(t *schemas.Task) {
			t.Result = result
		})
	}
	c.oracle.RegisterUsage(task.Platform, tokens)

	final, _ := c.store.Get(id)
	return final, execErr
}

// Ground captures a fresh frame, locates every configured element of the
// platform and persists the positions when the required set is complete. An
// incomplete detection returns a ValidationError carrying the partial set;
// nothing is persisted in that case.
func (c *Conductor) Ground(ctx context.Context, platform string) (schemas.PositionSet, error) {
	profile, err := c.profiles.GetProfile(ctx, platform)
	if err != nil {
		return nil, &schemas.OrchestrationError{
			Op:  fmt.Sprintf("resolve platform %q", platform),
			Err: err,
		}
	}

	frame, err := c.capture.Capture(ctx, true, platform)
	if err != nil {
		return nil, err
	}

	positions, err := c.grounder.Ground(ctx, frame, profile)
	if err != nil {
		return nil, err
	}
	if complete, missing := positions.Validate(); !complete {
		return nil, &schemas.ValidationError{Missing: missing, Partial: positions}
	}

	if err := c.profiles.SavePositions(ctx, platform, positions); err != nil {
		return nil, fmt.Errorf("persist positions for %q: %w", platform, err)
	}
	c.logger.Info("Platform grounded",
		zap.String("platform", platform),
		zap.Int("elements", len(positions)))
	return positions, nil
}

// Compare fans the same prompt out across platforms, each executed inline on
// its own goroutine under one overall timeout. The result map always carries
// one entry per requested platform.
func (c *Conductor) Compare(ctx context.Context, prompt string, platforms []string, timeout time.Duration) map[string]CompareOutcome {
	if timeout <= 0 {
		timeout = c.cfg.DefaultTaskTimeout
	}
	fanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	outcomes := make(map[string]CompareOutcome, len(platforms))
	record := func(platform string, o CompareOutcome) {
		mu.Lock()
		outcomes[platform] = o
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(fanCtx)
	for _, platform := range platforms {
		platform := platform
		g.Go(func() error {
			start := time.Now()
			task, err := c.SubmitSync(gctx, Submission{
				Platform: platform,
				Prompt:   prompt,
				Timeout:  timeout,
			})
			o := CompareOutcome{TaskID: task.ID, Duration: time.Since(start)}
			switch {
			case err != nil && gctx.Err() != nil:
				o.TimedOut = true
				o.Error = err.Error()
			case err != nil:
				o.Error = err.Error()
			default:
				o.Response = task.Result.Response
			}
			record(platform, o)
			// Errors are per-platform outcomes, never group failures.
			return nil
		})
	}
	_ = g.Wait()

	// Anything still missing never got to record before the deadline.
	for _, platform := range platforms {
		if _, ok := outcomes[platform]; !ok {
			outcomes[platform] = CompareOutcome{TimedOut: true, Error: "timed out"}
		}
	}
	return outcomes
}

// WaitFor blocks until the task is terminal or the timeout elapses. The bool
// distinguishes "timed out waiting" from a terminal record.
func (c *Conductor) WaitFor(ctx context.Context, id int64, timeout time.Duration) (schemas.Task, bool) {
	return c.store.WaitFor(ctx, id, timeout)
}

// Task returns a copy of one task record.
func (c *Conductor) Task(id int64) (schemas.Task, bool) {
	return c.store.Get(id)
}

// ClearQueue drops all queued work and cancels the corresponding pending
// records. Running tasks are untouched.
func (c *Conductor) ClearQueue() int {
	ids := c.queue.Clear()
	n := c.store.CancelPending(ids)
	c.logger.Info("Queue cleared", zap.Int("cancelled", n))
	return n
}

// Snapshot reports the task store's status counts.
func (c *Conductor) Snapshot() schemas.QueueSnapshot {
	return c.store.Snapshot()
}
