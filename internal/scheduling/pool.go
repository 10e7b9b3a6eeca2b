package scheduling

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
	"github.com/DanielAIris/liris/internal/config"
)

// WorkerPool drains the dispatch queue with a fixed number of goroutines.
// Each worker consults the availability oracle before executing; unavailable
// platforms are re-queued with exponential backoff up to a bounded attempt
// budget, after which the task fails with a scheduling error. A single task's
// failure never terminates the pool.
type WorkerPool struct {
	cfg      config.EngineConfig
	logger   *zap.Logger
	store    *TaskStore
	queue    *DispatchQueue
	oracle   schemas.AvailabilityOracle
	executor schemas.InteractionExecutor

	wg sync.WaitGroup

	stateMu   sync.Mutex
	isRunning bool

	attemptMu sync.Mutex
	attempts  map[int64]int

	// sleep is swappable so tests do not wait out real backoffs.
	sleep func(ctx context.Context, d time.Duration)
}

func NewWorkerPool(
	cfg config.EngineConfig,
	logger *zap.Logger,
	store *TaskStore,
	queue *DispatchQueue,
	oracle schemas.AvailabilityOracle,
	executor schemas.InteractionExecutor,
) (*WorkerPool, error) {
	if store == nil || queue == nil || oracle == nil || executor == nil {
		return nil, &schemas.OrchestrationError{Op: "worker pool requires store, queue, oracle and executor"}
	}
	return &WorkerPool{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "worker_pool")),
		store:    store,
		queue:    queue,
		oracle:   oracle,
		executor: executor,
		attempts: make(map[int64]int),
		sleep:    sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Start launches the worker goroutines. Re-entrant calls are ignored.
func (p *WorkerPool) Start(ctx context.Context) {
	p.stateMu.Lock()
	if p.isRunning {
		p.stateMu.Unlock()
		p.logger.Warn("WorkerPool.Start called, but pool is already running")
		return
	}
	p.isRunning = true
	p.stateMu.Unlock()

	concurrency := p.cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	p.logger.Info("Starting worker pool", zap.Int("concurrency", concurrency))

	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i+1)
	}
}

// Stop closes the queue and waits for all workers to drain out.
func (p *WorkerPool) Stop() {
	p.logger.Info("Stopping worker pool")
	p.queue.Close()
	p.wg.Wait()

	p.stateMu.Lock()
	p.isRunning = false
	p.stateMu.Unlock()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) runWorker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	logger := p.logger.With(zap.Int("worker_id", workerID))
	logger.Debug("Worker started")

	pollTimeout := p.cfg.QueuePollTimeout
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}

	for {
		if ctx.Err() != nil {
			logger.Debug("Context cancelled, worker shutting down")
			return
		}
		priority, id, ok := p.queue.Pop(pollTimeout)
		if !ok {
			if p.queue.IsClosed() {
				logger.Debug("Queue closed, worker shutting down")
				return
			}
			continue
		}
		p.dispatch(ctx, logger, priority, id)
	}
}

// dispatch handles one dequeued task: availability check, execution, result
// recording, usage registration and cooldown.
func (p *WorkerPool) dispatch(ctx context.Context, logger *zap.Logger, priority int, id int64) {
	task, ok := p.store.Get(id)
	if !ok || task.Status != schemas.TaskPending {
		// Cancelled or cleared while queued.
		return
	}

	if usable, reason := p.oracle.CanUse(task.Platform); !usable {
		p.retryOrFail(ctx, logger, priority, task, reason)
		return
	}
	p.clearAttempts(id)

	if err := p.store.Transition(id, schemas.TaskRunning, nil); err != nil {
		logger.Error("Failed to mark task running", zap.Int64("task_id", id), zap.Error(err))
		return
	}

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = p.cfg.DefaultTaskTimeout
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	result, err := p.executor.SendPrompt(taskCtx, task.Platform, task.Prompt, task.Positions, timeout)
	cancel()

	tokens := 0
	if err != nil {
		logger.Warn("Task failed",
			zap.Int64("task_id", id),
			zap.String("platform", task.Platform),
			zap.Error(err))
		_ = p.store.Transition(id, schemas.TaskFailed, func(t *schemas.Task) {
			t.Error = err.Error()
		})
	} else {
		tokens = result.TokenEstimate
		_ = p.store.Transition(id, schemas.TaskCompleted, func(t *schemas.Task) {
			t.Result = result
		})
		logger.Info("Task completed",
			zap.Int64("task_id", id),
			zap.String("platform", task.Platform),
			zap.Duration("duration", result.Duration))
	}

	p.oracle.RegisterUsage(task.Platform, tokens)

	// The cooldown serializes this worker, not the platform. Acceptable for
	// small pools; with more workers than platforms it becomes the
	// throughput ceiling.
	if cd := p.oracle.Cooldown(task.Platform); cd > 0 {
		p.sleep(ctx, cd)
	}
}

// retryOrFail re-queues an unavailable task with doubling backoff, failing it
// outright once the attempt budget is spent.
func (p *WorkerPool) retryOrFail(ctx context.Context, logger *zap.Logger, priority int, task schemas.Task, reason string) {
	attempt := p.bumpAttempts(task.ID)
	maxAttempts := p.cfg.MaxDispatchAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	if attempt >= maxAttempts {
		p.clearAttempts(task.ID)
		logger.Warn("Dispatch attempts exhausted",
			zap.Int64("task_id", task.ID),
			zap.String("platform", task.Platform),
			zap.Int("attempts", attempt))
		schedErr := &schemas.SchedulingError{Platform: task.Platform, Reason: reason}
		// Pass through running so the transition table stays closed.
		if err := p.store.Transition(task.ID, schemas.TaskRunning, nil); err == nil {
			_ = p.store.Transition(task.ID, schemas.TaskFailed, func(t *schemas.Task) {
				t.Error = schedErr.Error()
			})
		}
		return
	}

	logger.Debug("Platform unavailable, re-queueing",
		zap.Int64("task_id", task.ID),
		zap.String("platform", task.Platform),
		zap.String("reason", reason),
		zap.Int("attempt", attempt))
	p.queue.Push(priority, task.ID)

	backoff := p.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	backoff <<= attempt - 1
	if limit := p.cfg.RetryBackoffCap; limit > 0 && backoff > limit {
		backoff = limit
	}
	p.sleep(ctx, backoff)
}

func (p *WorkerPool) bumpAttempts(id int64) int {
	p.attemptMu.Lock()
	defer p.attemptMu.Unlock()
	p.attempts[id]++
	return p.attempts[id]
}

func (p *WorkerPool) clearAttempts(id int64) {
	p.attemptMu.Lock()
	defer p.attemptMu.Unlock()
	delete(p.attempts, id)
}
