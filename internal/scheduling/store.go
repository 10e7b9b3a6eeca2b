package scheduling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
)

// TaskStore is the authoritative registry of task records. All state lives
// behind one mutex; workers and the conductor mutate records only through
// Transition. Ids are strictly increasing from 1 and assigned under the lock
// so concurrent submitters never collide.
type TaskStore struct {
	logger *zap.Logger

	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*schemas.Task
	// done channels are closed when a task reaches a terminal status,
	// waking WaitFor callers without polling.
	done map[int64]chan struct{}
}

func NewTaskStore(logger *zap.Logger) *TaskStore {
	return &TaskStore{
		logger: logger.Named("task_store"),
		nextID: 1,
		tasks:  make(map[int64]*schemas.Task),
		done:   make(map[int64]chan struct{}),
	}
}

// Create registers a new pending task and returns its id.
func (s *TaskStore) Create(task schemas.Task) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	task.ID = id
	task.Status = schemas.TaskPending
	task.CreatedAt = time.Now()
	s.tasks[id] = &task
	s.done[id] = make(chan struct{})

	s.logger.Debug("Task created",
		zap.Int64("task_id", id),
		zap.String("platform", task.Platform),
		zap.Int("priority", task.Priority))
	return id
}

// Get returns a copy of the task record, so callers can never mutate store
// state outside the lock.
func (s *TaskStore) Get(id int64) (schemas.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return schemas.Task{}, false
	}
	return *t, true
}

// legalTransition encodes the task state machine. Anything not listed is a
// programming error, not a user-recoverable condition.
func legalTransition(from, to schemas.TaskStatus) bool {
	switch from {
	case schemas.TaskPending:
		return to == schemas.TaskRunning || to == schemas.TaskCancelled
	case schemas.TaskRunning:
		return to == schemas.TaskCompleted || to == schemas.TaskFailed
	default:
		return false
	}
}

// Transition moves a task to a new status under the store lock, applying
// mutate (if any) to the record in the same critical section. Terminal
// transitions wake all WaitFor callers.
func (s *TaskStore) Transition(id int64, to schemas.TaskStatus, mutate func(*schemas.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return &schemas.OrchestrationError{Op: fmt.Sprintf("transition of unknown task %d", id)}
	}
	if !legalTransition(t.Status, to) {
		return &schemas.OrchestrationError{
			Op: fmt.Sprintf("illegal transition %s -> %s for task %d", t.Status, to, id),
		}
	}

	t.Status = to
	switch to {
	case schemas.TaskRunning:
		t.StartedAt = time.Now()
	case schemas.TaskCompleted, schemas.TaskFailed, schemas.TaskCancelled:
		t.EndedAt = time.Now()
	}
	if mutate != nil {
		mutate(t)
	}
	if to.Terminal() {
		close(s.done[id])
	}
	return nil
}

// CancelPending marks every still-pending task among ids as cancelled and
// returns how many were cancelled. Running tasks are left alone.
func (s *TaskStore) CancelPending(ids []int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		t, ok := s.tasks[id]
		if !ok || t.Status != schemas.TaskPending {
			continue
		}
		t.Status = schemas.TaskCancelled
		t.EndedAt = time.Now()
		close(s.done[id])
		n++
	}
	return n
}

// WaitFor blocks until the task reaches a terminal status or the timeout
// elapses. The bool is false on timeout or unknown id; callers distinguish
// "timed out waiting" from "failed" by record presence, not by error.
func (s *TaskStore) WaitFor(ctx context.Context, id int64, timeout time.Duration) (schemas.Task, bool) {
	s.mu.Lock()
	ch, ok := s.done[id]
	s.mu.Unlock()
	if !ok {
		return schemas.Task{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		t, _ := s.Get(id)
		return t, true
	case <-timer.C:
		return schemas.Task{}, false
	case <-ctx.Done():
		return schemas.Task{}, false
	}
}

// Snapshot reports per-status counts for observability.
func (s *TaskStore) Snapshot() schemas.QueueSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[schemas.TaskStatus]int)
	pending := 0
	for _, t := range s.tasks {
		counts[t.Status]++
		if t.Status == schemas.TaskPending {
			pending++
		}
	}
	return schemas.QueueSnapshot{PendingCount: pending, StatusCounts: counts}
}
