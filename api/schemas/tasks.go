package schemas

import "time"

// -- Task Schemas --

// TaskStatus is the lifecycle state of a dispatched prompt.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether a task in this status can never change again.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskMode selects how the prompt is delivered. Standard is the only mode the
// executor currently distinguishes; the value travels with the task so
// platform-specific delivery variants can be added without schema changes.
type TaskMode string

const (
	ModeStandard TaskMode = "standard"
)

// PromptResult is what the interaction layer returns for a delivered prompt.
type PromptResult struct {
	Response      string        `json:"response"`
	TokenEstimate int           `json:"token_estimate"`
	Duration      time.Duration `json:"duration"`
}

// Task is one unit of dispatch work. Records are owned by the task store;
// mutation happens only through its transition API.
type Task struct {
	ID       int64      `json:"id"`
	Platform string     `json:"platform"`
	Prompt   string     `json:"prompt"`
	Mode     TaskMode   `json:"mode"`
	Priority int        `json:"priority"`
	Status   TaskStatus `json:"status"`

	// Positions is the grounding snapshot taken at submission time; workers
	// never read the live profile.
	Positions PositionSet `json:"positions,omitempty"`

	Timeout   time.Duration `json:"timeout,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	EndedAt   time.Time     `json:"ended_at,omitempty"`

	Result *PromptResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// QueueSnapshot is an observability view over the task store.
type QueueSnapshot struct {
	PendingCount int                `json:"pending_count"`
	StatusCounts map[TaskStatus]int `json:"status_counts"`
}

// PlatformAvailability is the scheduler's report for one platform.
type PlatformAvailability struct {
	Available   bool      `json:"available"`
	Reason      string    `json:"reason"`
	UsedPrompts int       `json:"used_prompts"`
	MaxPrompts  int       `json:"max_prompts"`
	UsedTokens  int       `json:"used_tokens"`
	NextReset   time.Time `json:"next_reset,omitempty"`
}
