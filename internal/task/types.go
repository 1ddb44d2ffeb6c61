package task

import (
	"context"
	"errors"
	"time"
)

// Status represents the current state of a task.
type Status string

const (
	// StatusPending indicates the task is waiting to be claimed.
	StatusPending Status = "pending"
	// StatusAssigned indicates the task has been claimed by an agent.
	StatusAssigned Status = "assigned"
	// StatusInProgress indicates the agent has started executing the task.
	StatusInProgress Status = "in_progress"
	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates task execution failed.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the task was cancelled before completion.
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if status cannot transition further.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// MinPriority and MaxPriority bound the task priority range per §4.1.
const (
	MinPriority = 0
	MaxPriority = 9
)

var (
	// ErrInvalidArgument is returned when a precondition fails, e.g. an
	// empty repository path or an out-of-range priority.
	ErrInvalidArgument = errors.New("task: invalid argument")
	// ErrIllegalTransition is returned when a status mutation is attempted
	// from a status that does not permit it.
	ErrIllegalTransition = errors.New("task: illegal status transition")
	// ErrNotFound is returned when a task id does not resolve.
	ErrNotFound = errors.New("task: not found")
)

// Task is a unit of command-style work submitted against a repository.
type Task struct {
	ID string `json:"_key"`

	Command  string `json:"command"`
	RepoPath string `json:"repoPath"`
	Priority int    `json:"priority"`

	Status Status `json:"status"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Duration time.Duration `json:"duration,omitempty"`
	Result   string        `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`

	RetryCount int `json:"retryCount"`

	CorrelationID string `json:"correlationId,omitempty"`

	WorkflowID       string `json:"workflowId,omitempty"`
	ParentTaskID     string `json:"parentTaskId,omitempty"`
	WorkflowStepIdx  int    `json:"workflowStepIndex,omitempty"`
	HasWorkflowOwner bool   `json:"hasWorkflowOwner,omitempty"`

	AgentID string `json:"agentId,omitempty"`
}

// Filter restricts List results.
type Filter struct {
	RepoPath string
	Status   []Status
	AgentID  string
	Limit    int
}

// allowedTransitions enumerates the legal status DAG from §3:
// Pending → {Assigned → InProgress → {Completed|Failed}} ∪ {Cancelled from
// any non-terminal}.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusAssigned:  true,
		StatusCancelled: true,
	},
	StatusAssigned: {
		StatusInProgress: true,
		StatusCancelled:  true,
		StatusPending:    true, // reclaim
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to Status) bool {
	targets, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Repo is the C2 task repository surface consumed by the dispatcher (C4)
// and by the workflow step delegate that cmd/orchestrator hands to the
// workflow engine (C9). Repository (ArangoDB) and MemRepository
// (in-process) both satisfy it.
type Repo interface {
	Enqueue(ctx context.Context, command, repoPath string, priority int) (string, error)
	ClaimNextFor(ctx context.Context, agentID, repoPath string) (*Task, error)
	MarkInProgress(ctx context.Context, taskID string) error
	Complete(ctx context.Context, taskID, result string) error
	Fail(ctx context.Context, taskID, errMsg string) error
	Cancel(ctx context.Context, taskID string) error
	Reclaim(ctx context.Context, taskID string, maxRetry int) error
	Get(ctx context.Context, taskID string) (*Task, error)
	List(ctx context.Context, filter Filter) ([]*Task, error)
}
