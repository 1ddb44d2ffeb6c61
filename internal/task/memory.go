package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var _ Repo = (*MemRepository)(nil)

// MemRepository is an in-process Repo implementation used by tests and by
// local development without an ArangoDB instance. It implements the same
// claim, transition, and reclaim semantics as Repository, guarded by a
// single mutex rather than an AQL query, so the at-most-one claim
// guarantee (§5, §8 property 1) holds under concurrent callers within one
// process.
type MemRepository struct {
	mu              sync.Mutex
	tasks           map[string]*Task
	maxRetryDefault int
}

// NewMemRepository creates an empty in-memory task repository.
func NewMemRepository(maxRetryDefault int) *MemRepository {
	return &MemRepository{
		tasks:           make(map[string]*Task),
		maxRetryDefault: maxRetryDefault,
	}
}

func (r *MemRepository) Enqueue(ctx context.Context, command, repoPath string, priority int) (string, error) {
	if repoPath == "" {
		return "", fmt.Errorf("%w: repoPath must not be empty", ErrInvalidArgument)
	}
	if priority < MinPriority || priority > MaxPriority {
		return "", fmt.Errorf("%w: priority must be in [%d, %d]", ErrInvalidArgument, MinPriority, MaxPriority)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t := &Task{
		ID:        uuid.NewString(),
		Command:   command,
		RepoPath:  repoPath,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	r.tasks[t.ID] = t
	return t.ID, nil
}

func (r *MemRepository) ClaimNextFor(ctx context.Context, agentID, repoPath string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*Task
	for _, t := range r.tasks {
		if t.RepoPath == repoPath && t.Status == StatusPending {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	chosen := candidates[0]
	now := time.Now()
	chosen.Status = StatusAssigned
	chosen.AgentID = agentID
	chosen.StartedAt = &now

	clone := *chosen
	log.WithFields(log.Fields{"task_id": clone.ID, "agent_id": agentID, "repo": repoPath}).Info("claimed task (in-memory)")
	return &clone, nil
}

func (r *MemRepository) MarkInProgress(ctx context.Context, taskID string) error {
	return r.transition(taskID, StatusInProgress, func(t *Task) {})
}

func (r *MemRepository) Complete(ctx context.Context, taskID, result string) error {
	return r.transition(taskID, StatusCompleted, func(t *Task) {
		now := time.Now()
		t.CompletedAt = &now
		t.Result = result
		if t.StartedAt != nil {
			t.Duration = now.Sub(*t.StartedAt)
		}
	})
}

func (r *MemRepository) Fail(ctx context.Context, taskID, errMsg string) error {
	return r.transition(taskID, StatusFailed, func(t *Task) {
		now := time.Now()
		t.CompletedAt = &now
		t.Error = errMsg
		if t.StartedAt != nil {
			t.Duration = now.Sub(*t.StartedAt)
		}
	})
}

func (r *MemRepository) Cancel(ctx context.Context, taskID string) error {
	return r.transition(taskID, StatusCancelled, func(t *Task) {
		now := time.Now()
		t.CompletedAt = &now
	})
}

func (r *MemRepository) Reclaim(ctx context.Context, taskID string, maxRetry int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if t.Status != StatusAssigned && t.Status != StatusInProgress {
		return nil
	}

	if maxRetry <= 0 {
		maxRetry = r.maxRetryDefault
	}
	if t.RetryCount+1 > maxRetry {
		now := time.Now()
		t.Status = StatusFailed
		t.CompletedAt = &now
		t.Error = "task abandoned: agent offline and max retries exceeded"
		return nil
	}

	t.RetryCount++
	t.Status = StatusPending
	t.AgentID = ""
	t.StartedAt = nil
	return nil
}

func (r *MemRepository) transition(taskID string, to Status, mutate func(*Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.Status, to)
	}
	t.Status = to
	mutate(t)
	return nil
}

func (r *MemRepository) Get(ctx context.Context, taskID string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	clone := *t
	return &clone, nil
}

func (r *MemRepository) List(ctx context.Context, filter Filter) ([]*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Task
	for _, t := range r.tasks {
		if filter.RepoPath != "" && t.RepoPath != filter.RepoPath {
			continue
		}
		if filter.AgentID != "" && t.AgentID != filter.AgentID {
			continue
		}
		if len(filter.Status) > 0 {
			match := false
			for _, s := range filter.Status {
				if t.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		clone := *t
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
