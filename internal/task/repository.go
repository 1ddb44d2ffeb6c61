package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arangodb/go-driver"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Collection is the name of the ArangoDB collection backing the task store.
const Collection = "tasks"

var _ Repo = (*Repository)(nil)

// Repository implements C2's task repository operations over C1's store.
//
// ClaimNextFor is linearizable: claimMu serializes the read-then-write
// sequence so that, within this process, a given task is handed to at
// most one caller (§5 "claim operations are linearizable"). The
// underlying AQL statement also performs the filter/sort/limit/update as
// a single query, which ArangoDB executes under one implicit
// transaction, giving the same guarantee across process instances.
type Repository struct {
	db    driver.Database
	tasks driver.Collection

	claimMu sync.Mutex

	maxRetryDefault int
}

// NewRepository opens (creating if necessary) the tasks collection and
// its indexes.
func NewRepository(db driver.Database, maxRetryDefault int) (*Repository, error) {
	r := &Repository{db: db, maxRetryDefault: maxRetryDefault}

	ctx := context.Background()
	exists, err := db.CollectionExists(ctx, Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to check tasks collection: %w", err)
	}
	if !exists {
		col, err := db.CreateCollection(ctx, Collection, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create tasks collection: %w", err)
		}
		r.tasks = col
		log.WithField("collection", Collection).Info("created tasks collection")
	} else {
		col, err := db.Collection(ctx, Collection)
		if err != nil {
			return nil, fmt.Errorf("failed to get tasks collection: %w", err)
		}
		r.tasks = col
	}

	if err := r.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create task indexes: %w", err)
	}

	return r, nil
}

func (r *Repository) createIndexes(ctx context.Context) error {
	indexes := []struct {
		name   string
		fields []string
	}{
		{"repo_status_idx", []string{"repoPath", "status"}},
		{"status_priority_idx", []string{"status", "priority"}},
		{"agent_id_idx", []string{"agentId"}},
		{"workflow_id_idx", []string{"workflowId"}},
	}

	for _, idx := range indexes {
		if exists, err := r.tasks.IndexExists(ctx, idx.name); err != nil {
			log.WithError(err).WithField("index", idx.name).Warn("failed to check index existence")
		} else if !exists {
			if _, _, err := r.tasks.EnsurePersistentIndex(ctx, idx.fields, &driver.EnsurePersistentIndexOptions{Name: idx.name}); err != nil {
				log.WithError(err).WithField("index", idx.name).Warn("failed to create index")
			}
		}
	}
	return nil
}

// Enqueue persists a new Pending task. Fails with ErrInvalidArgument if
// repoPath is empty or priority is outside [MinPriority, MaxPriority].
func (r *Repository) Enqueue(ctx context.Context, command, repoPath string, priority int) (string, error) {
	if repoPath == "" {
		return "", fmt.Errorf("%w: repoPath must not be empty", ErrInvalidArgument)
	}
	if priority < MinPriority || priority > MaxPriority {
		return "", fmt.Errorf("%w: priority must be in [%d, %d]", ErrInvalidArgument, MinPriority, MaxPriority)
	}

	t := &Task{
		ID:        uuid.NewString(),
		Command:   command,
		RepoPath:  repoPath,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	if _, err := r.tasks.CreateDocument(ctx, t); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.WithFields(log.Fields{"task_id": t.ID, "repo": repoPath, "priority": priority}).Debug("enqueued task")
	return t.ID, nil
}

// ClaimNextFor atomically selects the highest-priority Pending task bound
// to repoPath (ties broken by oldest createdAt), marks it Assigned to
// agentID, and returns it. Returns (nil, nil) if no task is eligible.
func (r *Repository) ClaimNextFor(ctx context.Context, agentID, repoPath string) (*Task, error) {
	r.claimMu.Lock()
	defer r.claimMu.Unlock()

	query := `
		FOR t IN @@collection
			FILTER t.repoPath == @repoPath AND t.status == @pending
			SORT t.priority DESC, t.createdAt ASC
			LIMIT 1
			UPDATE t WITH {
				status: @assigned,
				agentId: @agentId,
				startedAt: @now
			} IN @@collection
			RETURN NEW
	`
	now := time.Now()
	bindVars := map[string]interface{}{
		"@collection": Collection,
		"repoPath":    repoPath,
		"pending":     StatusPending,
		"assigned":    StatusAssigned,
		"agentId":     agentID,
		"now":         now,
	}

	cursor, err := r.db.Query(ctx, query, bindVars)
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	defer cursor.Close()

	var claimed Task
	if _, err := cursor.ReadDocument(ctx, &claimed); err != nil {
		if driver.IsNoMoreDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read claimed task: %w", err)
	}

	log.WithFields(log.Fields{"task_id": claimed.ID, "agent_id": agentID, "repo": repoPath}).Info("claimed task")
	return &claimed, nil
}

// MarkInProgress transitions Assigned → InProgress.
func (r *Repository) MarkInProgress(ctx context.Context, taskID string) error {
	return r.transition(ctx, taskID, StatusInProgress, func(t *Task) {})
}

// Complete transitions InProgress → Completed, recording the result text.
func (r *Repository) Complete(ctx context.Context, taskID, result string) error {
	return r.transition(ctx, taskID, StatusCompleted, func(t *Task) {
		now := time.Now()
		t.CompletedAt = &now
		t.Result = result
		if t.StartedAt != nil {
			t.Duration = now.Sub(*t.StartedAt)
		}
	})
}

// Fail transitions InProgress → Failed, recording the error text.
func (r *Repository) Fail(ctx context.Context, taskID, errMsg string) error {
	return r.transition(ctx, taskID, StatusFailed, func(t *Task) {
		now := time.Now()
		t.CompletedAt = &now
		t.Error = errMsg
		if t.StartedAt != nil {
			t.Duration = now.Sub(*t.StartedAt)
		}
	})
}

// Cancel transitions any non-terminal status to Cancelled.
func (r *Repository) Cancel(ctx context.Context, taskID string) error {
	return r.transition(ctx, taskID, StatusCancelled, func(t *Task) {
		now := time.Now()
		t.CompletedAt = &now
	})
}

// Reclaim returns an orphaned Assigned/InProgress task to Pending,
// incrementing retryCount. If retryCount now exceeds maxRetry, the task
// is Failed instead with an "abandoned" error (§4.1). Called by the
// agent registry's heartbeat sweeper when an agent's Offline threshold
// (T_reclaim) is exceeded.
func (r *Repository) Reclaim(ctx context.Context, taskID string, maxRetry int) error {
	t, err := r.Get(ctx, taskID)
	if err != nil {
		return err
	}

	if t.Status != StatusAssigned && t.Status != StatusInProgress {
		return nil
	}

	if maxRetry <= 0 {
		maxRetry = r.maxRetryDefault
	}

	if t.RetryCount+1 > maxRetry {
		// Written directly rather than through Fail: the status table has
		// no Assigned -> Failed edge, and an abandoned task may still be
		// Assigned.
		abandon := map[string]interface{}{
			"status":      StatusFailed,
			"completedAt": time.Now(),
			"error":       "task abandoned: agent offline and max retries exceeded",
		}
		if _, err := r.tasks.UpdateDocument(ctx, taskID, abandon); err != nil {
			return fmt.Errorf("failed to abandon task: %w", err)
		}
		return nil
	}

	patch := map[string]interface{}{
		"status":     StatusPending,
		"retryCount": t.RetryCount + 1,
		"agentId":    "",
		"startedAt":  nil,
	}
	if _, err := r.tasks.UpdateDocument(ctx, taskID, patch); err != nil {
		return fmt.Errorf("failed to reclaim task: %w", err)
	}

	log.WithFields(log.Fields{"task_id": taskID, "retry_count": t.RetryCount + 1}).Warn("reclaimed orphaned task")
	return nil
}

// transition loads the task, validates the status transition, applies
// mutate, and persists the result.
func (r *Repository) transition(ctx context.Context, taskID string, to Status, mutate func(*Task)) error {
	t, err := r.Get(ctx, taskID)
	if err != nil {
		return err
	}

	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.Status, to)
	}

	t.Status = to
	mutate(t)

	if _, err := r.tasks.UpdateDocument(ctx, taskID, t); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	log.WithFields(log.Fields{"task_id": taskID, "status": to}).Debug("task transitioned")
	return nil
}

// Get retrieves a task by id.
func (r *Repository) Get(ctx context.Context, taskID string) (*Task, error) {
	var t Task
	if _, err := r.tasks.ReadDocument(ctx, taskID, &t); err != nil {
		if driver.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &t, nil
}

// List returns tasks matching filter, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]*Task, error) {
	query := "FOR t IN @@collection"
	bindVars := map[string]interface{}{"@collection": Collection}
	conditions := make([]string, 0, 3)

	if filter.RepoPath != "" {
		conditions = append(conditions, "t.repoPath == @repoPath")
		bindVars["repoPath"] = filter.RepoPath
	}
	if filter.AgentID != "" {
		conditions = append(conditions, "t.agentId == @agentId")
		bindVars["agentId"] = filter.AgentID
	}
	if len(filter.Status) > 0 {
		conditions = append(conditions, "t.status IN @statuses")
		bindVars["statuses"] = filter.Status
	}

	for i, c := range conditions {
		if i == 0 {
			query += " FILTER " + c
		} else {
			query += " AND " + c
		}
	}

	query += " SORT t.createdAt DESC"
	if filter.Limit > 0 {
		query += " LIMIT @limit"
		bindVars["limit"] = filter.Limit
	}
	query += " RETURN t"

	cursor, err := r.db.Query(ctx, query, bindVars)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer cursor.Close()

	var tasks []*Task
	for {
		var t Task
		if _, err := cursor.ReadDocument(ctx, &t); driver.IsNoMoreDocuments(err) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to read task from cursor: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, nil
}
