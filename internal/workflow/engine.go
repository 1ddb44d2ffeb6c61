package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aosanya/agentorch/internal/expr"
	"github.com/aosanya/agentorch/internal/loop"
	"github.com/aosanya/agentorch/internal/orcherr"
	"github.com/aosanya/agentorch/internal/retry"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// StepDelegate executes a single step's command. In the core this is a
// pluggable test seam; in integration it typically enqueues a Task on
// the task repository and blocks for its terminal result.
type StepDelegate interface {
	Execute(ctx context.Context, step WorkflowStep, vars map[string]interface{}) (result string, exceptionType string, err error)
}

// StepDelegateFunc adapts a function to StepDelegate.
type StepDelegateFunc func(ctx context.Context, step WorkflowStep, vars map[string]interface{}) (string, string, error)

func (f StepDelegateFunc) Execute(ctx context.Context, step WorkflowStep, vars map[string]interface{}) (string, string, error) {
	return f(ctx, step, vars)
}

var allowedTransitions = map[Status]map[Status]bool{
	Pending:   {Running: true, Failed: true},
	Running:   {Paused: true, Completed: true, Failed: true},
	Paused:    {Running: true, Failed: true},
	Completed: {},
	Failed:    {},
}

// CanTransition reports whether a live execution may move from `from` to
// `to`, per §4.9's state machine table.
func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Engine executes workflows and holds the in-memory execution registry
// described in §4.9 step 6.
type Engine struct {
	delegate StepDelegate
	logger   *log.Logger

	mu         sync.RWMutex
	executions map[string]*ExecutionResult
	execLocks  map[string]*sync.Mutex
	contexts   map[string]*Context
}

// NewEngine constructs an Engine with delegate as its step delegate.
func NewEngine(delegate StepDelegate, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Engine{
		delegate:   delegate,
		logger:     logger,
		executions: make(map[string]*ExecutionResult),
		execLocks:  make(map[string]*sync.Mutex),
		contexts:   make(map[string]*Context),
	}
}

func (e *Engine) lockFor(executionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.execLocks[executionID]
	if !ok {
		l = &sync.Mutex{}
		e.execLocks[executionID] = l
	}
	return l
}

// GetExecution returns the registered result for executionID. The
// pointer is the one the running execution keeps updating, not a copy.
func (e *Engine) GetExecution(executionID string) (*ExecutionResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	res, ok := e.executions[executionID]
	return res, ok
}

func (e *Engine) register(res *ExecutionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executions[res.ExecutionID] = res
}

// Execute runs wf to completion (or to its first unrecoverable failure)
// per §4.9 steps 1–6. A non-nil error return means the workflow was
// malformed at the boundary (RequiredVariableMissing) — this is raised
// distinctly from a normal Failed ExecutionResult, which Execute always
// returns for every other kind of failure.
func (e *Engine) Execute(ctx context.Context, wf *Workflow, inputs map[string]interface{}) (*ExecutionResult, error) {
	executionID := uuid.NewString()
	res := &ExecutionResult{
		ExecutionID: executionID,
		WorkflowID:  wf.ID,
		Status:      Pending,
		StartedAt:   time.Now(),
	}
	e.register(res)

	if err := Validate(wf); err != nil {
		res.Status = Failed
		res.Error = err
		now := time.Now()
		res.CompletedAt = &now
		e.logger.WithFields(log.Fields{"execution_id": executionID, "workflow_id": wf.ID}).WithError(err).Error("workflow validation failed")
		return res, nil
	}

	wfCtx, err := initContext(wf, inputs, executionID, res.StartedAt)
	if err != nil {
		now := time.Now()
		res.Status = Failed
		res.Error = err
		res.CompletedAt = &now
		return res, err
	}

	e.mu.Lock()
	e.contexts[executionID] = wfCtx
	e.mu.Unlock()

	lock := e.lockFor(executionID)
	lock.Lock()
	res.Status = Running
	lock.Unlock()
	e.logger.WithFields(log.Fields{"execution_id": executionID, "workflow_id": wf.ID}).Info("workflow execution started")

	order := planOrder(wf.Steps)
	byID := make(map[string]*WorkflowStep, len(wf.Steps))
	for i := range wf.Steps {
		byID[wf.Steps[i].ID] = &wf.Steps[i]
	}

	completedOK := make(map[string]bool, len(order))
	anyFailed := false

	for _, stepID := range order {
		if halted := e.waitWhilePaused(ctx, res, lock); halted {
			return res, nil
		}

		select {
		case <-ctx.Done():
			lock.Lock()
			res.Status = Failed
			res.Error = orcherr.New(orcherr.Cancelled, ctx.Err())
			lock.Unlock()
			now := time.Now()
			res.CompletedAt = &now
			return res, nil
		default:
		}

		step := byID[stepID]

		if blocked := dependencyBlocked(*step, completedOK); blocked {
			// Testable property #8: a step blocked by a failed or
			// unexecuted dependency gets no entry in StepResults at all
			// (it "does not appear"); it still marks the workflow Failed.
			anyFailed = true
			continue
		}

		if step.Condition != "" {
			ok, cerr := expr.EvaluateBool(step.Condition, wfCtx.snapshot())
			if cerr != nil {
				// A condition that cannot be evaluated counts as not
				// met; the expression error is logged, not dropped.
				e.logger.WithFields(log.Fields{"execution_id": executionID, "step_id": step.ID}).WithError(cerr).Warn("step condition could not be evaluated; treating it as not met")
				ok = false
			}
			if !ok {
				res.StepResults = append(res.StepResults, StepResult{
					StepID: step.ID, Status: Completed, Skipped: true,
					SkipReason: "condition_not_met", ExecutedAt: time.Now(),
				})
				completedOK[step.ID] = true
				continue
			}
		}

		sr := e.runStep(ctx, *step, wfCtx)
		res.StepResults = append(res.StepResults, sr)
		if sr.Status == Completed {
			completedOK[step.ID] = true
		} else {
			anyFailed = true
		}
	}

	lock.Lock()
	if res.Status == Running {
		if anyFailed {
			res.Status = Failed
		} else {
			res.Status = Completed
		}
	}
	final := res.Status
	lock.Unlock()

	now := time.Now()
	res.CompletedAt = &now
	res.Variables = wfCtx.snapshot()
	e.logger.WithFields(log.Fields{"execution_id": executionID, "workflow_id": wf.ID, "status": final}).Info("workflow execution finished")
	return res, nil
}

// waitWhilePaused blocks the execution's step loop while res.Status is
// Paused, per §4.9: "between pause and resume, no new step starts." It
// returns true if the execution was halted permanently (cancelled, or
// already terminal) and Execute should return without selecting another
// step.
func (e *Engine) waitWhilePaused(ctx context.Context, res *ExecutionResult, lock *sync.Mutex) bool {
	const pollInterval = 5 * time.Millisecond
	for {
		lock.Lock()
		status := res.Status
		lock.Unlock()

		switch status {
		case Running:
			return false
		case Completed, Failed:
			return true
		}

		select {
		case <-ctx.Done():
			lock.Lock()
			res.Status = Failed
			res.Error = orcherr.New(orcherr.Cancelled, ctx.Err())
			lock.Unlock()
			now := time.Now()
			res.CompletedAt = &now
			return true
		case <-time.After(pollInterval):
		}
	}
}

func dependencyBlocked(step WorkflowStep, completedOK map[string]bool) bool {
	for _, dep := range step.DependsOn {
		if !completedOK[dep] {
			return true
		}
	}
	return false
}

func (e *Engine) runStep(ctx context.Context, step WorkflowStep, wfCtx *Context) StepResult {
	policy := retry.SingleAttempt()
	if step.Retry != nil {
		policy = *step.Retry
	}

	if step.Type == StepLoop && step.Loop != nil {
		return e.runLoopStep(ctx, step, wfCtx, policy)
	}

	vars := wfCtx.snapshot()
	op := func(opCtx context.Context) (string, string, error) {
		return e.delegate.Execute(opCtx, step, vars)
	}

	rr := retry.Do(ctx, policy, vars, op)
	sr := StepResult{
		StepID:        step.ID,
		TotalAttempts: rr.TotalAttempts,
		ExecutedAt:    time.Now(),
	}

	if rr.Success {
		sr.Status = Completed
		sr.Result = rr.Value
		wfCtx.set(step.ID+".result", rr.Value)
		wfCtx.set(step.ID+".parameters", step.Parameters)
		wfCtx.set(step.ID+".executedAt", sr.ExecutedAt)
		wfCtx.set(step.ID+".totalAttempts", rr.TotalAttempts)
		return sr
	}

	sr.Status = Failed
	sr.AllAttemptsFailed = true
	sr.Error = orcherr.New(orcherr.StepExecutionFailed, rr.FinalException)
	return sr
}

func (e *Engine) runLoopStep(ctx context.Context, step WorkflowStep, wfCtx *Context, policy retry.Policy) StepResult {
	sr := StepResult{StepID: step.ID, ExecutedAt: time.Now()}

	delegate := func(iterVars map[string]interface{}) error {
		op := func(opCtx context.Context) (string, string, error) {
			return e.delegate.Execute(opCtx, step, iterVars)
		}
		rr := retry.Do(ctx, policy, iterVars, op)
		if !rr.Success {
			return rr.FinalException
		}
		for k, v := range iterVars {
			wfCtx.set(k, v)
		}
		return nil
	}

	lr := loop.Run(*step.Loop, wfCtx.snapshot(), delegate)
	sr.TotalAttempts = lr.TotalIterations
	wfCtx.set(step.ID+".loopIterations", lr.TotalIterations)

	if lr.Status == loop.Completed {
		sr.Status = Completed
		return sr
	}

	sr.Status = Failed
	sr.AllAttemptsFailed = true
	sr.Error = orcherr.New(orcherr.StepExecutionFailed, lr.Error)
	return sr
}

// initContext seeds the namespaced system variables (§3) ahead of the
// caller's inputs and the workflow's declared variable defaults.
func initContext(wf *Workflow, inputs map[string]interface{}, executionID string, startedAt time.Time) (*Context, error) {
	ctx := NewContext(inputs)
	ctx.Variables["_executionId"] = executionID
	ctx.Variables["_workflowId"] = wf.ID
	ctx.Variables["_startTime"] = startedAt
	for _, v := range wf.Variables {
		if _, present := ctx.Variables[v.Name]; present {
			continue
		}
		if v.Required {
			return nil, orcherr.New(orcherr.RequiredVariableMissing, fmt.Errorf("required variable %q was not supplied", v.Name))
		}
		ctx.Variables[v.Name] = v.Default
	}
	return ctx, nil
}

// Pause transitions a Running execution to Paused. It fails with
// IllegalTransition if the current status disallows it; it never
// corrupts state.
func (e *Engine) Pause(executionID string) error {
	lock := e.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	res, ok := e.executions[executionID]
	e.mu.Unlock()
	if !ok {
		return orcherr.New(orcherr.InvalidArgument, fmt.Errorf("execution %q not found", executionID))
	}

	if !CanTransition(res.Status, Paused) {
		return orcherr.New(orcherr.IllegalTransition, fmt.Errorf("cannot pause execution %q from status %s", executionID, res.Status))
	}

	now := time.Now()
	res.previousStatus = res.Status
	res.Status = Paused
	res.pausedAt = &now

	e.mu.RLock()
	wfCtx, hasCtx := e.contexts[executionID]
	e.mu.RUnlock()
	if hasCtx {
		wfCtx.set("_pausedAt", now)
		wfCtx.set("_previousStatus", res.previousStatus)
	}

	e.logger.WithField("execution_id", executionID).Info("workflow execution paused")
	return nil
}

// Resume transitions a Paused execution back to Running, accumulating
// the elapsed pause duration.
func (e *Engine) Resume(executionID string) error {
	lock := e.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	res, ok := e.executions[executionID]
	e.mu.Unlock()
	if !ok {
		return orcherr.New(orcherr.InvalidArgument, fmt.Errorf("execution %q not found", executionID))
	}

	if !CanTransition(res.Status, Running) {
		return orcherr.New(orcherr.IllegalTransition, fmt.Errorf("cannot resume execution %q from status %s", executionID, res.Status))
	}

	now := time.Now()
	res.resumedAt = &now
	if res.pausedAt != nil {
		res.totalPauseDuration += now.Sub(*res.pausedAt)
	}
	res.Status = Running

	e.mu.RLock()
	wfCtx, hasCtx := e.contexts[executionID]
	e.mu.RUnlock()
	if hasCtx {
		wfCtx.set("_resumedAt", now)
		wfCtx.set("_totalPauseDuration", res.totalPauseDuration)
	}

	e.logger.WithField("execution_id", executionID).Info("workflow execution resumed")
	return nil
}
