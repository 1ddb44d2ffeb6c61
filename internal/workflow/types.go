// Package workflow implements C9: the workflow engine. It validates a
// workflow graph, plans a deterministic execution order, and runs its
// steps honoring dependencies, conditions, retries, loops, and
// pause/resume semantics.
package workflow

import (
	"sync"
	"time"

	"github.com/aosanya/agentorch/internal/loop"
	"github.com/aosanya/agentorch/internal/retry"
)

// StepType enumerates the kinds of step a workflow may contain. Parallel
// is reserved and is treated as Task by this engine until a future
// extension adds real fan-out.
type StepType string

const (
	StepTask      StepType = "Task"
	StepCondition StepType = "Condition"
	StepLoop      StepType = "Loop"
	StepParallel  StepType = "Parallel"
	StepStart     StepType = "Start"
	StepEnd       StepType = "End"
)

// VariableType enumerates the declared types a workflow variable may
// carry. The engine does not coerce values to these types; they document
// intent for callers and for a future markdown-document ingester.
type VariableType string

const (
	VarString      VariableType = "String"
	VarNumber      VariableType = "Number"
	VarBoolean     VariableType = "Boolean"
	VarDateTime    VariableType = "DateTime"
	VarFilePath    VariableType = "FilePath"
	VarURL         VariableType = "Url"
	VarJSON        VariableType = "Json"
	VarStringArray VariableType = "StringArray"
)

// VariableDefinition declares one workflow-level variable.
type VariableDefinition struct {
	Name     string
	Type     VariableType
	Required bool
	Default  interface{}
}

// WorkflowStep is a single node in the workflow graph.
type WorkflowStep struct {
	ID         string
	Name       string
	Type       StepType
	Command    string
	Parameters map[string]interface{}
	DependsOn  []string
	Condition  string           // optional boolean expression; empty means "always run"
	Retry      *retry.Policy    // nil means single-attempt
	Loop       *loop.Definition // non-nil only for Type == StepLoop
}

// Workflow is the full definition of a multi-step workflow graph.
type Workflow struct {
	ID          string
	Name        string
	Description string
	Variables   []VariableDefinition
	Steps       []WorkflowStep
}

// Status is the lifecycle state of a live execution, per the state
// machine in §4.9.
type Status string

const (
	Pending   Status = "Pending"
	Running   Status = "Running"
	Paused    Status = "Paused"
	Completed Status = "Completed"
	Failed    Status = "Failed"
)

// StepResult records the outcome of one planned step.
type StepResult struct {
	StepID            string
	Status            Status // Completed or Failed for a step
	Skipped           bool
	SkipReason        string
	TotalAttempts     int
	AllAttemptsFailed bool
	Result            string
	Error             error
	ExecutedAt        time.Time
}

// Context carries the workflow's variables across step execution. Steps
// publish their results into Variables under "<stepId>.result" etc.
// Pause/Resume also write into Variables from whatever goroutine calls
// them, concurrently with the running step loop, so every access beyond
// construction goes through set/snapshot rather than the map directly.
type Context struct {
	mu        sync.Mutex
	Variables map[string]interface{}
}

// set writes a single variable under lock.
func (c *Context) set(key string, val interface{}) {
	c.mu.Lock()
	c.Variables[key] = val
	c.mu.Unlock()
}

// snapshot returns a point-in-time copy of Variables, safe to hand to
// code (condition evaluation, retry policies, step delegates) that runs
// outside the lock.
func (c *Context) snapshot() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make(map[string]interface{}, len(c.Variables))
	for k, v := range c.Variables {
		cp[k] = v
	}
	return cp
}

// NewContext seeds a Context with the caller's inputs only. It does not
// add system variables, apply variable defaults or check required
// variables; Execute's context-initialization step does that, so that a
// RequiredVariableMissing error can be raised at the right point.
func NewContext(inputs map[string]interface{}) *Context {
	vars := make(map[string]interface{}, len(inputs)+2)
	for k, v := range inputs {
		vars[k] = v
	}
	return &Context{Variables: vars}
}

// ExecutionResult is the terminal outcome of one Execute call, stored in
// the execution registry keyed by ExecutionID.
type ExecutionResult struct {
	ExecutionID string
	WorkflowID  string
	Status      Status
	StepResults []StepResult
	Error       error
	StartedAt   time.Time
	CompletedAt *time.Time
	Variables   map[string]interface{} // final context variables, including published <stepId>.* entries

	pausedAt           *time.Time
	resumedAt          *time.Time
	totalPauseDuration time.Duration
	previousStatus     Status
}
