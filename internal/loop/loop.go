// Package loop implements C8, the loop executor: evaluates ForEach, While,
// and Retry loop headers over a nested group of steps, delegating the
// actual step execution to a caller-supplied function per §4.7.
package loop

import (
	"fmt"

	"github.com/aosanya/agentorch/internal/expr"
)

// Type enumerates the supported loop headers.
type Type string

const (
	ForEach Type = "ForEach"
	While   Type = "While"
	Retry   Type = "Retry"
)

// DefaultMaxIterations is the hard cap applied to While and Retry loops
// whose header omits MaxIterations, per §4.7. ForEach loops ignore
// MaxIterations and run once per collection element.
const DefaultMaxIterations = 1000

// Definition mirrors the Loop definition entity in §3.
type Definition struct {
	Type             Type
	Collection       string // required for ForEach; expression evaluating to a slice
	Condition        string // required for While
	IteratorVariable string
	IndexVariable    string
	MaxIterations    int
}

// Status is the terminal outcome of a loop.
type Status string

const (
	Completed            Status = "Completed"
	Failed               Status = "Failed"
	MaxIterationsReached Status = "MaxIterationsReached"
)

// IterationResult records the outcome of delegating to the nested step
// group once.
type IterationResult struct {
	Index   int
	Success bool
	Error   error
}

// Result is the full outcome of Run.
type Result struct {
	Type                 Type
	Status               Status
	TotalIterations      int
	SuccessfulIterations int
	FailedIterations     int
	PerIterationResults  []IterationResult
	Error                error
}

// Delegate executes the loop body's nested steps under the given
// variables, which already carry the current iteration/index bindings
// merged in. It returns whether the iteration as a whole succeeded.
type Delegate func(iterationVars map[string]interface{}) error

func failedResult(t Type, err error) Result {
	return Result{Type: t, Status: Failed, Error: err}
}

// Run evaluates def against vars, invoking delegate once per iteration.
// Invalid headers (missing required field, unknown type) produce a
// Failed result with an explanatory error rather than a panic.
func Run(def Definition, vars map[string]interface{}, delegate Delegate) Result {
	switch def.Type {
	case ForEach:
		return runForEach(def, vars, delegate)
	case While:
		return runWhile(def, vars, delegate)
	case Retry:
		return runRetryLoop(def, vars, delegate)
	default:
		return failedResult(def.Type, fmt.Errorf("loop: unknown loop type %q", def.Type))
	}
}

func runForEach(def Definition, vars map[string]interface{}, delegate Delegate) Result {
	if def.Collection == "" {
		return failedResult(ForEach, fmt.Errorf("loop: ForEach requires a collection expression"))
	}

	items, err := evaluateCollection(def.Collection, vars)
	if err != nil {
		return failedResult(ForEach, err)
	}

	res := Result{Type: ForEach, Status: Completed}
	if len(items) == 0 {
		return res
	}

	for i, item := range items {
		iterVars := mergeVars(vars)
		if def.IteratorVariable != "" {
			iterVars[def.IteratorVariable] = item
		}
		if def.IndexVariable != "" {
			iterVars[def.IndexVariable] = i
		}

		iterErr := delegate(iterVars)
		res.TotalIterations++
		res.PerIterationResults = append(res.PerIterationResults, IterationResult{Index: i, Success: iterErr == nil, Error: iterErr})
		if iterErr == nil {
			res.SuccessfulIterations++
		} else {
			res.FailedIterations++
			// a per-iteration failure does not abort a ForEach loop (§4.7)
		}
	}

	if res.FailedIterations > 0 {
		res.Status = Failed
		res.Error = fmt.Errorf("loop: %d of %d ForEach iterations failed", res.FailedIterations, res.TotalIterations)
	}
	return res
}

func runWhile(def Definition, vars map[string]interface{}, delegate Delegate) Result {
	if def.Condition == "" {
		return failedResult(While, fmt.Errorf("loop: While requires a condition expression"))
	}

	max := def.MaxIterations
	if max <= 0 {
		max = DefaultMaxIterations
	}

	res := Result{Type: While, Status: Completed}
	for i := 0; ; i++ {
		ok, err := expr.EvaluateBool(def.Condition, vars)
		if err != nil {
			return failedResult(While, fmt.Errorf("loop: While condition: %w", err))
		}
		if !ok {
			break
		}
		if i >= max {
			res.Status = MaxIterationsReached
			res.Error = fmt.Errorf("loop: While reached maxIterations=%d without the condition becoming false", max)
			return res
		}

		iterVars := mergeVars(vars)
		if def.IndexVariable != "" {
			iterVars[def.IndexVariable] = i
		}

		iterErr := delegate(iterVars)
		res.TotalIterations++
		res.PerIterationResults = append(res.PerIterationResults, IterationResult{Index: i, Success: iterErr == nil, Error: iterErr})
		if iterErr == nil {
			res.SuccessfulIterations++
		} else {
			res.FailedIterations++
			res.Status = Failed
			res.Error = fmt.Errorf("loop: While iteration %d failed: %w", i, iterErr)
			return res
		}
	}
	return res
}

func runRetryLoop(def Definition, vars map[string]interface{}, delegate Delegate) Result {
	max := def.MaxIterations
	if max <= 0 {
		max = DefaultMaxIterations
	}

	res := Result{Type: Retry, Status: Failed}
	var lastErr error
	for i := 0; i < max; i++ {
		iterVars := mergeVars(vars)
		if def.IndexVariable != "" {
			iterVars[def.IndexVariable] = i
		}

		iterErr := delegate(iterVars)
		res.TotalIterations++
		res.PerIterationResults = append(res.PerIterationResults, IterationResult{Index: i, Success: iterErr == nil, Error: iterErr})
		if iterErr == nil {
			res.SuccessfulIterations++
			res.Status = Completed
			res.Error = nil
			return res
		}
		res.FailedIterations++
		lastErr = iterErr
	}

	res.Status = MaxIterationsReached
	res.Error = fmt.Errorf("loop: Retry exhausted maxIterations=%d, last error: %w", max, lastErr)
	return res
}

func evaluateCollection(expression string, vars map[string]interface{}) ([]interface{}, error) {
	v, ok := lookupRaw(expression, vars)
	if !ok {
		return nil, nil
	}
	switch t := v.(type) {
	case []interface{}:
		return t, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("loop: collection expression %q did not resolve to a list", expression)
	}
}

// lookupRaw resolves a bare variable name (optionally $-prefixed or
// dotted) directly from vars, without going through the boolean grammar —
// collection expressions name a variable holding a slice, not a predicate.
func lookupRaw(name string, vars map[string]interface{}) (interface{}, bool) {
	key := name
	if len(key) > 0 && key[0] == '$' {
		key = key[1:]
	}
	v, ok := vars[key]
	return v, ok
}

func mergeVars(vars map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(vars)+2)
	for k, v := range vars {
		out[k] = v
	}
	return out
}
