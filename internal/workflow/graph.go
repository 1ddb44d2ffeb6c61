package workflow

import (
	"fmt"

	"github.com/aosanya/agentorch/internal/orcherr"
)

// Validate returns nil iff wf satisfies §4.8: id and name are non-empty,
// the steps list is non-empty, step ids are unique, every depends-on id
// resolves to an existing step, no step depends on itself, and the
// dependency graph is acyclic. Validation is pure; it never mutates wf
// or touches storage.
func Validate(wf *Workflow) error {
	if wf.ID == "" || wf.Name == "" {
		return orcherr.New(orcherr.ValidationFailed, fmt.Errorf("workflow id and name must be non-empty"))
	}
	if len(wf.Steps) == 0 {
		return orcherr.New(orcherr.ValidationFailed, fmt.Errorf("workflow %s has no steps", wf.ID))
	}

	byID := make(map[string]*WorkflowStep, len(wf.Steps))
	for i := range wf.Steps {
		s := &wf.Steps[i]
		if s.ID == "" {
			return orcherr.New(orcherr.ValidationFailed, fmt.Errorf("step at index %d has an empty id", i))
		}
		if _, dup := byID[s.ID]; dup {
			return orcherr.New(orcherr.ValidationFailed, fmt.Errorf("duplicate step id %q", s.ID))
		}
		byID[s.ID] = s
	}

	for _, s := range wf.Steps {
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				return orcherr.New(orcherr.ValidationFailed, fmt.Errorf("step %q depends on itself", s.ID))
			}
			if _, ok := byID[dep]; !ok {
				return orcherr.New(orcherr.ValidationFailed, fmt.Errorf("step %q depends on unknown step %q", s.ID, dep))
			}
		}
	}

	if err := validateAcyclic(wf.Steps); err != nil {
		return orcherr.New(orcherr.ValidationFailed, err)
	}

	return nil
}

const (
	white = 0
	grey  = 1
	black = 2
)

// validateAcyclic runs a DFS with grey/black colouring over the
// depends-on edges, per §4.8.
func validateAcyclic(steps []WorkflowStep) error {
	deps := make(map[string][]string, len(steps))
	for _, s := range steps {
		deps[s.ID] = s.DependsOn
	}

	colour := make(map[string]int, len(steps))
	var visit func(id string) error
	visit = func(id string) error {
		colour[id] = grey
		for _, dep := range deps[id] {
			switch colour[dep] {
			case grey:
				return fmt.Errorf("circular dependency detected involving step %q", dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		colour[id] = black
		return nil
	}

	for _, s := range steps {
		if colour[s.ID] == white {
			if err := visit(s.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// planOrder computes a stable topological order over steps: Kahn's
// algorithm with ties broken by each step's position in the original
// list. This is deterministic across invocations of the same workflow,
// per §4.9 step 3 — unlike the teacher's batch planner, which breaks
// ties with sort.Strings on the step id, this breaks ties on original
// list position so that reordering a workflow's steps (without changing
// its dependency edges) changes its plan.
func planOrder(steps []WorkflowStep) []string {
	indexOf := make(map[string]int, len(steps))
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))

	for i, s := range steps {
		indexOf[s.ID] = i
		if _, ok := indegree[s.ID]; !ok {
			indegree[s.ID] = 0
		}
	}
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			indegree[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	done := make(map[string]bool, len(steps))
	order := make([]string, 0, len(steps))

	for len(order) < len(steps) {
		picked := ""
		pickedIdx := -1
		for _, s := range steps {
			if done[s.ID] || indegree[s.ID] != 0 {
				continue
			}
			if pickedIdx == -1 || indexOf[s.ID] < pickedIdx {
				picked = s.ID
				pickedIdx = indexOf[s.ID]
			}
		}
		if pickedIdx == -1 {
			// Validate rejects cycles before planning is ever reached;
			// this would only trigger on a programming error.
			break
		}
		done[picked] = true
		order = append(order, picked)
		for _, dependent := range dependents[picked] {
			indegree[dependent]--
		}
	}

	return order
}
