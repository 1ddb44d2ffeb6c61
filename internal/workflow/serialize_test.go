package workflow

import (
	"reflect"
	"testing"
	"time"

	"github.com/aosanya/agentorch/internal/loop"
	"github.com/aosanya/agentorch/internal/retry"
)

// TestSerializeRoundTrip is testable property #6: deserialize(serialize(W))
// equals W by value. Map values are restricted to JSON-native types
// (string, bool, float64) since round-tripping through JSON normalizes
// numeric types to float64.
func TestSerializeRoundTrip(t *testing.T) {
	retryPolicy := retry.Policy{MaxRetryCount: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0, RetryableExceptions: []string{"TimeoutException"}}
	loopDef := loop.Definition{Type: loop.ForEach, Collection: "items", IteratorVariable: "item", IndexVariable: "idx", MaxIterations: 10}

	wf := &Workflow{
		ID:          "w1",
		Name:        "round-trip",
		Description: "a workflow used to test serialization",
		Variables: []VariableDefinition{
			{Name: "target", Type: VarString, Required: true},
			{Name: "count", Type: VarNumber, Required: false, Default: 3.0},
		},
		Steps: []WorkflowStep{
			{ID: "A", Name: "step a", Type: StepTask, Command: "run", Parameters: map[string]interface{}{"k": "a"}},
			{ID: "B", Name: "step b", Type: StepCondition, Condition: "$count > 1", DependsOn: []string{"A"}},
			{ID: "C", Name: "step c", Type: StepLoop, Loop: &loopDef, DependsOn: []string{"B"}, Retry: &retryPolicy},
		},
	}

	data, err := Serialize(wf)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	if !reflect.DeepEqual(wf, got) {
		t.Fatalf("round trip mismatch:\noriginal: %+v\ngot:      %+v", wf, got)
	}
}

func TestSerializeRoundTrip_EmptyWorkflow(t *testing.T) {
	wf := &Workflow{ID: "w1", Name: "empty"}
	data, err := Serialize(wf)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !reflect.DeepEqual(wf, got) {
		t.Fatalf("round trip mismatch: %+v vs %+v", wf, got)
	}
}
