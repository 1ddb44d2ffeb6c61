package expr

import "testing"

func TestSubstitute(t *testing.T) {
	vars := map[string]interface{}{
		"name": "world",
		"stepA": map[string]interface{}{
			"result": "ok",
		},
	}

	cases := []struct {
		tmpl string
		want string
	}{
		{"hello {{name}}", "hello world"},
		{"hello $name", "hello world"},
		{"step said {{stepA.result}}", "step said ok"},
		{"untouched {{unknown}}", "untouched {{unknown}}"},
	}

	for _, c := range cases {
		if got := Substitute(c.tmpl, vars); got != c.want {
			t.Errorf("Substitute(%q) = %q, want %q", c.tmpl, got, c.want)
		}
	}
}

func TestEvaluateBool(t *testing.T) {
	vars := map[string]interface{}{
		"count": 3,
		"name":  "alice",
		"ready": true,
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"true", true},
		{"false", false},
		{"!false", true},
		{"$count == 3", true},
		{"$count != 3", false},
		{"$count > 2 && $count < 10", true},
		{"$name == 'alice'", true},
		{"$name == 'bob' || $ready == true", true},
		{"($count >= 3) && !($name == 'bob')", true},
	}

	for _, c := range cases {
		got, err := EvaluateBool(c.expr, vars)
		if err != nil {
			t.Errorf("EvaluateBool(%q) error: %v", c.expr, err)
			continue
		}
		if got != c.want {
			t.Errorf("EvaluateBool(%q) = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestEvaluateBool_UndefinedVariableErrors(t *testing.T) {
	_, err := EvaluateBool("$missing == 1", map[string]interface{}{})
	if err == nil {
		t.Fatal("expected error for undefined variable")
	}
}

func TestEvaluateBool_NonBooleanResultErrors(t *testing.T) {
	_, err := EvaluateBool("1", map[string]interface{}{})
	if err == nil {
		t.Fatal("expected error for non-boolean expression")
	}
}
