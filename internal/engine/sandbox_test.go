package engine

import (
	"testing"
)

func evalNumber(t *testing.T, src string) float64 {
	t.Helper()
	e := quietEngine()
	if !e.LoadFunction(src) {
		t.Fatalf("LoadFunction failed: %v", e.LastLoadError())
	}
	res := e.Calculate(map[string]any{})
	if !res.Success {
		t.Fatalf("Calculate failed: %s", res.Error)
	}
	return res.Cumacs
}

func TestSandboxBuiltins(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want float64
	}{
		{"sum", "sum([1, 2, 3])", 6},
		{"sum with start", "sum([0.5, 0.5], 1)", 2},
		{"round half even", "round(2.5)", 2},
		{"round digits", "round(1.2345, 2)", 1.23},
		{"pow int", "pow(2, 10)", 1024},
		{"pow float", "pow(4, 0.5)", 2},
		{"abs", "abs(-3)", 3},
		{"min max", "min(4, 9) + max(4, 9)", 13},
		{"len range", "len(range(5))", 5},
		{"conversions", "int('7') + float('0.5')", 7.5},
		{"sorted", "sorted([3, 1, 2])[0]", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evalNumber(t, "def f():\n    return "+tt.expr+"\n")
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSandboxNames(t *testing.T) {
	s := DefaultSandbox()
	names := map[string]bool{}
	for _, n := range s.Names() {
		names[n] = true
	}

	for _, want := range []string{"abs", "min", "max", "sum", "round", "pow", "len", "int", "float", "str", "bool", "list", "dict", "range"} {
		if !names[want] {
			t.Errorf("Expected %s in sandbox", want)
		}
	}
	for _, banned := range []string{"print", "load", "getattr", "dir", "fail"} {
		if names[banned] {
			t.Errorf("Did not expect %s in sandbox", banned)
		}
	}
}

func TestSandboxBuilderCustomBuiltin(t *testing.T) {
	sandbox := NewSandboxBuilder().
		WithUniverse("None", "True", "False").
		WithBuiltin("pow", builtinPow).
		Build()

	if !sandbox.IsPredeclared("pow") {
		t.Error("Expected pow to be predeclared")
	}
	if sandbox.IsUniversal("len") {
		t.Error("Expected len to be excluded")
	}

	loader := NewLoader(sandbox, LoaderOptions{Strict: true})
	if _, err := loader.Load("def f(x):\n    return len(x)\n"); err == nil {
		t.Error("Expected load to fail without len")
	}
	if _, err := loader.Load("def f(x):\n    return pow(x, 2)\n"); err != nil {
		t.Errorf("Expected load to succeed with pow, got %v", err)
	}
}
