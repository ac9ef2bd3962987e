package taint

import (
	"testing"

	"github.com/purs3lab/Argus/pkg/ir"
)

func TestObjectRootFollowsFirstParentOnly(t *testing.T) {
	var arena Arena
	root := arena.New("github.event.issue.title", "context", InWorkflow, nil)
	other := arena.New("steps.x.outputs.y", "output", InWorkflow, nil)
	merged := arena.New("env.FOO", "env", InWorkflow, []*Object{root, other})

	if got := merged.Root(); got != root {
		t.Fatalf("Root() = %v, want the first parent %v", got, root)
	}
	path := merged.Path()
	want := []string{"github.event.issue.title", "env.FOO"}
	if len(path) != len(want) || path[0] != want[0] || path[1] != want[1] {
		t.Fatalf("Path() = %v, want %v", path, want)
	}
}

func TestIsSafeEnv(t *testing.T) {
	if !IsSafeEnv("GITHUB_SHA") {
		t.Error("GITHUB_SHA should be a safe env var")
	}
	if IsSafeEnv("GITHUB_EVENT_ISSUE_TITLE") {
		t.Error("GITHUB_EVENT_ISSUE_TITLE is not in the safe list")
	}
}

func TestHardcodedSink(t *testing.T) {
	input, kind, ok := HardcodedSink("actions/github-script")
	if !ok || input != "script" || kind != ArgToSink {
		t.Fatalf("HardcodedSink(actions/github-script) = %q, %v, %v", input, kind, ok)
	}
	if _, _, ok := HardcodedSink("actions/checkout"); ok {
		t.Fatal("actions/checkout should have no hardcoded sink")
	}
}

func newTestEngine() *Engine {
	wf := &ir.WorkflowIR{}
	e := NewEngine(wf, nil, nil)
	e.st = newState()
	e.currentTaskGroup = "build"
	e.currentTask = "step1"
	return e
}

func TestIsOutputTaintedSplitsOnEquals(t *testing.T) {
	e := newTestEngine()
	obj := e.arena.New("result", "output", InWorkflow, nil)
	obj.IsRoot = true
	e.TaintOutput(obj)

	got := e.IsOutputTainted("step1.outputs.result == 'success'")
	if len(got) != 1 || got[0] != obj {
		t.Fatalf("IsOutputTainted with == suffix = %v, want [%v]", got, obj)
	}

	// a right-hand literal alone must never be treated as tainted.
	if got := e.IsOutputTainted("'success' == step1.outputs.result"); len(got) != 0 {
		t.Fatalf("IsOutputTainted should only resolve the left-hand side, got %v", got)
	}
}

// TestCheckPackedDataRaisesOnContextSource checks that a cataloged
// context reference raises an alert, and that its kind is derived from
// the source's own root rather than the AlertKind a caller happened to
// pass: an arg whose value traces back to a context reference still
// reports as ContextToSink, matching HardcodedSink's github-script
// input and the reusable-workflow arg-relay case (spec scenarios 4/5).
func TestCheckPackedDataRaisesOnContextSource(t *testing.T) {
	e := newTestEngine()
	data := []PackedDatum{{
		Name: "arg1",
		Kind: "arg",
		CIVars: []CIVar{
			{Name: "event.issue.title", Kind: "context"},
		},
	}}
	e.CheckPackedData(data, ArgToSink)
	if len(e.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(e.Alerts))
	}
	if e.Alerts[0].Kind != ContextToSink {
		t.Errorf("alert kind = %v, want ContextToSink", e.Alerts[0].Kind)
	}
}

// TestCheckPackedDataSkipsUncatalogedContext covers the gating rule
// sourceForContext implements: a context reference not in the
// taint-source catalog (e.g. github.repository) is never a source, even
// though it's still a "context" CIVar.
func TestCheckPackedDataSkipsUncatalogedContext(t *testing.T) {
	e := newTestEngine()
	data := []PackedDatum{{
		Name: "arg1",
		Kind: "arg",
		CIVars: []CIVar{
			{Name: "repository", Kind: "context"},
		},
	}}
	e.CheckPackedData(data, ArgToSink)
	if len(e.Alerts) != 0 {
		t.Fatalf("expected no alerts for an uncataloged context reference, got %d", len(e.Alerts))
	}
}

// TestCheckPackedDataSkipsSecrets covers the review's core gating fix:
// secrets.* is never itself a taint source, matching the original
// analyzer's is_tainted_variable, which has no "secret" branch at all.
func TestCheckPackedDataSkipsSecrets(t *testing.T) {
	e := newTestEngine()
	data := []PackedDatum{{
		Name: "arg1",
		Kind: "arg",
		CIVars: []CIVar{
			{Name: "MY_TOKEN", Kind: "secret"},
		},
	}}
	e.CheckPackedData(data, ArgToSink)
	if len(e.Alerts) != 0 {
		t.Fatalf("expected no alerts for a secrets.* reference, got %d", len(e.Alerts))
	}
}

func TestCheckPackedDataSkipsUntaintedEnv(t *testing.T) {
	e := newTestEngine()
	data := []PackedDatum{{
		Name: "arg1",
		Kind: "arg",
		CIVars: []CIVar{
			{Name: "SOME_VAR", Kind: "env"},
		},
	}}
	e.CheckPackedData(data, ArgToSink)
	if len(e.Alerts) != 0 {
		t.Fatalf("expected no alerts for an env var never tainted, got %d", len(e.Alerts))
	}
}
