package taint

import (
	"testing"

	"github.com/purs3lab/Argus/pkg/ast"
	"github.com/purs3lab/Argus/pkg/ir"
)

// buildAndRun converts wf to IR and runs it through a fresh Engine,
// wiring the given summary resolvers.
func buildAndRun(t *testing.T, wf *ast.Workflow, resolveAction func(*ir.ActionTask) (*ActionSummary, error), resolveWorkflow func(*ir.ReusableTaskGroup) (*WorkflowSummary, error)) *Engine {
	t.Helper()
	wfIR, err := ir.BuildWorkflowIR(wf)
	if err != nil {
		t.Fatalf("BuildWorkflowIR: %v", err)
	}
	e := NewEngine(wfIR, resolveAction, resolveWorkflow)
	e.RunWorkflow()
	return e
}

func countKind(alerts []Alert, kind AlertKind) int {
	n := 0
	for _, a := range alerts {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

func runStep(id, command string) *ast.Step {
	return &ast.Step{ID: id, Exec: &ast.ExecRun{Run: &ast.String{Value: command}}}
}

// Scenario 1: a direct context reference inside a `run:` step is a
// straight-line taint flow into the shell sink.
func TestScenarioDirectContextToShell(t *testing.T) {
	wf := &ast.Workflow{
		Path: "scenario1.yml",
		Jobs: map[string]*ast.Job{
			"build": {
				ID:    "build",
				Steps: []*ast.Step{runStep("step1", `echo "${{ github.event.issue.title }}"`)},
			},
		},
	}
	e := buildAndRun(t, wf, nil, nil)

	if got := countKind(e.Alerts, ContextToSink); got != 1 {
		t.Fatalf("expected 1 ContextToSink alert, got %d (%+v)", got, e.Alerts)
	}
}

// Scenario 2: a tainted value exported via $GITHUB_ENV in one job is
// read back as a bare shell variable in a dependent job, and the sink
// alert's root still traces to the original context source.
func TestScenarioEnvPropagationAcrossJobs(t *testing.T) {
	wf := &ast.Workflow{
		Path: "scenario2.yml",
		Jobs: map[string]*ast.Job{
			"a": {
				ID:    "a",
				Steps: []*ast.Step{runStep("export", `echo "X=${{ github.event.pull_request.body }}" >> $GITHUB_ENV`)},
			},
			"b": {
				ID:    "b",
				Needs: []string{"a"},
				Steps: []*ast.Step{runStep("consume", `eval "$X"`)},
			},
		},
	}
	e := buildAndRun(t, wf, nil, nil)

	var found *Alert
	for i, a := range e.Alerts {
		if a.Kind == ContextToSink && a.Location == "b/consume" {
			found = &e.Alerts[i]
		}
	}
	if found == nil {
		t.Fatalf("expected a ContextToSink alert at b/consume, got %+v", e.Alerts)
	}
	root := found.Source.Root()
	if root.Name != "event.pull_request.body" {
		t.Errorf("root = %q, want event.pull_request.body", root.Name)
	}
}

// Scenario 3: reading a GitHub-provided, non-attacker-controlled env var
// raises nothing, even though it's a bare $UPPER_NAME read.
func TestScenarioSafeEnvRead(t *testing.T) {
	wf := &ast.Workflow{
		Path: "scenario3.yml",
		Jobs: map[string]*ast.Job{
			"build": {
				ID:    "build",
				Steps: []*ast.Step{runStep("step1", `echo $GITHUB_SHA`)},
			},
		},
	}
	e := buildAndRun(t, wf, nil, nil)

	if len(e.Alerts) != 0 {
		t.Fatalf("expected no alerts reading a safe env var, got %+v", e.Alerts)
	}
}

// Scenario 4: a reusable-workflow call passes a context-derived value as
// a `with:` argument. Even though the callee's summary reports its own
// internal finding as an ArgToSink, the caller-side alert must report
// ContextToSink, since the argument's own root is a context reference.
func TestScenarioReusableWorkflowArgRelay(t *testing.T) {
	wf := &ast.Workflow{
		Path: "scenario4.yml",
		Jobs: map[string]*ast.Job{
			"call": {
				ID: "call",
				WorkflowCall: &ast.WorkflowCall{
					Uses: &ast.String{Value: "./.github/workflows/callee.yml"},
					Inputs: map[string]*ast.Input{
						"script": {Name: "script", Value: &ast.String{Value: "${{ github.event.comment.body }}"}},
					},
				},
			},
		},
	}
	resolveWorkflow := func(*ir.ReusableTaskGroup) (*WorkflowSummary, error) {
		return &WorkflowSummary{ArgToSink: []PackedDatum{{Name: "script"}}}, nil
	}
	e := buildAndRun(t, wf, nil, resolveWorkflow)

	if got := countKind(e.Alerts, ContextToSink); got == 0 {
		t.Fatalf("expected at least one ContextToSink alert for the relayed arg, got %+v", e.Alerts)
	}
	if got := countKind(e.Alerts, ArgToSink); got != 0 {
		t.Errorf("expected no bare ArgToSink alert once the root is known to be a context source, got %d", got)
	}
}

// Scenario 5: a context-derived value passed into a hardcoded sink
// input (actions/github-script's "script") still reports as
// ContextToSink, not the table's literal ArgToSink, since the alert
// kind is derived from the argument's own root.
func TestScenarioHardcodedSinkReportsContextRoot(t *testing.T) {
	wf := &ast.Workflow{
		Path: "scenario5.yml",
		Jobs: map[string]*ast.Job{
			"build": {
				ID: "build",
				Steps: []*ast.Step{{
					ID: "step1",
					Exec: &ast.ExecAction{
						Uses: &ast.String{Value: "actions/github-script@v7"},
						Inputs: map[string]*ast.Input{
							"script": {Name: "script", Value: &ast.String{Value: "${{ github.event.issue.title }}"}},
						},
					},
				}},
			},
		},
	}
	e := buildAndRun(t, wf, nil, nil)

	if got := countKind(e.Alerts, ContextToSink); got == 0 {
		t.Fatalf("expected at least one ContextToSink alert for the github-script sink, got %+v", e.Alerts)
	}
	if got := countKind(e.Alerts, ArgToSink); got != 0 {
		t.Errorf("expected no bare ArgToSink alert for a context-rooted script input, got %d", got)
	}
}

// Scenario 6: a composite action's own arg-to-output laundering
// (reported in its summary) taints the caller's step output; a later
// step in the same job that reads that output in a shell sink still
// reports the original context root, not a fresh, unrooted finding.
func TestScenarioOutputLaundering(t *testing.T) {
	wf := &ast.Workflow{
		Path: "scenario6.yml",
		Jobs: map[string]*ast.Job{
			"build": {
				ID: "build",
				Steps: []*ast.Step{
					{
						ID: "stepA",
						Exec: &ast.ExecAction{
							Uses: &ast.String{Value: "org/launder-action@v1"},
							Inputs: map[string]*ast.Input{
								"x": {Name: "x", Value: &ast.String{Value: "${{ github.event.comment.body }}"}},
							},
						},
					},
					runStep("stepB", `echo "${{ steps.stepA.outputs.y }}"`),
				},
			},
		},
	}
	resolveAction := func(*ir.ActionTask) (*ActionSummary, error) {
		return &ActionSummary{ArgToOutput: []PackedDatum{{Name: "x", TaintName: "y"}}}, nil
	}
	e := buildAndRun(t, wf, resolveAction, nil)

	var found *Alert
	for i, a := range e.Alerts {
		if a.Kind == ContextToSink && a.Location == "build/stepB" {
			found = &e.Alerts[i]
		}
	}
	if found == nil {
		t.Fatalf("expected a ContextToSink alert at build/stepB, got %+v", e.Alerts)
	}
	root := found.Source.Root()
	if root.Name != "event.comment.body" {
		t.Errorf("root = %q, want event.comment.body", root.Name)
	}
}
