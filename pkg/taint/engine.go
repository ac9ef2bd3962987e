package taint

import (
	"strings"

	"github.com/purs3lab/Argus/pkg/expressions"
	"github.com/purs3lab/Argus/pkg/ir"
	"github.com/purs3lab/Argus/pkg/log"
)

var engineLogger = log.Get("taint")

// ScopeLevel identifies which of the three nested scopes a piece of
// engine state belongs to: the whole workflow, the current job
// (task group), or the current step (task).
type ScopeLevel uint8

const (
	WorkflowLevel ScopeLevel = iota
	TaskGroupLevel
	TaskLevel
)

// AlertKind names the category of a raised alert; the numeric assignment
// is also the SARIF rule index used by pkg/report for action/composite
// analysis (see that package for the workflow-level renumbering).
type AlertKind uint8

const (
	ArgToSink AlertKind = iota
	EnvToSink
	ContextToSink
	ArgToOutput
	ArgToEnv
	ContextToOutput
	ContextToEnv
	ReusableWorkflowTaintedOutput
)

func (k AlertKind) String() string {
	names := [...]string{
		"ArgToSink", "EnvToSink", "ContextToSink", "ArgToOutput",
		"ArgToEnv", "ContextToOutput", "ContextToEnv",
		"ReusableWorkflowTaintedOutput",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Severity of a raised alert, derived from the CI variable (or sink)
// that produced it.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Alert is one finding: a tainted Object reaching a sink.
type Alert struct {
	Kind     AlertKind
	Severity Severity
	Location string
	Sink     *Object
	Source   *Object
}

// hardcodedSinks lists actions whose specific inputs are always an exec
// sink regardless of what the action's own summary says, because the
// action (e.g. actions/github-script) evaluates its input as code.
var hardcodedSinks = map[string][]struct {
	InputName string
	Kind      AlertKind
}{
	"actions/github-script": {{InputName: "script", Kind: ArgToSink}},
}

// safeGithubEnv lists GitHub-provided environment variable names that
// are never considered a taint source when read via `env.NAME` or
// `$NAME`, even though they are populated from repository/run metadata,
// because their values are controlled by the platform, not a PR author.
var safeGithubEnv = map[string]bool{
	"GITHUB_ACTION":            true,
	"GITHUB_ACTION_PATH":       true,
	"GITHUB_ACTION_REPOSITORY": true,
	"GITHUB_ACTIONS":           true,
	"GITHUB_ACTOR":             true,
	"GITHUB_API_URL":           true,
	"GITHUB_BASE_REF":          true,
	"GITHUB_ENV":               true,
	"GITHUB_EVENT_NAME":        true,
	"GITHUB_EVENT_PATH":        true,
	"GITHUB_GRAPHQL_URL":       true,
	"GITHUB_JOB":               true,
	"GITHUB_OUTPUT":            true,
	"GITHUB_PATH":              true,
	"GITHUB_REF":               true,
	"GITHUB_REPOSITORY":        true,
	"GITHUB_REPOSITORY_OWNER":  true,
	"GITHUB_RUN_ID":            true,
	"GITHUB_RUN_NUMBER":        true,
	"GITHUB_SERVER_URL":        true,
	"GITHUB_SHA":               true,
	"GITHUB_WORKFLOW":          true,
	"GITHUB_WORKSPACE":         true,
}

// IsSafeEnv reports whether name is a platform-controlled environment
// variable excluded from env-to-sink / env-to-output flows.
func IsSafeEnv(name string) bool { return safeGithubEnv[name] }

// ActionSummary is the recursive-analysis contract exposed by an
// analyzed action (composite or JS): which of its inputs/env/contexts
// reach a sink, an output, or its own env, so a caller doesn't need to
// re-walk the callee's steps.
type ActionSummary struct {
	ArgToSink     []PackedDatum
	EnvToSink     []PackedDatum
	ContextToSink []PackedDatum

	ArgToOutput     []PackedDatum
	EnvToOutput     []PackedDatum
	ContextToOutput []PackedDatum

	ArgToEnv     []PackedDatum
	EnvToEnv     []PackedDatum
	ContextToEnv []PackedDatum
}

// WorkflowSummary is the narrower contract exposed by an analyzed
// reusable workflow: only sink and output flows are meaningful, since a
// reusable workflow has no enclosing shell environment to poison.
type WorkflowSummary struct {
	ArgToSink     []PackedDatum
	ContextToSink []PackedDatum

	ArgToOutput     []PackedDatum
	ContextToOutput []PackedDatum
}

// state is the taint state of one run. Env, arg and input taint are each
// kept in a single list for the whole run: the ScopeLevel passed when
// tainting is not recorded, and nothing is cleared when a job or step
// ends, so env taint from one job stays visible to later jobs. Outputs
// are keyed by task group and task, job outputs by task group.
type state struct {
	env          []*Object
	args         []*Object
	inputs       []*Object
	outputs      map[string]map[string][]*Object // task group -> task -> outputs
	jobOutputs   map[string][]*Object             // task group -> outputs
}

func newState() *state {
	return &state{outputs: map[string]map[string][]*Object{}, jobOutputs: map[string][]*Object{}}
}

// Engine walks a workflow's ordered task groups, propagating taint
// through env/args/inputs/outputs and raising an Alert whenever a
// tainted value reaches a sink.
type Engine struct {
	arena Arena

	wf *ir.WorkflowIR

	currentTaskGroup string
	currentTask      string

	st *state

	Alerts []Alert

	// ArgToOutput, ContextToOutput, ArgToEnv, and ContextToEnv are
	// populated once, at the end of RunWorkflow, by declaredOutputFlows
	// and envFlows. They report propagation into this run's own
	// declared outputs/environment by root identity, independent of
	// whatever sink alerts happened to be raised along the way.
	ArgToOutput     []PackedDatum
	ContextToOutput []PackedDatum
	ArgToEnv        []PackedDatum
	ContextToEnv    []PackedDatum

	// resolveActionSummary and resolveWorkflowSummary are supplied by the
	// caller (cmd/argus's summaryResolver) to recursively analyze an
	// action/reusable-workflow reference and obtain its summary, so the
	// engine itself never performs I/O.
	resolveActionSummary   func(at *ir.ActionTask) (*ActionSummary, error)
	resolveWorkflowSummary func(rtg *ir.ReusableTaskGroup) (*WorkflowSummary, error)
}

// NewEngine constructs an Engine for wf. resolveAction/resolveWorkflow
// may be nil, in which case action/reusable-workflow calls are treated
// as opaque (no summary, no propagation through them).
func NewEngine(wf *ir.WorkflowIR, resolveAction func(*ir.ActionTask) (*ActionSummary, error), resolveWorkflow func(*ir.ReusableTaskGroup) (*WorkflowSummary, error)) *Engine {
	return &Engine{
		wf:                     wf,
		st:                     newState(),
		resolveActionSummary:   resolveAction,
		resolveWorkflowSummary: resolveWorkflow,
	}
}

func (e *Engine) raise(kind AlertKind, sev Severity, sink, source *Object) {
	a := Alert{
		Kind:     kind,
		Severity: sev,
		Location: e.currentTaskGroup + "/" + e.currentTask,
		Sink:     sink,
		Source:   source,
	}
	engineLogger.Infof("alert raised: %s at %s", kind, a.Location)
	e.Alerts = append(e.Alerts, a)
}

// taintContext creates a root Object for a cataloged context
// reference (e.g. `github.event.issue.title`), since such a reference is
// itself the ultimate source of taint, not something propagated from
// elsewhere.
func (e *Engine) taintContext(name string, loc Location) *Object {
	return e.arena.New(name, "context", loc, nil)
}

// TaintEnv adds obj to the run's single set of tainted environment
// variables; level is accepted but not used to scope the entry.
func (e *Engine) TaintEnv(obj *Object, level ScopeLevel) {
	e.st.env = append(e.st.env, obj)
}

// TaintArg records obj as a tainted argument passed to the current step.
func (e *Engine) TaintArg(obj *Object) { e.st.args = append(e.st.args, obj) }

// TaintOutput records obj as a tainted `$GITHUB_OUTPUT`/`set-output`
// write made by the current task, scoped to the current task group.
func (e *Engine) TaintOutput(obj *Object) {
	tg := e.st.outputs[e.currentTaskGroup]
	if tg == nil {
		tg = map[string][]*Object{}
		e.st.outputs[e.currentTaskGroup] = tg
	}
	tg[e.currentTask] = append(tg[e.currentTask], obj)
}

// TaintJobOutput records obj as a tainted job-level output.
func (e *Engine) TaintJobOutput(obj *Object) {
	e.st.jobOutputs[e.currentTaskGroup] = append(e.st.jobOutputs[e.currentTaskGroup], obj)
}

// TaintInput records obj as one of this run's declared inputs.
func (e *Engine) TaintInput(obj *Object) { e.st.inputs = append(e.st.inputs, obj) }

// IsInputTainted reports whether name matches one of this run's
// declared inputs.
func (e *Engine) IsInputTainted(name string) *Object {
	for _, o := range e.st.inputs {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// seedInputs unconditionally roots every declared input as a tainted
// "input" Object, mirroring the original analyzer's "maketaint" pass at
// the top of run_workflow/run_task_group: every input is treated as
// potentially attacker-controlled regardless of whether the caller's
// corresponding argument actually carried taint, since a reusable
// workflow/action must be analyzed independently of any one caller.
func (e *Engine) seedInputs(names []string) {
	for _, name := range names {
		e.TaintInput(e.arena.New(name, "input", e.currentLocation(), nil))
	}
}

// IsEnvTainted reports whether name matches a tainted env Object
// currently in scope, returning its Object if so.
func (e *Engine) IsEnvTainted(name string) *Object {
	if IsSafeEnv(name) {
		return nil
	}
	for _, o := range e.st.env {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// IsArgTainted reports whether name matches a tainted argument Object
// currently in scope.
func (e *Engine) IsArgTainted(name string) *Object {
	for _, o := range e.st.args {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// IsOutputTainted resolves a step-output reference whose `steps.` prefix
// is already removed - `<id>.outputs.<name>`, `<id>.outputs` (every
// tainted output of step <id>), or a bare `<name>` (looked up among the
// current step's outputs) - against the current task group's tainted
// outputs. It preserves the upstream analyzer's `A==B` split
// quirk: a comparison expression like `steps.x.outputs.y == 'z'` is
// resolved by only ever looking at the left-hand side, so the
// right-hand literal never affects whether the reference is tainted.
func (e *Engine) IsOutputTainted(ref string) []*Object {
	if idx := strings.Index(ref, "=="); idx != -1 {
		ref = strings.TrimSpace(ref[:idx])
	}
	parts := strings.Split(ref, ".")

	tg, ok := e.st.outputs[e.currentTaskGroup]
	if !ok {
		return nil
	}

	switch len(parts) {
	case 0, 1:
		var out []*Object
		for _, o := range tg[e.currentTask] {
			if o.Name == parts[0] {
				out = append(out, o)
			}
		}
		return out
	case 2:
		taskID := parts[0]
		return tg[taskID]
	default:
		taskID, outputName := parts[0], parts[len(parts)-1]
		for _, o := range tg[taskID] {
			if o.Name == outputName {
				return []*Object{o}
			}
		}
		return nil
	}
}

// IsJobOutputTainted resolves a `needs.<job>.outputs.<name>` reference
// against recorded job-level outputs.
func (e *Engine) IsJobOutputTainted(jobID, outputName string) *Object {
	for _, o := range e.st.jobOutputs[jobID] {
		if o.Name == outputName {
			return o
		}
	}
	return nil
}

// TaintPackedData applies taint propagation to a batch of packed data:
// for each datum whose CIVars resolve to at least one tainted/source
// object, a new Object is created with those as parents and recorded
// into outputKind's scope (env, arg, output, job_output, or context
// passthrough for workflow-level outputs).
func (e *Engine) TaintPackedData(data []PackedDatum, outputKind string, level ScopeLevel) []*Object {
	var results []*Object
	for _, item := range data {
		sources := e.sourcesFor(item)
		if len(sources) == 0 {
			continue
		}
		obj := e.arena.New(item.displayName(), outputKind, e.currentLocation(), sources)
		switch outputKind {
		case "env":
			e.TaintEnv(obj, level)
		case "arg":
			e.TaintArg(obj)
		case "output":
			e.TaintOutput(obj)
		case "job_output":
			e.TaintJobOutput(obj)
		case "input":
			e.TaintInput(obj)
		case "wf_output":
			results = append(results, obj)
		}
	}
	return results
}

// sourceForContext resolves a single "context" CIVar, mirroring the
// original analyzer's is_tainted_variable dispatch order (taintengine.py
// is_tainted_variable, ported from is_CIvar_tainted/is_CIvar_tainted_object
// in its CI plugin): a context reference is a source only if it matches
// the fixed taint-source catalog (classify.go's IsTaintSource) or the
// whole-object catalog (IsObjectTaintSource). `secrets.*` is never a
// source here - neither catalog has a "secret" branch in the original,
// since a secret's value itself isn't attacker-controlled. A
// `event.inputs.NAME` reference (workflow_dispatch's own echo of its
// inputs back through the event context) falls through to the same
// input taint state as a direct `inputs.NAME` reference.
func (e *Engine) sourceForContext(v CIVar) *Object {
	ref := expressions.Reference{Name: v.Name, Kind: "context"}
	if _, ok := expressions.IsTaintSource(ref); ok {
		return e.taintContext(v.Name, e.currentLocation())
	}
	if _, ok := expressions.IsObjectTaintSource(ref); ok {
		return e.taintContext(v.Name, e.currentLocation())
	}
	if rest, ok := strings.CutPrefix(v.Name, "event.inputs."); ok {
		return e.IsInputTainted(rest)
	}
	return nil
}

// sourcesFor resolves a packed datum's CIVars into their current taint
// Objects. A context reference counts only when it passes the catalog
// gate in sourceForContext; `secrets.*` is never itself a source;
// env/arg/output/input references count only if currently tainted.
func (e *Engine) sourcesFor(item PackedDatum) []*Object {
	var sources []*Object
	for _, v := range item.CIVars {
		switch v.Kind {
		case "context":
			if o := e.sourceForContext(v); o != nil {
				sources = append(sources, o)
			}
		case "secret":
			// secrets are write-only from the analyzer's perspective: a
			// workflow author controls the secret name, never its value,
			// so referencing secrets.X is never itself a taint source.
		case "env":
			if o := e.IsEnvTainted(v.Name); o != nil {
				sources = append(sources, o)
			}
		case "steps":
			sources = append(sources, e.IsOutputTainted(v.Name)...)
		case "needs", "jobs":
			parts := strings.SplitN(v.Name, ".", 2)
			if len(parts) == 2 {
				if o := e.IsJobOutputTainted(parts[0], strings.TrimPrefix(parts[1], "outputs.")); o != nil {
					sources = append(sources, o)
				}
			}
		case "inputs":
			if o := e.IsInputTainted(v.Name); o != nil {
				sources = append(sources, o)
			}
		}
	}
	return sources
}

// sinkAlertKindFor derives the specific ArgToSink/EnvToSink/ContextToSink
// alert kind from a tainted value's ultimate root, so a CheckPackedData
// caller only needs to say "this reaches a sink" - which of the three
// fires follows the data's actual provenance, not which call site
// happened to check it. This is what lets a hardcoded sink
// (actions/github-script's "script" input, nominally an ArgToSink entry)
// still report as ContextToSink when the value passed in traces back to
// a raw context reference, matching the original analyzer raising its
// alert off the tainted CI variable's own type rather than the sink's.
func sinkAlertKindFor(root *Object) AlertKind {
	switch root.Kind {
	case "context":
		return ContextToSink
	case "env":
		return EnvToSink
	default:
		return ArgToSink
	}
}

// CheckPackedData checks each datum in data for taint and, if tainted,
// raises an alert, using the highest severity among its contributing CI
// variables. kind is honored as-is for any caller checking a specific
// non-sink-family alert; for the Arg/Env/ContextToSink family it is only
// a default, overridden by sinkAlertKindFor's root-derived kind.
func (e *Engine) CheckPackedData(data []PackedDatum, kind AlertKind) {
	for _, item := range data {
		sources := e.sourcesFor(item)
		if len(sources) == 0 {
			continue
		}
		sinkObj := e.arena.New(item.displayName(), item.Kind, e.currentLocation(), sources)
		sinkObj.SinkLocation = e.currentTaskGroup + "/" + e.currentTask
		effective := kind
		switch kind {
		case ArgToSink, EnvToSink, ContextToSink:
			effective = sinkAlertKindFor(sources[0].Root())
		}
		e.raise(effective, e.severityOf(sources), sinkObj, sources[0])
	}
}

// declaredOutputFlows checks this run's own declared outputs (a
// reusable workflow's `on.workflow_call.outputs:`, or a synthesized
// composite action's `outputs:`) against final taint state, raising an
// ArgToOutput or ContextToOutput alert per tainted output - mirroring
// the original's end-of-run check_packed_data(outputs, ...,
// alert_type="OutputTainted") call - and returns the same flows bucketed
// by root Kind, matching pack_task_group_results/pack_workflow_results'
// ArgToOutput-vs-ContextToOutput split by root_node.type.
func (e *Engine) declaredOutputFlows() (argToOutput, contextToOutput []PackedDatum) {
	for name, v := range e.wf.DeclaredOutputs {
		if v == nil {
			continue
		}
		datum := PackedDatum{Name: name, Kind: "output", Value: v.Value, CIVars: civarsFromString(v.Value)}
		sources := e.sourcesFor(datum)
		if len(sources) == 0 {
			continue
		}
		root := sources[0].Root()
		sinkObj := e.arena.New(name, "output", e.currentLocation(), sources)
		kind, flows := ContextToOutput, &contextToOutput
		if root.Kind == "input" {
			kind, flows = ArgToOutput, &argToOutput
		}
		e.raise(kind, e.severityOf(sources), sinkObj, sources[0])
		*flows = append(*flows, PackedDatum{Name: root.Name, TaintName: name})
	}
	return
}

// envFlows raises an ArgToEnv or ContextToEnv alert for every env var
// still tainted at the end of this run, bucketed by its root's Kind,
// for a composite action's contract: composite steps run inside the
// caller's own job, so a $GITHUB_ENV write the action made is still in
// scope when it returns.
func (e *Engine) envFlows() (argToEnv, contextToEnv []PackedDatum) {
	for _, o := range e.st.env {
		root := o.Root()
		kind, flows := ContextToEnv, &contextToEnv
		if root.Kind == "input" {
			kind, flows = ArgToEnv, &argToEnv
		}
		e.raise(kind, e.severityOf([]*Object{o}), o, root)
		*flows = append(*flows, PackedDatum{Name: root.Name, TaintName: o.Name})
	}
	return
}

// CheckEnvReads raises a sink alert for each name in reads that
// currently matches a tainted environment variable, covering a shell
// script's direct `$UPPER_NAME` substitutions (as opposed to a
// `${{ env.NAME }}` expression reference, which CheckPackedData already
// handles via a datum's CIVars). The alert kind is derived from the
// env var's ultimate root exactly as CheckPackedData does: an env var
// whose value traces back to a context reference (e.g. one exported via
// $GITHUB_ENV from `${{ github.event.pull_request.body }}`) reports as
// ContextToSink, not EnvToSink, since EnvToSink is reserved for taint
// that genuinely originates at the environment itself.
func (e *Engine) CheckEnvReads(reads []string) {
	for _, name := range reads {
		o := e.IsEnvTainted(name)
		if o == nil {
			continue
		}
		sinkObj := e.arena.New(name, "shell", e.currentLocation(), []*Object{o})
		sinkObj.SinkLocation = e.currentTaskGroup + "/" + e.currentTask
		e.raise(sinkAlertKindFor(o.Root()), e.severityOf([]*Object{o}), sinkObj, o)
	}
}

func (e *Engine) severityOf(sources []*Object) Severity {
	best := SeverityLow
	rank := map[Severity]int{SeverityLow: 0, SeverityMedium: 1, SeverityHigh: 2}
	for _, s := range sources {
		root := s.Root()
		sev := Severity(expressions.Severity(root.Name))
		if rank[sev] > rank[best] {
			best = sev
		}
	}
	return best
}

func (e *Engine) currentLocation() Location {
	switch {
	case e.wf != nil && e.wf.IsReusable:
		return InReusable
	default:
		return InWorkflow
	}
}

// HardcodedSink reports whether actionName has a hardcoded sink input
// and, if so, its input name and alert kind.
func HardcodedSink(actionName string) (inputName string, kind AlertKind, ok bool) {
	entries, found := hardcodedSinks[actionName]
	if !found || len(entries) == 0 {
		return "", 0, false
	}
	return entries[0].InputName, entries[0].Kind, true
}
