package taint

import (
	"github.com/purs3lab/Argus/pkg/ast"
	"github.com/purs3lab/Argus/pkg/expressions"
	"github.com/purs3lab/Argus/pkg/ir"
	"github.com/purs3lab/Argus/pkg/shell"
)

// packEnv converts an *ast.Env into packed data, scanning each value for
// embedded context/secret/env references.
func packEnv(env *ast.Env) []PackedDatum {
	if env == nil {
		return nil
	}
	var out []PackedDatum
	for name, v := range env.Vars {
		if v == nil {
			continue
		}
		out = append(out, PackedDatum{Name: name, Kind: "env", Value: v.Value, CIVars: civarsFromString(v.Value)})
	}
	return out
}

// packInputs converts a map of ast.Input into packed data.
func packInputs(inputs map[string]*ast.Input) []PackedDatum {
	var out []PackedDatum
	for name, in := range inputs {
		if in == nil || in.Value == nil {
			continue
		}
		out = append(out, PackedDatum{Name: name, Kind: "arg", Value: in.Value.Value, CIVars: civarsFromString(in.Value.Value)})
	}
	return out
}

// civarsFromString classifies every `${{ ... }}` reference in s into a
// CIVar, copying pkg/expressions' Name and Kind unchanged. A
// runner/RUNNER_ reference therefore keeps the kind "runner", which
// sourcesFor never treats as a source.
func civarsFromString(s string) []CIVar {
	refs := expressions.ExtractReferences(s)
	out := make([]CIVar, 0, len(refs))
	for _, r := range refs {
		out = append(out, CIVar{Name: r.Name, Kind: r.Kind})
	}
	return out
}

// RunWorkflow walks wf's ordered task groups, propagating taint through
// each job's env and steps, and returns every alert raised.
func (e *Engine) RunWorkflow() []Alert {
	e.st = newState()
	e.seedInputs(e.wf.InputNames())
	e.TaintPackedData(packEnv(e.wf.Env), "env", WorkflowLevel)

	for _, tg := range e.wf.OrderedGroups {
		e.currentTaskGroup = tg.GroupID()
		switch g := tg.(type) {
		case *ir.NormalTaskGroup:
			e.runNormalGroup(g)
		case *ir.ReusableTaskGroup:
			e.runReusableGroup(g)
		}
	}

	e.ArgToOutput, e.ContextToOutput = e.declaredOutputFlows()
	e.ArgToEnv, e.ContextToEnv = e.envFlows()
	return e.Alerts
}

func (e *Engine) runNormalGroup(g *ir.NormalTaskGroup) {
	e.TaintPackedData(packEnv(g.Env()), "env", TaskGroupLevel)

	for _, task := range g.Tasks {
		e.currentTask = task.TaskID()
		e.TaintPackedData(packEnv(task.StepEnv()), "env", TaskLevel)

		switch t := task.(type) {
		case *ir.ActionTask:
			e.runActionTask(t)
		case *ir.RunTask:
			e.runShellTask(t)
		}
	}

	var outs []PackedDatum
	for name, o := range g.Outputs {
		if o == nil || o.Value == nil {
			continue
		}
		outs = append(outs, PackedDatum{Name: name, Kind: "job_output", Value: o.Value.Value, CIVars: civarsFromString(o.Value.Value)})
	}
	e.TaintPackedData(outs, "job_output", TaskGroupLevel)
}

func (e *Engine) runActionTask(t *ir.ActionTask) {
	args := packInputs(t.Args)
	e.CheckPackedData(args, ArgToSink)

	if inputName, kind, ok := HardcodedSink(t.ActionName); ok {
		for _, a := range args {
			if a.Name == inputName {
				e.CheckPackedData([]PackedDatum{a}, kind)
			}
		}
	}

	if e.resolveActionSummary == nil {
		return
	}
	summary, err := e.resolveActionSummary(t)
	if err != nil {
		engineLogger.Errorf("analyzing action %s: %v", t.Version, err)
	}
	if err != nil || summary == nil {
		return
	}
	e.applyActionSummary(args, summary)
}

// applyActionSummary lifts a resolved callee summary into the caller's
// scope: any of the callee's arg-to-sink findings on an input the
// caller passed a tainted value for becomes the caller's own alert, and
// any arg-to-output/arg-to-env mapping taints the caller's own step
// output/env accordingly.
func (e *Engine) applyActionSummary(args []PackedDatum, summary *ActionSummary) {
	argByName := map[string]PackedDatum{}
	for _, a := range args {
		argByName[a.Name] = a
	}

	check := func(flows []PackedDatum, kind AlertKind) {
		for _, f := range flows {
			if a, ok := argByName[f.Name]; ok {
				e.CheckPackedData([]PackedDatum{a}, kind)
			}
		}
	}
	check(summary.ArgToSink, ArgToSink)

	propagate := func(flows []PackedDatum, outKind string) {
		for _, f := range flows {
			a, ok := argByName[f.Name]
			if !ok {
				continue
			}
			if len(a.CIVars) == 0 {
				continue
			}
			e.TaintPackedData([]PackedDatum{{Name: f.TaintName, Kind: outKind, CIVars: a.CIVars}}, outKind, TaskLevel)
		}
	}
	propagate(summary.ArgToOutput, "output")
	propagate(summary.ArgToEnv, "env")
}

// runShellTask checks a `run:` step's whole command against context/
// secret/env sources, then separately scans it for the ways a shell
// script can mint new taint of its own: a $GITHUB_OUTPUT or $GITHUB_ENV
// write (or their deprecated `::set-output`/`::set-env` equivalents)
// taints the written name by whatever CI-variable references appear in
// its echoed value specifically - not the whole command, matching the
// original Bash plugin's per-write value rescan - and a bare
// `$UPPER_NAME` read is checked against currently tainted env state.
func (e *Engine) runShellTask(t *ir.RunTask) {
	civars := civarsFromString(t.Command)
	if len(civars) > 0 {
		datum := PackedDatum{Name: t.TaskID(), Kind: "shell", Value: t.Command, CIVars: civars}
		e.CheckPackedData([]PackedDatum{datum}, ContextToSink)
	}

	parser := shell.NewShellParser(t.Command)

	taintWrites := func(writes []shell.WriteDatum, kind string) {
		for _, w := range writes {
			valueCIVars := civarsFromString(w.Value)
			if len(valueCIVars) == 0 {
				continue
			}
			e.TaintPackedData([]PackedDatum{{Name: w.Name, Kind: kind, CIVars: valueCIVars}}, kind, TaskGroupLevel)
		}
	}
	taintWrites(parser.FindGithubOutputWriteData(), "output")
	taintWrites(parser.FindLegacyOutputCommands(), "output")
	taintWrites(parser.FindGithubEnvWrites(), "env")
	taintWrites(parser.FindLegacyEnvCommands(), "env")

	e.CheckEnvReads(parser.FindEnvReads())
}

func (e *Engine) runReusableGroup(g *ir.ReusableTaskGroup) {
	args := packInputs(g.Args)
	e.CheckPackedData(args, ArgToSink)

	if e.resolveWorkflowSummary == nil {
		return
	}
	summary, err := e.resolveWorkflowSummary(g)
	if err != nil {
		engineLogger.Errorf("analyzing reusable workflow %s: %v", g.Workflow, err)
	}
	if err != nil || summary == nil {
		return
	}
	argByName := map[string]PackedDatum{}
	for _, a := range args {
		argByName[a.Name] = a
	}
	for _, f := range summary.ArgToSink {
		if a, ok := argByName[f.Name]; ok {
			e.CheckPackedData([]PackedDatum{a}, ArgToSink)
		}
	}
	for _, f := range summary.ArgToOutput {
		if a, ok := argByName[f.Name]; ok && len(a.CIVars) > 0 {
			e.TaintPackedData([]PackedDatum{{Name: f.TaintName, CIVars: a.CIVars}}, "job_output", TaskGroupLevel)
		}
	}
}
