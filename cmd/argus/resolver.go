package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/purs3lab/Argus/pkg/ast"
	"github.com/purs3lab/Argus/pkg/codeql"
	"github.com/purs3lab/Argus/pkg/gitutil"
	"github.com/purs3lab/Argus/pkg/ir"
	"github.com/purs3lab/Argus/pkg/repo"
	"github.com/purs3lab/Argus/pkg/taint"
)

// summaryResolver recursively analyzes the actions and reusable
// workflows a repo's workflows reference, feeding taint.Engine its
// resolveActionSummary/resolveWorkflowSummary hooks. Results are cached
// on the owning *repo.Repo (and shared into any sub-repo it spawns), so
// an action referenced from three different steps is only ever walked
// once.
type summaryResolver struct {
	root *repo.Repo
	cq   *codeql.Client
}

func newSummaryResolver(r *repo.Repo, cq *codeql.Client) *summaryResolver {
	return &summaryResolver{root: r, cq: cq}
}

func (sr *summaryResolver) resolveAction(at *ir.ActionTask) (*taint.ActionSummary, error) {
	switch at.Kind {
	case ir.ActionRefDocker:
		return &taint.ActionSummary{}, nil
	case ir.ActionRefLocal:
		return sr.root.GetOrAnalyzeAction(at.ActionName, at.ActionPath, at.Ref, func() (*taint.ActionSummary, error) {
			action, err := sr.root.FindActionByPath(at.ActionPath)
			if err != nil {
				return nil, err
			}
			return sr.analyzeAction(sr.root, action)
		})
	default:
		return sr.root.GetOrAnalyzeAction(at.ActionName, at.ActionPath, at.Ref, func() (*taint.ActionSummary, error) {
			sub, err := sr.root.InitSubRepo("https://github.com/"+at.ActionName, nil, refTarget(at.Ref))
			if err != nil {
				return nil, err
			}
			action, err := sub.FindActionByPath(at.ActionPath)
			if err != nil {
				return nil, err
			}
			subResolver := &summaryResolver{root: sub, cq: sr.cq}
			return subResolver.analyzeAction(sub, action)
		})
	}
}

func (sr *summaryResolver) resolveWorkflow(rtg *ir.ReusableTaskGroup) (*taint.WorkflowSummary, error) {
	ref := rtg.Ref()
	if ref.Local {
		wf := sr.root.FindWorkflowByPath(ref.Path)
		if wf == nil {
			return nil, fmt.Errorf("local reusable workflow %s not found", ref.Path)
		}
		return sr.root.GetOrAnalyzeWorkflow("", ref.Path, nil, func() (*taint.WorkflowSummary, error) {
			return sr.analyzeWorkflow(sr.root, wf)
		})
	}
	return sr.root.GetOrAnalyzeWorkflow(ref.Repo, ref.Path, ref.Ref, func() (*taint.WorkflowSummary, error) {
		sub, err := sr.root.InitSubRepo("https://github.com/"+ref.Repo, nil, refTarget(ref.Ref))
		if err != nil {
			return nil, err
		}
		wf := sub.FindWorkflowByPath(ref.Path)
		if wf == nil {
			return nil, fmt.Errorf("reusable workflow %s not found in %s", ref.Path, ref.Repo)
		}
		subResolver := &summaryResolver{root: sub, cq: sr.cq}
		return subResolver.analyzeWorkflow(sub, wf)
	})
}

func refTarget(ref *ir.RefSpec) gitutil.Target {
	if ref == nil {
		return gitutil.Target{Kind: gitutil.RefBranch, Value: "main"}
	}
	return gitutil.Target{Kind: gitutil.RefKind(ref.Kind), Value: ref.Raw}
}

// analyzeAction walks a composite action's steps with the task-group
// engine, or builds and queries a CodeQL database for a JS action's
// source. Docker actions are opaque by definition (see ir.ActionRefDocker).
func (sr *summaryResolver) analyzeAction(r *repo.Repo, action *ast.Action) (*taint.ActionSummary, error) {
	if action.Runs == nil {
		return &taint.ActionSummary{}, nil
	}
	if action.Runs.Using == ast.RunsUsingComposite {
		job := &ast.Job{ID: "composite", Steps: action.Runs.Steps}
		wf := &ast.Workflow{Path: action.Path, Jobs: map[string]*ast.Job{"composite": job}}
		wfIR, err := ir.BuildWorkflowIR(wf)
		if err != nil {
			return nil, err
		}
		// A composite action has no workflow_dispatch/workflow_call event
		// node to derive Inputs/DeclaredOutputs from, so seed them
		// directly from the action's own declared inputs/outputs.
		if len(action.Inputs) > 0 {
			wfIR.Inputs = map[string]*ast.DispatchInput{}
			for name := range action.Inputs {
				wfIR.Inputs[name] = &ast.DispatchInput{Name: name}
			}
		}
		if len(action.Outputs) > 0 {
			wfIR.DeclaredOutputs = map[string]*ast.String{}
			for name, out := range action.Outputs {
				if out != nil {
					wfIR.DeclaredOutputs[name] = out.Value
				}
			}
		}
		engine := taint.NewEngine(wfIR, sr.resolveAction, sr.resolveWorkflow)
		alerts := engine.RunWorkflow()
		return alertsToActionSummary(alerts, engine), nil
	}
	if action.Runs.Using.IsJS() {
		ctx := context.Background()
		dbDir := filepath.Join(r.Folder, ".argus-codeql-db")
		if err := sr.cq.BuildDatabase(ctx, filepath.Join(r.Folder, action.Path), dbDir); err != nil {
			rootLogger.Errorf("building codeql db for %s: %v", action.Path, err)
			return &taint.ActionSummary{}, nil
		}
		return sr.cq.RunQueries(ctx, dbDir), nil
	}
	return &taint.ActionSummary{}, nil
}

func (sr *summaryResolver) analyzeWorkflow(r *repo.Repo, wf *ast.Workflow) (*taint.WorkflowSummary, error) {
	wfIR, err := ir.BuildWorkflowIR(wf)
	if err != nil {
		return nil, err
	}
	engine := taint.NewEngine(wfIR, sr.resolveAction, sr.resolveWorkflow)
	alerts := engine.RunWorkflow()
	return alertsToWorkflowSummary(alerts, engine), nil
}

// alertsToActionSummary lifts a completed sub-analysis into the summary
// contract a caller consumes. Sink flows (ArgToSink/EnvToSink/
// ContextToSink) come from alerts raised while walking the callee's
// steps, letting the caller's engine re-check them against its own
// argument taint instead of double-reporting. Output/env flows are taken
// from the engine's ArgToOutput/ContextToOutput/ArgToEnv/ContextToEnv
// fields, which declaredOutputFlows/envFlows fill at the end of the run
// alongside the alerts they raise; those alerts are not re-read here.
func alertsToActionSummary(alerts []taint.Alert, engine *taint.Engine) *taint.ActionSummary {
	s := &taint.ActionSummary{
		ArgToOutput:     engine.ArgToOutput,
		ContextToOutput: engine.ContextToOutput,
		ArgToEnv:        engine.ArgToEnv,
		ContextToEnv:    engine.ContextToEnv,
	}
	for _, a := range alerts {
		if a.Source == nil || a.Sink == nil {
			continue
		}
		datum := taint.PackedDatum{Name: a.Source.Name, TaintName: a.Sink.Name}
		switch a.Kind {
		case taint.ArgToSink:
			s.ArgToSink = append(s.ArgToSink, datum)
		case taint.EnvToSink:
			s.EnvToSink = append(s.EnvToSink, datum)
		case taint.ContextToSink:
			s.ContextToSink = append(s.ContextToSink, datum)
		}
	}
	return s
}

// alertsToWorkflowSummary is alertsToActionSummary's narrower
// counterpart for a reusable workflow: no env contract, since a
// reusable workflow has no enclosing shell environment to poison.
func alertsToWorkflowSummary(alerts []taint.Alert, engine *taint.Engine) *taint.WorkflowSummary {
	s := &taint.WorkflowSummary{
		ArgToOutput:     engine.ArgToOutput,
		ContextToOutput: engine.ContextToOutput,
	}
	for _, a := range alerts {
		if a.Source == nil || a.Sink == nil {
			continue
		}
		datum := taint.PackedDatum{Name: a.Source.Name, TaintName: a.Sink.Name}
		switch a.Kind {
		case taint.ArgToSink:
			s.ArgToSink = append(s.ArgToSink, datum)
		case taint.ContextToSink:
			s.ContextToSink = append(s.ContextToSink, datum)
		}
	}
	return s
}
