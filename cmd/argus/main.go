// Command argus is a static security analyzer for GitHub Actions
// pipelines: it clones a repository (or a single action) and traces
// taint from untrusted CI context values through workflows, composite
// actions, and JS actions to the sinks they reach, emitting SARIF.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/purs3lab/Argus/pkg/ast"
	"github.com/purs3lab/Argus/pkg/codeql"
	"github.com/purs3lab/Argus/pkg/config"
	"github.com/purs3lab/Argus/pkg/gitutil"
	"github.com/purs3lab/Argus/pkg/ir"
	"github.com/purs3lab/Argus/pkg/log"
	"github.com/purs3lab/Argus/pkg/report"
	"github.com/purs3lab/Argus/pkg/repo"
	"github.com/purs3lab/Argus/pkg/taint"
)

var rootLogger = log.Get("argus")

type options struct {
	mode         string
	url          string
	outputFolder string
	configPath   string
	verbose      bool
	branch       string
	commit       string
	tag          string
	actionPath   string
	workflowPath string
}

func main() {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "argus",
		Short: "Taint-tracking security analyzer for GitHub Actions pipelines",
		// main logs the returned error itself, so cobra must not print it too.
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.mode, "mode", "", `analysis mode: "repo" or "action"`)
	flags.StringVar(&opts.url, "url", "", "GitHub URL, or USER:TOKEN@URL for private repos")
	flags.StringVar(&opts.outputFolder, "output-folder", "/tmp", "output folder")
	flags.StringVar(&opts.configPath, "config", "", "config file path")
	flags.BoolVar(&opts.verbose, "verbose", false, "verbose mode")
	flags.StringVar(&opts.branch, "branch", "", "branch name")
	flags.StringVar(&opts.commit, "commit", "", "commit hash")
	flags.StringVar(&opts.tag, "tag", "", "tag")
	flags.StringVar(&opts.actionPath, "action-path", "", "relative path to the action (mode=action)")
	flags.StringVar(&opts.workflowPath, "workflow-path", "", "relative path to the workflow (mode=repo)")
	cmd.MarkFlagRequired("mode")
	cmd.MarkFlagRequired("url")

	if err := cmd.Execute(); err != nil {
		rootLogger.Criticalf("%v", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	if opts.verbose {
		log.SetGlobalLevel(log.LevelDebug)
	} else {
		log.SetGlobalLevel(log.LevelInfo)
	}

	if opts.mode != "repo" && opts.mode != "action" {
		return fmt.Errorf(`--mode must be "repo" or "action"`)
	}

	provided := 0
	for _, v := range []string{opts.branch, opts.commit, opts.tag} {
		if v != "" {
			provided++
		}
	}
	if provided > 1 {
		return fmt.Errorf("you may provide at most one of: --branch, --commit, --tag")
	}
	target := gitutil.Target{Kind: gitutil.RefBranch, Value: "main"}
	switch {
	case opts.commit != "":
		target = gitutil.Target{Kind: gitutil.RefCommit, Value: opts.commit}
	case opts.tag != "":
		target = gitutil.Target{Kind: gitutil.RefTag, Value: opts.tag}
	case opts.branch != "":
		target = gitutil.Target{Kind: gitutil.RefBranch, Value: opts.branch}
	}

	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	cfg.ResultsFolder = opts.outputFolder

	url, creds := gitutil.ParseCredentialedURL(opts.url)

	switch opts.mode {
	case "repo":
		if opts.actionPath != "" {
			return fmt.Errorf("you cannot provide --action-path in repo mode")
		}
		return runRepoMode(cfg, url, creds, target, opts.workflowPath)
	default:
		if opts.workflowPath != "" {
			return fmt.Errorf("you cannot provide --workflow-path in action mode")
		}
		return runActionMode(cfg, url, creds, target, opts.actionPath)
	}
}

func runRepoMode(cfg *config.Config, url string, creds *gitutil.Credentials, target gitutil.Target, workflowPath string) error {
	r, err := repo.Open(cfg, url, creds, target)
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}

	cq := codeql.New(cfg)
	resolver := newSummaryResolver(r, cq)

	found := false
	for _, wf := range r.Workflows {
		if workflowPath != "" && wf.Path != workflowPath {
			continue
		}
		found = true
		wfIR, err := ir.BuildWorkflowIR(wf)
		if err != nil {
			rootLogger.Errorf("building IR for %s: %v", wf.Path, err)
			continue
		}
		engine := taint.NewEngine(wfIR, resolver.resolveAction, resolver.resolveWorkflow)
		alerts := engine.RunWorkflow()

		doc := report.BuildWorkflowReport(wf.Path, alerts)
		name := fmt.Sprintf("%s#%s#%s.sarif", r.Owner, r.Name, strings.TrimSuffix(filepath.Base(wf.Path), filepath.Ext(wf.Path)))
		if err := report.WriteFile(filepath.Join(cfg.ResultsFolder, name), doc); err != nil {
			rootLogger.Errorf("writing report for %s: %v", wf.Path, err)
		}
	}
	if !found {
		if workflowPath != "" {
			return fmt.Errorf("workflow %s not found in repository %s", workflowPath, url)
		}
		return fmt.Errorf("no workflows found in repository %s", url)
	}
	return nil
}

func runActionMode(cfg *config.Config, url string, creds *gitutil.Credentials, target gitutil.Target, actionPath string) error {
	r, err := repo.Open(cfg, url, creds, target)
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	action, err := ast.LoadAction(r.Folder, actionPath)
	if err != nil {
		return fmt.Errorf("load action: %w", err)
	}

	alerts, err := analyzeAction(r, cfg, action)
	if err != nil {
		return err
	}

	doc := report.BuildActionReport(actionPath, alerts)
	name := fmt.Sprintf("%s#%s#action.sarif", r.Owner, r.Name)
	return report.WriteFile(filepath.Join(cfg.ResultsFolder, name), doc)
}

func analyzeAction(r *repo.Repo, cfg *config.Config, action *ast.Action) ([]taint.Alert, error) {
	switch {
	case action.Runs != nil && action.Runs.Using == ast.RunsUsingComposite:
		wf := compositeAsWorkflow(action)
		wfIR, err := ir.BuildWorkflowIR(wf)
		if err != nil {
			return nil, err
		}
		cq := codeql.New(cfg)
		resolver := newSummaryResolver(r, cq)
		engine := taint.NewEngine(wfIR, resolver.resolveAction, resolver.resolveWorkflow)
		return engine.RunWorkflow(), nil
	case action.Runs != nil && action.Runs.Using.IsJS():
		ctx := context.Background()
		cq := codeql.New(cfg)
		dbDir := filepath.Join(cfg.LocalFolder, "db-"+filepath.Base(action.Path))
		if err := cq.BuildDatabase(ctx, filepath.Join(r.Folder, action.Path), dbDir); err != nil {
			rootLogger.Errorf("building codeql db: %v", err)
			return nil, nil
		}
		summary := cq.RunQueries(ctx, dbDir)
		return summaryToAlerts(summary), nil
	default:
		return nil, nil
	}
}

// compositeAsWorkflow wraps a composite action's steps into a
// single-job synthetic workflow so it can be walked by the same
// task-group engine used for ordinary workflows.
func compositeAsWorkflow(action *ast.Action) *ast.Workflow {
	job := &ast.Job{ID: "composite", Steps: action.Runs.Steps}
	return &ast.Workflow{Path: action.Path, Jobs: map[string]*ast.Job{"composite": job}}
}

// summaryToAlerts converts a resolved ActionSummary's sink flows
// directly into alerts when an action is analyzed standalone (there is
// no caller argument context to check them against).
func summaryToAlerts(s *taint.ActionSummary) []taint.Alert {
	var alerts []taint.Alert
	for range s.ArgToSink {
		alerts = append(alerts, taint.Alert{Kind: taint.ArgToSink, Severity: taint.SeverityHigh})
	}
	for range s.ContextToSink {
		alerts = append(alerts, taint.Alert{Kind: taint.ContextToSink, Severity: taint.SeverityHigh})
	}
	return alerts
}
