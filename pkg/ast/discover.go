package ast

import (
	"os"
	"path/filepath"

	"github.com/purs3lab/Argus/pkg/log"
)

var discoverLogger = log.Get("ast")

// DiscoverWorkflows globs `.github/workflows/*.yml` and `*.yaml` under
// repoPath and parses each one. A YAML parse failure on a single file is
// logged at Critical and that file is skipped rather than aborting the
// run, matching the original's per-file AssertionError isolation in
// Workflow.initialize_workflows.
func DiscoverWorkflows(repoPath string) ([]*Workflow, error) {
	var paths []string
	for _, ext := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(repoPath, ".github", "workflows", ext))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}

	var workflows []*Workflow
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			discoverLogger.Criticalf("workflow %s is not readable: %v", p, err)
			continue
		}
		rel, err := filepath.Rel(repoPath, p)
		if err != nil {
			rel = p
		}
		wf, err := ParseWorkflow(data, rel)
		if err != nil {
			discoverLogger.Criticalf("workflow %s is not valid: %v", p, err)
			continue
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

// FindWorkflowByPath loads and parses a single workflow file given a path
// relative to repoPath. It returns (nil, nil) if the file is not a valid
// workflow, matching find_workflow_by_path's "return None" behavior
// rather than failing the caller's lookup loop.
func FindWorkflowByPath(repoPath, relPath string) (*Workflow, error) {
	data, err := os.ReadFile(filepath.Join(repoPath, relPath))
	if err != nil {
		return nil, err
	}
	wf, err := ParseWorkflow(data, relPath)
	if err != nil {
		discoverLogger.Criticalf("workflow %s is not valid: %v", relPath, err)
		return nil, nil
	}
	return wf, nil
}

// LoadAction locates and parses action.yml or action.yaml at
// filepath.Join(repoPath, actionDir).
func LoadAction(repoPath, actionDir string) (*Action, error) {
	for _, name := range []string{"action.yml", "action.yaml"} {
		full := filepath.Join(repoPath, actionDir, name)
		data, err := os.ReadFile(full)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		a, err := ParseAction(data, actionDir)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, &ActionNotFoundError{Dir: actionDir}
}

// ActionNotFoundError indicates neither action.yml nor action.yaml exists
// at the expected path.
type ActionNotFoundError struct {
	Dir string
}

func (e *ActionNotFoundError) Error() string {
	return "no action.yml or action.yaml found at " + e.Dir
}
