// Package repo manages cloned repositories and de-duplicates concurrent
// analysis of the same action across a repo's workflows and its
// sub-repos (remote reusable workflows / remote actions), mirroring the
// original analyzer's Repo.actions cache shared into sub-repos via
// initialize_sub_repo.
package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/purs3lab/Argus/pkg/ast"
	"github.com/purs3lab/Argus/pkg/config"
	"github.com/purs3lab/Argus/pkg/ghapi"
	"github.com/purs3lab/Argus/pkg/gitutil"
	"github.com/purs3lab/Argus/pkg/ir"
	"github.com/purs3lab/Argus/pkg/log"
	"github.com/purs3lab/Argus/pkg/taint"
)

var repoLogger = log.Get("repo")

// actionKey identifies one evaluated action/reusable-workflow by the
// triple the original analyzer compared on: repo name, subpath, and
// decoded version options.
type actionKey struct {
	name    string
	path    string
	version string
}

// Repo is a cloned repository, its discovered workflows, and the cache
// of actions already analyzed within it (shared by value into sub-repos
// so a remote action referenced from two different workflows, or from
// a sub-repo, is only ever analyzed once).
type Repo struct {
	URL    string
	Owner  string
	Name   string
	Folder string

	cfg *config.Config

	Workflows []*ast.Workflow

	mu        sync.Mutex
	actions   map[actionKey]*taint.ActionSummary
	workflows map[actionKey]*taint.WorkflowSummary
	sf        singleflight.Group

	parent *Repo
}

// Open clones (or reuses an existing clone of) repoURL under
// cfg.LocalFolder and discovers its workflows.
func Open(cfg *config.Config, repoURL string, creds *gitutil.Credentials, target gitutil.Target) (*Repo, error) {
	owner, name := splitOwnerRepo(repoURL)
	folder := filepath.Join(cfg.LocalFolder, fmt.Sprintf("%s#%s", owner, name))

	target = resolveLatestTag(owner, name, creds, target)

	repoLogger.Infof("cloning repository to %s", folder)
	if _, err := gitutil.CloneOrOpen(repoURL, folder, creds, target); err != nil {
		return nil, err
	}

	workflows, err := ast.DiscoverWorkflows(folder)
	if err != nil {
		return nil, fmt.Errorf("discover workflows in %s: %w", folder, err)
	}

	return &Repo{
		URL:       repoURL,
		Owner:     owner,
		Name:      name,
		Folder:    folder,
		cfg:       cfg,
		Workflows: workflows,
		actions:   map[actionKey]*taint.ActionSummary{},
		workflows: map[actionKey]*taint.WorkflowSummary{},
	}, nil
}

// resolveLatestTag turns a decoded `@latest` ref — which names no real
// git tag — into the repository's actual latest release tag via the
// GitHub API, so gitutil has something it can actually check out.
// Any other target kind, or an API failure, passes target through
// unchanged (a failure here just leaves "latest" to fail checkout with
// a clearer error than a silent wrong answer).
func resolveLatestTag(owner, name string, creds *gitutil.Credentials, target gitutil.Target) gitutil.Target {
	if target.Kind != gitutil.RefTag || target.Value != "latest" {
		return target
	}
	token := ""
	if creds != nil {
		token = creds.Password
	}
	tag, err := ghapi.New(token).ResolveLatestTag(context.Background(), owner, name)
	if err != nil {
		repoLogger.Errorf("resolving %s/%s@latest: %v", owner, name, err)
		return target
	}
	return gitutil.Target{Kind: gitutil.RefTag, Value: tag}
}

func splitOwnerRepo(repoURL string) (owner, name string) {
	s := strings.TrimSuffix(repoURL, "/")
	parts := strings.Split(s, "/")
	if len(parts) < 2 {
		return "", strings.TrimSuffix(s, ".git")
	}
	name = strings.TrimSuffix(parts[len(parts)-1], ".git")
	owner = parts[len(parts)-2]
	return owner, name
}

// InitSubRepo clones repoURL as a sub-repo (a remote reusable workflow
// or remote action's own repository) and seeds its action cache with
// everything already evaluated in r, so cross-repo references don't
// re-trigger analysis of an action both repos happen to use.
func (r *Repo) InitSubRepo(repoURL string, creds *gitutil.Credentials, target gitutil.Target) (*Repo, error) {
	sub, err := Open(r.cfg, repoURL, creds, target)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	for k, v := range r.actions {
		sub.actions[k] = v
	}
	sub.parent = r
	r.mu.Unlock()
	return sub, nil
}

// FindWorkflowByPath returns the parsed workflow at relPath, or nil if
// none matches.
func (r *Repo) FindWorkflowByPath(relPath string) *ast.Workflow {
	for _, wf := range r.Workflows {
		if wf.Path == relPath {
			return wf
		}
	}
	return nil
}

func keyFor(name, path string, ref *ir.RefSpec) actionKey {
	k := actionKey{name: name, path: path}
	if ref != nil {
		k.version = ref.Kind + ":" + ref.Raw
	}
	return k
}

// GetOrAnalyzeAction returns the cached ActionSummary for the given
// action identity, calling compute to analyze it if this is the first
// request. Concurrent requests for the same identity are coalesced via
// singleflight so the action's repo is only cloned and walked once.
func (r *Repo) GetOrAnalyzeAction(name, path string, ref *ir.RefSpec, compute func() (*taint.ActionSummary, error)) (*taint.ActionSummary, error) {
	key := keyFor(name, path, ref)
	sfKey := fmt.Sprintf("action:%s:%s:%s", key.name, key.path, key.version)

	r.mu.Lock()
	if s, ok := r.actions[key]; ok {
		r.mu.Unlock()
		repoLogger.Debugf("action %s#%s is already evaluated", name, key.version)
		return s, nil
	}
	r.mu.Unlock()

	v, err, _ := r.sf.Do(sfKey, func() (any, error) {
		return compute()
	})
	if err != nil {
		return nil, err
	}
	summary := v.(*taint.ActionSummary)

	r.mu.Lock()
	r.actions[key] = summary
	r.mu.Unlock()
	return summary, nil
}

// GetOrAnalyzeWorkflow is GetOrAnalyzeAction's counterpart for reusable
// workflow references.
func (r *Repo) GetOrAnalyzeWorkflow(name, path string, ref *ir.RefSpec, compute func() (*taint.WorkflowSummary, error)) (*taint.WorkflowSummary, error) {
	key := keyFor(name, path, ref)
	sfKey := fmt.Sprintf("workflow:%s:%s:%s", key.name, key.path, key.version)

	r.mu.Lock()
	if s, ok := r.workflows[key]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	v, err, _ := r.sf.Do(sfKey, func() (any, error) {
		return compute()
	})
	if err != nil {
		return nil, err
	}
	summary := v.(*taint.WorkflowSummary)

	r.mu.Lock()
	r.workflows[key] = summary
	r.mu.Unlock()
	return summary, nil
}

// FindActionByPath resolves a local action reference (`uses: ./path`)
// rooted at this repo's own checkout, implementing local-action analysis
// by the same protocol as a remote action rather than skipping it.
func (r *Repo) FindActionByPath(localPath string) (*ast.Action, error) {
	return ast.LoadAction(r.Folder, strings.TrimPrefix(localPath, "./"))
}
