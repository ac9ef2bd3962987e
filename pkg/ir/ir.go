// Package ir converts a parsed workflow or composite action (pkg/ast)
// into the task-group/task intermediate representation the taint engine
// walks. It mirrors the teacher's visitor-over-syntax-tree shape, but
// the tree here is GHWorkflowIR's job/step DAG rather than a lint
// rule's AST.
package ir

import (
	"fmt"
	"sort"

	"github.com/purs3lab/Argus/pkg/ast"
)

// TaskGroup is one job in a workflow. Normal jobs run their own steps;
// Reusable jobs dispatch to another workflow via `uses:`.
type TaskGroup interface {
	GroupID() string
	GroupName() string
	Needs() []string
	Env() *ast.Env
	addChild(tg TaskGroup)
	addParent(tg TaskGroup)
	parents() []TaskGroup
}

type baseGroup struct {
	id       string
	name     string
	needs    []string
	env      *ast.Env
	children []TaskGroup
	parentGs []TaskGroup
}

func (b *baseGroup) GroupID() string      { return b.id }
func (b *baseGroup) GroupName() string    { return b.name }
func (b *baseGroup) Needs() []string      { return b.needs }
func (b *baseGroup) Env() *ast.Env        { return b.env }
func (b *baseGroup) addChild(tg TaskGroup)  { b.children = append(b.children, tg) }
func (b *baseGroup) addParent(tg TaskGroup) { b.parentGs = append(b.parentGs, tg) }
func (b *baseGroup) parents() []TaskGroup   { return b.parentGs }

// NormalTaskGroup is a job that executes its own sequence of tasks.
type NormalTaskGroup struct {
	baseGroup
	RunsOn  any
	Outputs map[string]*ast.Output
	Tasks   []Task
}

// ReusableTaskGroup is a job whose `uses:` dispatches to another
// workflow, local or remote.
type ReusableTaskGroup struct {
	baseGroup
	RunsOn  any
	Workflow string // raw `uses:` value, e.g. "org/repo/.github/workflows/ci.yml@v1"
	Args    map[string]*ast.Input
	Secrets map[string]*ast.String
	Inherit bool
	Outputs map[string]*ast.Output
}

// WorkflowRef describes a decoded reusable-workflow reference.
type WorkflowRef struct {
	Local bool // true when Workflow started with "./"
	Repo  string
	Path  string
	Ref   *RefSpec
}

// Ref parses rtg.Workflow into a WorkflowRef.
func (rtg *ReusableTaskGroup) Ref() WorkflowRef {
	return parseRepoPathRef(rtg.Workflow)
}

// Task is one step within a NormalTaskGroup: either an action invocation
// or a shell command.
type Task interface {
	TaskID() string
	TaskName() string
	StepEnv() *ast.Env
}

type baseTask struct {
	id   string
	name string
	env  *ast.Env
}

func (b *baseTask) TaskID() string   { return b.id }
func (b *baseTask) TaskName() string { return b.name }
func (b *baseTask) StepEnv() *ast.Env { return b.env }

// ActionRefKind classifies how an action reference resolves.
type ActionRefKind uint8

const (
	ActionRefLocal ActionRefKind = iota
	ActionRefDocker
	ActionRefRemote
)

// RefSpec decodes the `@ref` suffix of an action or reusable-workflow
// reference into its concrete git object kind.
type RefSpec struct {
	Raw    string
	Kind   string // "commit", "tag", or "branch"
}

// ActionTask invokes another action (local, Docker, or a remote
// `org/repo[/path]@ref`).
type ActionTask struct {
	baseTask
	Kind       ActionRefKind
	ActionName string // "org/repo" for remote, empty for local/docker
	ActionPath string // subpath within the repo, or local path
	Version    string // raw @ref text
	Ref        *RefSpec
	Args       map[string]*ast.Input
}

// RunTask executes a shell command.
type RunTask struct {
	baseTask
	Command  string
	Shell    string
	CIVars   []string
}

// parseRepoPathRef splits a `uses:` style reference of the form
// "org/repo[/path]@ref" (or "./local/path") into its repo, subpath, and
// ref components.
func parseRepoPathRef(uses string) WorkflowRef {
	if len(uses) >= 2 && uses[:2] == "./" {
		return WorkflowRef{Local: true, Path: uses}
	}
	name := uses
	var rawRef string
	hasRef := false
	for i := 0; i < len(name); i++ {
		if name[i] == '@' {
			rawRef = name[i+1:]
			name = name[:i]
			hasRef = true
			break
		}
	}
	chunks := splitSlash(name)
	var repo, path string
	switch {
	case len(chunks) >= 2:
		repo = chunks[0] + "/" + chunks[1]
		if len(chunks) > 2 {
			path = joinSlash(chunks[2:])
		}
	case len(chunks) == 1:
		repo = chunks[0]
	}
	var ref *RefSpec
	if hasRef {
		r := DecodeRef(rawRef)
		ref = &r
	}
	return WorkflowRef{Repo: repo, Path: path, Ref: ref}
}

func splitSlash(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func joinSlash(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}

// ParseActionRef classifies a step's `uses:` value into its reference
// kind and, for remote references, its owner/repo, subpath, and decoded
// version.
func ParseActionRef(uses string) (kind ActionRefKind, actionName, actionPath string, ref *RefSpec) {
	switch {
	case len(uses) >= 2 && uses[:2] == "./":
		return ActionRefLocal, "", uses, nil
	case len(uses) >= 7 && uses[:7] == "docker:":
		return ActionRefDocker, uses, "", nil
	}
	wr := parseRepoPathRef(uses)
	return ActionRefRemote, wr.Repo, wr.Path, wr.Ref
}

// DecodeRef classifies a raw `@ref` suffix as a commit SHA, tag, or
// branch, matching the original's get_option_dict_from_sting: a 40-hex
// string is a commit; "vNNN", "latest", "releases/vNNN", or a bare
// version number is a tag; anything else is a branch.
func DecodeRef(raw string) RefSpec {
	if isHex40(raw) {
		return RefSpec{Raw: raw, Kind: "commit"}
	}
	if raw == "latest" {
		return RefSpec{Raw: raw, Kind: "tag"}
	}
	body := raw
	if len(body) > 9 && body[:9] == "releases/" {
		body = body[9:]
	}
	if len(body) > 0 && body[0] == 'v' && isVersionNumber(body[1:]) {
		return RefSpec{Raw: raw, Kind: "tag"}
	}
	if isVersionNumber(body) {
		return RefSpec{Raw: raw, Kind: "tag"}
	}
	return RefSpec{Raw: raw, Kind: "branch"}
}

func isHex40(s string) bool {
	if len(s) != 40 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func isVersionNumber(s string) bool {
	if s == "" {
		return false
	}
	sawDigit := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			sawDigit = true
			continue
		}
		if c == '.' {
			continue
		}
		return false
	}
	return sawDigit
}

// WorkflowIR is the converted form of one parsed workflow, with its job
// DAG resolved and topologically ordered.
type WorkflowIR struct {
	UID              string
	Name             string
	Path             string
	HasWritePermissions bool
	Env              *ast.Env
	Inputs           map[string]*ast.DispatchInput
	CallInputs       []*ast.WorkflowCallInput
	IsReusable       bool
	// DeclaredOutputs is a reusable workflow's own `on.workflow_call.outputs:`
	// (or, for a synthesized composite-action IR, the action's own
	// `outputs:`), checked against final taint state at the end of a run.
	DeclaredOutputs map[string]*ast.String

	TaskGroups      []TaskGroup
	RootGroups      []TaskGroup
	OrderedGroups   []TaskGroup
}

// InputNames returns every declared input name, from whichever of
// Inputs (workflow_dispatch) or CallInputs (workflow_call) is set.
func (w *WorkflowIR) InputNames() []string {
	var names []string
	for name := range w.Inputs {
		names = append(names, name)
	}
	for _, in := range w.CallInputs {
		names = append(names, in.Name)
	}
	return names
}

// BuildWorkflowIR converts a parsed *ast.Workflow into its IR, resolving
// job dependencies and producing a topological order via Kahn's
// algorithm. This replaces the original's remove-while-iterating loop
// (bounded at 1000 rounds, and silently permissive of never draining the
// non-root list) with a textbook queue-based sort that fails fast on a
// cycle instead of looping until an arbitrary round cap.
func BuildWorkflowIR(wf *ast.Workflow) (*WorkflowIR, error) {
	ir := &WorkflowIR{
		UID:  wf.Path,
		Path: wf.Path,
		Env:  wf.Env,
	}
	if wf.Name != nil {
		ir.Name = wf.Name.Value
	}
	ir.HasWritePermissions = wf.HasWritePermissions()

	for _, ev := range wf.On {
		if wc, ok := ev.(*ast.WorkflowCallEvent); ok {
			ir.CallInputs = wc.Inputs
			ir.IsReusable = true
			if len(wc.Outputs) > 0 {
				ir.DeclaredOutputs = map[string]*ast.String{}
				for name, out := range wc.Outputs {
					if out != nil {
						ir.DeclaredOutputs[name] = out.Value
					}
				}
			}
		}
	}

	ids := sortedJobIDs(wf.Jobs)
	byID := map[string]TaskGroup{}
	for _, id := range ids {
		job := wf.Jobs[id]
		tg := convertJob(id, job)
		ir.TaskGroups = append(ir.TaskGroups, tg)
		byID[id] = tg
	}

	for _, id := range ids {
		job := wf.Jobs[id]
		tg := byID[id]
		for _, pid := range job.Needs {
			parent, ok := byID[pid]
			if !ok {
				return nil, fmt.Errorf("job %q needs unknown job %q", id, pid)
			}
			parent.addChild(tg)
			tg.addParent(parent)
		}
	}

	order, err := topoSort(ir.TaskGroups)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", wf.Path, err)
	}
	ir.OrderedGroups = order
	for _, tg := range ir.TaskGroups {
		if len(tg.Needs()) == 0 {
			ir.RootGroups = append(ir.RootGroups, tg)
		}
	}
	return ir, nil
}

func sortedJobIDs(jobs map[string]*ast.Job) []string {
	ids := make([]string, 0, len(jobs))
	for id := range jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func convertJob(id string, job *ast.Job) TaskGroup {
	base := baseGroup{id: id, name: id, env: job.Env}
	if job.Name != nil {
		base.name = job.Name.Value
	}
	base.needs = job.Needs

	if job.WorkflowCall != nil {
		rtg := &ReusableTaskGroup{baseGroup: base, Outputs: job.Outputs}
		if job.WorkflowCall.Uses != nil {
			rtg.Workflow = job.WorkflowCall.Uses.Value
		}
		rtg.Args = job.WorkflowCall.Inputs
		rtg.Secrets = job.WorkflowCall.Secrets
		rtg.Inherit = job.WorkflowCall.InheritSecrets
		return rtg
	}

	ntg := &NormalTaskGroup{baseGroup: base, Outputs: job.Outputs}
	for _, step := range job.Steps {
		ntg.Tasks = append(ntg.Tasks, convertStep(step))
	}
	return ntg
}

func convertStep(step *ast.Step) Task {
	base := baseTask{id: step.ID, env: step.Env}
	if step.Name != nil {
		base.name = step.Name.Value
	}
	switch ex := step.Exec.(type) {
	case *ast.ExecAction:
		at := &ActionTask{baseTask: base, Args: ex.Inputs}
		if ex.Uses != nil {
			at.Version = ex.Uses.Value
			kind, name, path, ref := ParseActionRef(ex.Uses.Value)
			at.Kind = kind
			at.ActionName = name
			at.ActionPath = path
			at.Ref = ref
		}
		return at
	case *ast.ExecRun:
		rt := &RunTask{baseTask: base}
		if ex.Run != nil {
			rt.Command = ex.Run.Value
		}
		if ex.Shell != nil {
			rt.Shell = ex.Shell.Value
		}
		return rt
	default:
		return &RunTask{baseTask: base}
	}
}

// topoSort orders groups so every group appears after all of its
// parents, using Kahn's algorithm. If a cycle remains once no more
// zero-in-degree nodes exist, it returns an error naming every job left
// unresolved (the cycle's members and any job that depends on them).
func topoSort(groups []TaskGroup) ([]TaskGroup, error) {
	return kahnWithChildren(groups)
}

func kahnWithChildren(groups []TaskGroup) ([]TaskGroup, error) {
	type node struct {
		tg       TaskGroup
		children []TaskGroup
		indegree int
	}
	nodes := make(map[TaskGroup]*node, len(groups))
	for _, g := range groups {
		nodes[g] = &node{tg: g, indegree: len(g.Needs())}
	}
	for _, g := range groups {
		base, ok := groupBase(g)
		if !ok {
			continue
		}
		for _, child := range base.children {
			nodes[g].children = append(nodes[g].children, child)
		}
	}

	var queue []*node
	for _, n := range nodes {
		if n.indegree == 0 {
			queue = append(queue, n)
		}
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i].tg.GroupID() < queue[j].tg.GroupID() })

	var order []TaskGroup
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n.tg)
		var next []*node
		for _, child := range n.children {
			cn := nodes[child]
			cn.indegree--
			if cn.indegree == 0 {
				next = append(next, cn)
			}
		}
		sort.Slice(next, func(i, j int) bool { return next[i].tg.GroupID() < next[j].tg.GroupID() })
		queue = append(queue, next...)
	}

	if len(order) != len(groups) {
		var stuck []string
		for _, n := range nodes {
			if n.indegree > 0 {
				stuck = append(stuck, n.tg.GroupID())
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("circular job dependency detected among jobs %v", stuck)
	}
	return order, nil
}

func groupBase(tg TaskGroup) (*baseGroup, bool) {
	switch v := tg.(type) {
	case *NormalTaskGroup:
		return &v.baseGroup, true
	case *ReusableTaskGroup:
		return &v.baseGroup, true
	default:
		return nil, false
	}
}
