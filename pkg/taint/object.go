// Package taint implements the cross-artifact taint propagation engine:
// an arena of provenance-linked Objects, a scope-stacked Engine that
// walks a workflow's task groups and tasks, and the summary contract
// (ActionSummary / WorkflowSummary) used to analyze a caller without
// re-walking every callee from scratch.
package taint

// Location identifies which artifact level an Object was created in.
type Location uint8

const (
	InWorkflow Location = iota
	InReusable
	InComposite
)

// Object is one node of the taint provenance DAG. Every Object except a
// root carries exactly one designated parent for root derivation (see
// Root below); Parents holds the full parent set for reporting, but
// root-walking always follows Parents[0], matching the upstream
// analyzer's single-parent get_root() even when multiple parents are
// recorded for a merge point.
type Object struct {
	ID       uint64
	Name     string
	Kind     string // "arg", "env", "output", "job_output", "input", "context", "wf_output"
	Location Location
	IsObject bool
	Task     string
	Parents  []*Object
	IsRoot   bool

	SinkLocation string
}

// Root returns the root Object reached by following Parents[0]
// transitively. A cycle-safe bound isn't needed: the arena only ever
// grows forward, so no parent chain can loop back on itself.
func (o *Object) Root() *Object {
	n := o
	for !n.IsRoot {
		if len(n.Parents) == 0 {
			break
		}
		n = n.Parents[0]
	}
	return n
}

// Path renders the chain from root to this node as "name" hops,
// following the same first-parent rule as Root.
func (o *Object) Path() []string {
	if o.IsRoot {
		return []string{o.Name}
	}
	var prefix []string
	if len(o.Parents) > 0 {
		prefix = o.Parents[0].Path()
	}
	return append(prefix, o.Name)
}

// Arena allocates Objects with monotonically increasing IDs, mirroring
// the upstream analyzer's implicit identity-by-object-creation-order
// semantics with an explicit counter instead of relying on Python object
// identity.
type Arena struct {
	next uint64
}

// New creates an Object. A nil or empty parents slice produces a root
// node.
func (a *Arena) New(name, kind string, location Location, parents []*Object) *Object {
	a.next++
	o := &Object{
		ID:       a.next,
		Name:     name,
		Kind:     kind,
		Location: location,
		Parents:  parents,
	}
	o.IsRoot = len(parents) == 0
	return o
}

// PackedDatum is the uniform representation of a taintable value:
// a name, its kind, the referenced CI variables found inside it, and
// (for outputs) the sinks it directly flows to.
type PackedDatum struct {
	Name       string
	TaintName  string // falls back to Name when empty
	Kind       string
	Value      string
	CIVars     []CIVar
	Sinks      []Sink
}

// displayName returns TaintName if set, else Name, matching the
// upstream packed-data contract's `taint_name` fallback.
func (p PackedDatum) displayName() string {
	if p.TaintName != "" {
		return p.TaintName
	}
	return p.Name
}

// CIVar is one classified context/secret/env reference found while
// scanning a datum's raw value (see pkg/expressions).
type CIVar struct {
	Name string
	Kind string // "secret", "context", "env", "steps", "runner", "job", "matrix", "strategy", "needs", "inputs", "jobs"
}

// Sink describes a place a packed datum's value is consumed, used when
// a datum both receives and immediately forwards taint (e.g. an output
// that is itself wired straight to another action's input).
type Sink struct {
	TaintName string
	Kind      string
}
