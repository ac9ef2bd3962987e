package ir

import (
	"testing"

	"github.com/purs3lab/Argus/pkg/ast"
)

func TestDecodeRef(t *testing.T) {
	cases := []struct {
		raw  string
		kind string
	}{
		{"a1b2c3d4e5f60718293a4b5c6d7e8f9012345678", "commit"},
		{"latest", "tag"},
		{"v1", "tag"},
		{"v1.2.3", "tag"},
		{"releases/v2", "tag"},
		{"1.2.3", "tag"},
		{"main", "branch"},
		{"feature/foo", "branch"},
	}
	for _, c := range cases {
		got := DecodeRef(c.raw)
		if got.Kind != c.kind {
			t.Errorf("DecodeRef(%q).Kind = %q, want %q", c.raw, got.Kind, c.kind)
		}
		if got.Raw != c.raw {
			t.Errorf("DecodeRef(%q).Raw = %q, want %q", c.raw, got.Raw, c.raw)
		}
	}
}

func TestParseActionRef(t *testing.T) {
	kind, name, path, ref := ParseActionRef("./local/action")
	if kind != ActionRefLocal || path != "./local/action" || name != "" || ref != nil {
		t.Fatalf("local ref parsed wrong: %v %q %q %v", kind, name, path, ref)
	}

	kind, name, _, _ = ParseActionRef("docker://alpine:3.18")
	if kind != ActionRefDocker || name != "docker://alpine:3.18" {
		t.Fatalf("docker ref parsed wrong: %v %q", kind, name)
	}

	kind, name, path, ref = ParseActionRef("actions/checkout@v4")
	if kind != ActionRefRemote || name != "actions/checkout" || path != "" {
		t.Fatalf("remote ref parsed wrong: %v %q %q", kind, name, path)
	}
	if ref == nil || ref.Kind != "tag" || ref.Raw != "v4" {
		t.Fatalf("remote ref spec wrong: %+v", ref)
	}

	kind, name, path, ref = ParseActionRef("org/repo/path/to/action@main")
	if kind != ActionRefRemote || name != "org/repo" || path != "path/to/action" {
		t.Fatalf("remote ref with path parsed wrong: %v %q %q", kind, name, path)
	}
	if ref == nil || ref.Kind != "branch" {
		t.Fatalf("remote ref spec wrong: %+v", ref)
	}
}

func job(id string, needs ...string) *ast.Job {
	return &ast.Job{ID: id, Needs: needs}
}

func TestBuildWorkflowIROrdersByNeeds(t *testing.T) {
	wf := &ast.Workflow{
		Path: "ci.yml",
		Jobs: map[string]*ast.Job{
			"c": job("c", "a", "b"),
			"a": job("a"),
			"b": job("b", "a"),
		},
	}
	wfIR, err := BuildWorkflowIR(wf)
	if err != nil {
		t.Fatalf("BuildWorkflowIR: %v", err)
	}
	if len(wfIR.OrderedGroups) != 3 {
		t.Fatalf("expected 3 ordered groups, got %d", len(wfIR.OrderedGroups))
	}
	pos := map[string]int{}
	for i, g := range wfIR.OrderedGroups {
		pos[g.GroupID()] = i
	}
	if pos["a"] > pos["b"] || pos["b"] > pos["c"] {
		t.Fatalf("topological order violated: %v", pos)
	}
}

func TestBuildWorkflowIRRejectsCycle(t *testing.T) {
	wf := &ast.Workflow{
		Path: "cycle.yml",
		Jobs: map[string]*ast.Job{
			"a": job("a", "b"),
			"b": job("b", "a"),
		},
	}
	if _, err := BuildWorkflowIR(wf); err == nil {
		t.Fatal("expected error for cyclic job graph, got nil")
	}
}
