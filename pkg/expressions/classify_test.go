package expressions

import "testing"

func TestExtractReferencesClassifiesByPrefix(t *testing.T) {
	refs := ExtractReferences(`echo "${{ github.event.issue.title }}" >> ${{ env.OUT }}`)
	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %d: %+v", len(refs), refs)
	}
	if refs[0].Kind != "context" || refs[0].Name != "event.issue.title" {
		t.Errorf("first ref = %+v", refs[0])
	}
	if refs[1].Kind != "env" || refs[1].Name != "OUT" {
		t.Errorf("second ref = %+v", refs[1])
	}
}

func TestExtractReferencesFindsEmbeddedReferences(t *testing.T) {
	refs := ExtractReferences(`${{ format('{0}', github.event.comment.body) }}`)
	if len(refs) != 1 {
		t.Fatalf("expected 1 embedded reference, got %d: %+v", len(refs), refs)
	}
	if refs[0].Name != "event.comment.body" || refs[0].Kind != "context" {
		t.Errorf("embedded ref = %+v", refs[0])
	}
}

func TestExtractReferencesDedupesByExpression(t *testing.T) {
	refs := ExtractReferences(`${{ github.event.issue.title }} and again ${{github.event.issue.title}}`)
	if len(refs) != 1 {
		t.Fatalf("expected references to dedupe, got %d: %+v", len(refs), refs)
	}
}

func TestIsTaintSourcePatternMatch(t *testing.T) {
	sev, ok := IsTaintSource(Reference{Kind: "context", Name: "event.issue.title"})
	if !ok || sev != "high" {
		t.Fatalf("event.issue.title: sev=%q ok=%v, want high/true", sev, ok)
	}
	sev, ok = IsTaintSource(Reference{Kind: "context", Name: "event.pull_request.head.ref"})
	if !ok || sev != "low" {
		t.Fatalf("event.pull_request.head.ref: sev=%q ok=%v, want low/true", sev, ok)
	}
	if _, ok := IsTaintSource(Reference{Kind: "env", Name: "event.issue.title"}); ok {
		t.Fatal("non-context kind must never be a taint source")
	}
}

func TestIsObjectTaintSource(t *testing.T) {
	sev, ok := IsObjectTaintSource(Reference{Kind: "context", Name: "event.pull_request"})
	if !ok || sev != "medium" {
		t.Fatalf("event.pull_request: sev=%q ok=%v, want medium/true", sev, ok)
	}
	if _, ok := IsObjectTaintSource(Reference{Kind: "context", Name: "event.pull_request.title"}); ok {
		t.Fatal("a pattern-catalog-only name must not match the object catalog")
	}
}

func TestSeverityFallsBackToHigh(t *testing.T) {
	if got := Severity("event.issue.title"); got != "high" {
		t.Errorf("Severity(event.issue.title) = %q, want high", got)
	}
	if got := Severity("event.pull_request"); got != "medium" {
		t.Errorf("Severity(event.pull_request) = %q, want medium", got)
	}
	if got := Severity("event.unknown_field"); got != "high" {
		t.Errorf("Severity(unmatched) = %q, want default high", got)
	}
}
