package report

import (
	"testing"

	"github.com/purs3lab/Argus/pkg/taint"
)

func TestBuildActionReportMapsAlertsToRules(t *testing.T) {
	alerts := []taint.Alert{
		{Kind: taint.ContextToSink, Severity: taint.SeverityHigh},
		{Kind: taint.ArgToSink, Severity: taint.SeverityMedium},
	}
	doc := BuildActionReport("action.yml", alerts)
	if len(doc.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(doc.Runs))
	}
	results := doc.Runs[0].Results
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].RuleID != "context-to-sink" || results[0].Level != "error" {
		t.Errorf("context-to-sink result = %+v", results[0])
	}
	if results[1].RuleID != "arg-to-sink" || results[1].Level != "warning" {
		t.Errorf("arg-to-sink result = %+v", results[1])
	}
	if len(doc.Runs[0].Tool.Driver.Rules) != len(actionRules) {
		t.Errorf("expected %d rule descriptors, got %d", len(actionRules), len(doc.Runs[0].Tool.Driver.Rules))
	}
}

func TestBuildWorkflowReportNarrowsRuleSet(t *testing.T) {
	alerts := []taint.Alert{
		{Kind: taint.ArgToOutput, Severity: taint.SeverityLow},
		// a kind only meaningful at action scope must be dropped, not panic.
		{Kind: taint.ArgToEnv, Severity: taint.SeverityLow},
	}
	doc := BuildWorkflowReport("ci.yml", alerts)
	results := doc.Runs[0].Results
	if len(results) != 1 {
		t.Fatalf("expected ArgToEnv to be filtered out of workflow reports, got %d results: %+v", len(results), results)
	}
	if results[0].RuleID != "arg-to-output" {
		t.Errorf("result = %+v", results[0])
	}
}
