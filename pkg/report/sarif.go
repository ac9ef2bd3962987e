// Package report builds the SARIF 2.1.0 output Argus emits for a
// completed workflow or action analysis, using go-sarif's schema types
// so the result round-trips through any standard SARIF consumer
// (GitHub code scanning, reviewdog, etc.) without Argus hand-rolling the
// schema itself.
package report

import (
	"encoding/json"
	"os"

	sarifschema "github.com/haya14busa/go-sarif/sarif"

	"github.com/purs3lab/Argus/pkg/taint"
)

const toolName = "Argus"

// ruleDescriptor is one static SARIF rule entry: an ID, short
// description, and the fixed index Alert.Kind maps to.
type ruleDescriptor struct {
	id    string
	short string
}

// actionRules is the fixed rule table used when reporting an
// action/composite-action analysis. Index position is the SARIF rule
// index and must match taint.AlertKind's iota ordering.
var actionRules = []ruleDescriptor{
	{"arg-to-sink", "Tainted argument reaches a dangerous sink"},
	{"env-to-sink", "Tainted environment variable reaches a dangerous sink"},
	{"context-to-sink", "Untrusted context value reaches a dangerous sink"},
	{"arg-to-output", "Tainted argument flows into a step output"},
	{"arg-to-env", "Tainted argument flows into an environment variable"},
	{"context-to-output", "Untrusted context value flows into a step output"},
	{"context-to-env", "Untrusted context value flows into an environment variable"},
	{"reusable-workflow-tainted-output", "Reusable workflow returns a tainted output"},
}

// workflowRules narrows the rule set used for workflow-level reports,
// where only sink and output flows are meaningful (a workflow has no
// enclosing shell environment of its own to poison).
var workflowRuleIndex = map[taint.AlertKind]int{
	taint.ArgToSink:     0,
	taint.ContextToSink: 1,
	taint.ArgToOutput:   2,
	taint.ContextToOutput: 3,
}

var workflowRules = []ruleDescriptor{
	{"arg-to-sink", "Tainted argument reaches a dangerous sink"},
	{"context-to-sink", "Untrusted context value reaches a dangerous sink"},
	{"arg-to-output", "Tainted argument flows into a workflow output"},
	{"context-to-output", "Untrusted context value flows into a workflow output"},
}

// levelFor maps an alert's severity and category to a SARIF result
// level, matching the original report's error/warning/note split:
// context-to-sink findings are always "error" (the path from an
// attacker-controlled context straight to a sink needs no further
// scrutiny), direct arg/env-to-sink findings are "warning", and every
// other propagation-only finding is "note".
func levelFor(kind taint.AlertKind) string {
	switch kind {
	case taint.ContextToSink:
		return "error"
	case taint.ArgToSink, taint.EnvToSink:
		return "warning"
	default:
		return "note"
	}
}

// BuildActionReport renders alerts raised while analyzing a composite or
// JS action into a SARIF run using the full rule table.
func BuildActionReport(artifactPath string, alerts []taint.Alert) *sarifschema.Sarif {
	return build(artifactPath, alerts, actionRules, func(k taint.AlertKind) int { return int(k) })
}

// BuildWorkflowReport renders alerts raised while analyzing a workflow
// into a SARIF run using the narrower workflow rule table.
func BuildWorkflowReport(artifactPath string, alerts []taint.Alert) *sarifschema.Sarif {
	return build(artifactPath, alerts, workflowRules, func(k taint.AlertKind) int {
		if idx, ok := workflowRuleIndex[k]; ok {
			return idx
		}
		return -1
	})
}

func build(artifactPath string, alerts []taint.Alert, rules []ruleDescriptor, indexOf func(taint.AlertKind) int) *sarifschema.Sarif {
	descriptors := make([]sarifschema.ReportingDescriptor, len(rules))
	for i, r := range rules {
		descriptors[i] = sarifschema.ReportingDescriptor{
			ID:               r.id,
			ShortDescription: &sarifschema.MultiformatMessageString{Text: r.short},
		}
	}

	var results []sarifschema.Result
	for _, a := range alerts {
		idx := indexOf(a.Kind)
		if idx < 0 || idx >= len(rules) {
			continue
		}
		line := 1
		results = append(results, sarifschema.Result{
			RuleID:    rules[idx].id,
			RuleIndex: idx,
			Level:     levelFor(a.Kind),
			Message:   sarifschema.Message{Text: alertMessage(a)},
			Locations: []sarifschema.Location{{
				PhysicalLocation: &sarifschema.PhysicalLocation{
					ArtifactLocation: &sarifschema.ArtifactLocation{URI: artifactPath},
					Region:           &sarifschema.Region{StartLine: line},
				},
			}},
		})
	}

	return &sarifschema.Sarif{
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifschema.Run{{
			Tool: sarifschema.Tool{
				Driver: sarifschema.ToolComponent{Name: toolName, Rules: descriptors},
			},
			Results: results,
		}},
	}
}

func alertMessage(a taint.Alert) string {
	source := "unknown"
	if a.Source != nil {
		source = a.Source.Root().Name
	}
	sink := "unknown"
	if a.Sink != nil {
		sink = a.Sink.Name
	}
	return a.Kind.String() + ": untrusted value from \"" + source + "\" reaches \"" + sink + "\" (" + string(a.Severity) + ")"
}

// WriteFile marshals doc as indented JSON to path. An empty path writes to
// stdout instead, matching the original's print_report/save_report_to_file
// split (None path prints; a concrete path writes to disk).
func WriteFile(path string, doc *sarifschema.Sarif) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		os.Stdout.Write(data)
		os.Stdout.Write([]byte("\n"))
		return nil
	}
	return os.WriteFile(path, data, 0o644)
}
