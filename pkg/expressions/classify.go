package expressions

import (
	"regexp"
	"strings"
)

// Reference is one classified `${{ ... }}` expression reference found
// inside a string value.
type Reference struct {
	// Name is the reference with its kind prefix removed, and anything
	// after the first space dropped (defensively handles expressions
	// like `secrets.X == 'y'`).
	Name string
	// Expression preserves the original textual form, e.g. "github.event.issue.title".
	Expression string
	// Kind is one of: secret, context, env, steps, runner, job, jobs,
	// matrix, strategy, needs, inputs.
	Kind string
}

// exprDelims matches a `${{ ... }}` span up to its first closing `}}`, so
// a lone `}` inside the expression (as in `format('{0}', ...)`) does not
// cut it short. A single-brace `${ ... }` span with no braces inside is
// also accepted, as the original scanner did.
var exprDelims = regexp.MustCompile(`\$\{\{(.*?)\}\}|\$\{([^{}]*)\}`)

// prefixTable maps a reference prefix to its classified kind, in the
// fixed order the spec requires matches to be attempted.
var prefixTable = []struct {
	prefix string
	kind   string
}{
	{"secrets.", "secret"},
	{"github.", "context"},
	{"GITHUB_", "context"},
	{"env.", "env"},
	{"steps.", "steps"},
	{"runner.", "runner"},
	{"RUNNER_", "runner"},
	{"job.", "job"},
	{"matrix.", "matrix"},
	{"strategy.", "strategy"},
	{"needs.", "needs"},
	{"inputs.", "inputs"},
	{"jobs.", "jobs"},
}

func classifyOne(match string) (Reference, bool) {
	for _, e := range prefixTable {
		if strings.HasPrefix(match, e.prefix) {
			name := match
			if idx := strings.Index(name, "."); idx != -1 {
				name = name[idx+1:]
			}
			if idx := strings.Index(name, " "); idx != -1 {
				name = name[:idx]
			}
			return Reference{Name: name, Expression: match, Kind: e.kind}, true
		}
	}
	return Reference{}, false
}

// embeddedScanPatterns re-derives the original scanner's per-prefix regex
// sweep (regex_strings_vars) used when a whole payload doesn't classify
// as a single reference but may contain one embedded in a function call,
// e.g. `format('{0}', github.event.issue.title)`.
var embeddedScanPatterns = []*regexp.Regexp{
	regexp.MustCompile(`secrets\.[A-Za-z0-9_\-.]+`),
	regexp.MustCompile(`github\.[A-Za-z0-9_\-.]+`),
	regexp.MustCompile(`env\.[A-Za-z0-9_\-.]+`),
	regexp.MustCompile(`steps\.[A-Za-z0-9_\-.]+`),
	regexp.MustCompile(`matrix\.[A-Za-z0-9_\-.]+`),
	regexp.MustCompile(`needs\.[A-Za-z0-9_\-.]+`),
	regexp.MustCompile(`strategy\.[A-Za-z0-9_\-.]+`),
	regexp.MustCompile(`runner\.[A-Za-z0-9_\-.]+`),
	regexp.MustCompile(`job\.[A-Za-z0-9_\-.]+`),
	regexp.MustCompile(`jobs\.[A-Za-z0-9_\-.]+`),
	regexp.MustCompile(`inputs\.[A-Za-z0-9_\-.]+`),
	regexp.MustCompile(`GITHUB_[A-Za-z0-9_\-.]+`),
	regexp.MustCompile(`RUNNER_[A-Za-z0-9_\-.]+`),
}

// ExtractReferences finds every maximal ${{ ... }} span in s, classifies
// each by its fixed prefix table, and for any span that doesn't classify
// directly, scans inside it (including inside function-call arguments)
// for embedded references. The result is de-duplicated by Expression.
func ExtractReferences(s string) []Reference {
	var out []Reference
	seen := map[string]bool{}
	add := func(r Reference) {
		if seen[r.Expression] {
			return
		}
		seen[r.Expression] = true
		out = append(out, r)
	}

	for _, m := range exprDelims.FindAllStringSubmatch(s, -1) {
		body := m[1]
		if body == "" {
			body = m[2]
		}
		body = strings.TrimSpace(body)
		if body == "" {
			continue
		}
		if ref, ok := classifyOne(body); ok {
			add(ref)
		}
		for _, pat := range embeddedScanPatterns {
			for _, match := range pat.FindAllString(body, -1) {
				if ref, ok := classifyOne(match); ok {
					add(ref)
				}
			}
		}
	}
	return out
}

// taintSource is one entry of the context taint-source catalog: an
// anchored (match-from-start) regex on a reference's Name, plus its
// severity.
type taintSource struct {
	pattern  *regexp.Regexp
	severity string
}

// taintSourceCatalog is the fixed high/medium/low catalog of context
// references considered attacker-controlled, ported from the taint
// source list in the original analyzer's CI plugin.
var taintSourceCatalog = []taintSource{
	{regexp.MustCompile(`^event\.issue\.title`), "high"},
	{regexp.MustCompile(`^event\.issue\.body`), "high"},
	{regexp.MustCompile(`^event\.pull_request\.title`), "high"},
	{regexp.MustCompile(`^event\.pull_request\.body`), "high"},
	{regexp.MustCompile(`^event\.pull_request\.head\.ref`), "low"},
	{regexp.MustCompile(`^event\.pull_request\.head\.label`), "low"},
	{regexp.MustCompile(`^event\.discussion\.title`), "high"},
	{regexp.MustCompile(`^event\.discussion\.body`), "high"},
	{regexp.MustCompile(`^event\.comment\.body`), "high"},
	{regexp.MustCompile(`^event\.review\.body`), "high"},
	{regexp.MustCompile(`^event\.review_comment\.body`), "high"},
	{regexp.MustCompile(`^event\.pages.*\.page_name`), "high"},
	{regexp.MustCompile(`^event\.commits.*\.message`), "medium"},
	{regexp.MustCompile(`^event\.commits.*\.author\.email`), "medium"},
	{regexp.MustCompile(`^event\.commits.*\.author\.name`), "medium"},
	{regexp.MustCompile(`^event\.head_commit\.message`), "medium"},
	{regexp.MustCompile(`^event\.head_commit\.author\.email`), "medium"},
	{regexp.MustCompile(`^event\.head_commit\.author\.name`), "medium"},
	{regexp.MustCompile(`^event\.head_commit\.committer\.email`), "medium"},
	{regexp.MustCompile(`^event\.head_commit\.committer\.name`), "medium"},
	{regexp.MustCompile(`^event\.workflow_run\.head_branch`), "low"},
	{regexp.MustCompile(`^event\.workflow_run\.head_commit\.message`), "medium"},
	{regexp.MustCompile(`^event\.workflow_run\.head_commit\.author\.email`), "medium"},
	{regexp.MustCompile(`^event\.workflow_run\.head_commit\.author\.name`), "medium"},
	{regexp.MustCompile(`^event\.workflow_run\.pull_requests.*\.head\.ref`), "low"},
	{regexp.MustCompile(`^head_ref`), "low"},
}

// objectTaintSources lists context references whose entire subtree is
// attacker-controlled (exact-name match, not a pattern), e.g. passing
// the whole `github.event.pull_request` object to a sink taints
// everything reachable under it.
var objectTaintSources = map[string]string{
	"event.comment":                  "medium",
	"event.issue.pull_request":       "medium",
	"event.issue":                    "medium",
	"event.pull_request":             "medium",
	"event.pull_request.commits":     "medium",
	"event.pull_request.head.repo":   "medium",
	"event.pull_request.labels":      "medium",
	"event.commits":                  "medium",
	"event.workflow_run":             "medium",
	"event.workflow_run.pull_requests": "medium",
}

// IsTaintSource reports whether ref is a context reference matching the
// taint-source catalog, and its severity.
func IsTaintSource(ref Reference) (severity string, isSource bool) {
	if ref.Kind != "context" {
		return "", false
	}
	for _, ts := range taintSourceCatalog {
		if ts.pattern.MatchString(ref.Name) {
			return ts.severity, true
		}
	}
	return "", false
}

// IsObjectTaintSource reports whether ref's entire subtree is
// attacker-controlled.
func IsObjectTaintSource(ref Reference) (severity string, isSource bool) {
	if ref.Kind != "context" {
		return "", false
	}
	sev, ok := objectTaintSources[ref.Name]
	return sev, ok
}

// Severity looks up the severity of a context reference name, trying the
// pattern catalog first and falling back to the object-level catalog,
// matching the original's GithubCI.get_severity fallback chain. When
// neither catalog matches, the original defaults to "high" (the comment
// there explains this was meant to be overridden once a JS-action
// source is identified); Argus preserves that default.
func Severity(name string) string {
	for _, ts := range taintSourceCatalog {
		if ts.pattern.MatchString(name) {
			return ts.severity
		}
	}
	for pattern, sev := range objectTaintSources {
		if pattern == name {
			return sev
		}
	}
	return "high"
}
