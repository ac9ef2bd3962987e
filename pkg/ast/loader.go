package ast

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseWorkflow decodes a workflow YAML document into a Workflow.
//
// The `on:` key is looked up under both the literal key "on" and the
// key "true": older YAML 1.1 parsers (and PyYAML's default loader, which
// the original analyzer was built against) read the unquoted scalar `on`
// as the boolean `true` when it appears as a mapping key, so a workflow
// saved by tooling that round-tripped through such a parser can have its
// trigger block keyed by the boolean rather than the string. gopkg.in/
// yaml.v3 parses `on:` as the string key "on", but Argus still checks
// both keys defensively so a workflow produced by (or hand-edited against)
// the older behavior is never silently skipped.
func ParseWorkflow(data []byte, path string) (*Workflow, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing workflow %s: %w", path, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("parsing workflow %s: empty document", path)
	}
	doc := root.Content[0]

	w := &Workflow{Path: path, Jobs: map[string]*Job{}}
	m := mapping(doc)

	if n := m["name"]; n != nil {
		w.Name = stringVal(n)
	}

	onNode := m["on"]
	if onNode == nil {
		onNode = m["true"]
	}
	if onNode != nil {
		events, err := parseEvents(onNode)
		if err != nil {
			return nil, fmt.Errorf("parsing workflow %s triggers: %w", path, err)
		}
		w.On = events
	}

	if n := m["permissions"]; n != nil {
		w.Permissions = parsePermissions(n)
	}

	if n := m["env"]; n != nil {
		w.Env = parseEnv(n)
	}

	if jobsNode := m["jobs"]; jobsNode != nil {
		jm := mapping(jobsNode)
		for id, jobNode := range jm {
			job, err := parseJob(id, jobNode)
			if err != nil {
				return nil, fmt.Errorf("parsing workflow %s job %s: %w", path, id, err)
			}
			w.Jobs[strings.ToLower(id)] = job
		}
	}

	return w, nil
}

// ParseAction decodes an action.yml/action.yaml document into an Action.
func ParseAction(data []byte, path string) (*Action, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing action %s: %w", path, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("parsing action %s: empty document", path)
	}
	doc := root.Content[0]
	m := mapping(doc)

	a := &Action{Path: path, Inputs: map[string]*ActionInput{}, Outputs: map[string]*ActionOutput{}}
	if n := m["name"]; n != nil {
		a.Name = n.Value
	}

	if inputsNode := m["inputs"]; inputsNode != nil {
		im := mapping(inputsNode)
		for name, spec := range im {
			sm := mapping(spec)
			in := &ActionInput{Name: name, Required: true}
			if req := sm["required"]; req != nil {
				in.Required = req.Value == "true"
			}
			if def := sm["default"]; def != nil {
				in.Default = stringVal(def)
			}
			a.Inputs[strings.ToLower(name)] = in
		}
	}

	if outputsNode := m["outputs"]; outputsNode != nil {
		om := mapping(outputsNode)
		for name, spec := range om {
			sm := mapping(spec)
			out := &ActionOutput{Name: name}
			if val := sm["value"]; val != nil {
				out.Value = stringVal(val)
			}
			a.Outputs[strings.ToLower(name)] = out
		}
	}

	a.Runs = parseActionRuns(m["runs"])

	return a, nil
}

// parseActionRuns resolves the `runs.using` discriminator via an explicit
// dispatch table rather than dynamic subclass registration, per the
// redesign note for this component: the using-value is looked up in a
// fixed map populated at package init, with an unrecognized or missing
// value falling back to docker (matching ghaction.py's
// "else -> treated as docker" default).
var runsUsingTable = map[string]ActionRunsUsing{
	"node12":    RunsUsingNode12,
	"node14":    RunsUsingNode14,
	"node16":    RunsUsingNode16,
	"node20":    RunsUsingNode20,
	"composite": RunsUsingComposite,
	"docker":    RunsUsingDocker,
}

func parseActionRuns(node *yaml.Node) *ActionRuns {
	runs := &ActionRuns{Using: RunsUsingDocker}
	if node == nil {
		return runs
	}
	m := mapping(node)
	if using := m["using"]; using != nil {
		if resolved, ok := runsUsingTable[strings.ToLower(using.Value)]; ok {
			runs.Using = resolved
		}
	}
	switch {
	case runs.Using.IsJS():
		if main := m["main"]; main != nil {
			runs.Main = main.Value
		}
	case runs.Using == RunsUsingComposite:
		if steps := m["steps"]; steps != nil {
			runs.Steps = parseSteps(steps)
		}
	default: // docker
		if image := m["image"]; image != nil {
			runs.Image = image.Value
		}
	}
	return runs
}

func parseEvents(node *yaml.Node) ([]Event, error) {
	var events []Event
	switch node.Kind {
	case yaml.ScalarNode:
		events = append(events, &WebhookEvent{Hook: node.Value})
	case yaml.SequenceNode:
		for _, item := range node.Content {
			events = append(events, &WebhookEvent{Hook: item.Value})
		}
	case yaml.MappingNode:
		m := mapping(node)
		for name, body := range m {
			switch name {
			case "schedule":
				events = append(events, parseScheduledEvent(body))
			case "workflow_dispatch":
				events = append(events, parseWorkflowDispatchEvent(body))
			case "workflow_call":
				events = append(events, parseWorkflowCallEvent(body))
			case "repository_dispatch":
				events = append(events, parseRepositoryDispatchEvent(body))
			default:
				we := &WebhookEvent{Hook: name}
				if body != nil {
					bm := mapping(body)
					if types := bm["types"]; types != nil {
						we.Types = stringList(types)
					}
				}
				events = append(events, we)
			}
		}
	}
	return events, nil
}

func parseScheduledEvent(node *yaml.Node) Event {
	se := &ScheduledEvent{}
	if node == nil {
		return se
	}
	for _, item := range node.Content {
		m := mapping(item)
		if cron := m["cron"]; cron != nil {
			se.Cron = append(se.Cron, cron.Value)
		}
	}
	return se
}

func parseWorkflowDispatchEvent(node *yaml.Node) Event {
	wd := &WorkflowDispatchEvent{Inputs: map[string]*DispatchInput{}}
	if node == nil {
		return wd
	}
	m := mapping(node)
	if inputsNode := m["inputs"]; inputsNode != nil {
		im := mapping(inputsNode)
		for name, spec := range im {
			sm := mapping(spec)
			di := &DispatchInput{Name: name}
			if def := sm["default"]; def != nil {
				di.Default = stringVal(def)
			}
			if req := sm["required"]; req != nil {
				di.Required = req.Value == "true"
			}
			wd.Inputs[strings.ToLower(name)] = di
		}
	}
	return wd
}

func parseWorkflowCallEvent(node *yaml.Node) Event {
	wc := &WorkflowCallEvent{Secrets: map[string]*WorkflowCallSecret{}, Outputs: map[string]*WorkflowCallOutput{}}
	if node == nil {
		return wc
	}
	m := mapping(node)
	if inputsNode := m["inputs"]; inputsNode != nil {
		im := mappingOrdered(inputsNode)
		for _, kv := range im {
			sm := mapping(kv.value)
			in := &WorkflowCallInput{Name: kv.key}
			if def := sm["default"]; def != nil {
				in.Default = stringVal(def)
			}
			if req := sm["required"]; req != nil {
				in.Required = req.Value == "true"
			}
			if typ := sm["type"]; typ != nil {
				in.Type = typ.Value
			}
			wc.Inputs = append(wc.Inputs, in)
		}
	}
	if secretsNode := m["secrets"]; secretsNode != nil {
		sm := mapping(secretsNode)
		for name, spec := range sm {
			specMap := mapping(spec)
			sec := &WorkflowCallSecret{Name: name}
			if req := specMap["required"]; req != nil {
				sec.Required = req.Value == "true"
			}
			wc.Secrets[strings.ToLower(name)] = sec
		}
	}
	if outputsNode := m["outputs"]; outputsNode != nil {
		om := mapping(outputsNode)
		for name, spec := range om {
			specMap := mapping(spec)
			out := &WorkflowCallOutput{Name: name}
			if val := specMap["value"]; val != nil {
				out.Value = stringVal(val)
			}
			wc.Outputs[strings.ToLower(name)] = out
		}
	}
	return wc
}

func parseRepositoryDispatchEvent(node *yaml.Node) Event {
	rd := &RepositoryDispatchEvent{}
	if node == nil {
		return rd
	}
	m := mapping(node)
	if types := m["types"]; types != nil {
		rd.Types = stringList(types)
	}
	return rd
}

func parsePermissions(node *yaml.Node) *Permissions {
	p := &Permissions{}
	if node.Kind == yaml.ScalarNode {
		p.All = stringVal(node)
		return p
	}
	p.Scopes = map[string]*String{}
	m := mapping(node)
	for name, val := range m {
		p.Scopes[name] = stringVal(val)
	}
	return p
}

func parseEnv(node *yaml.Node) *Env {
	e := &Env{}
	if node.Kind == yaml.ScalarNode {
		e.Expression = stringVal(node)
		return e
	}
	e.Vars = map[string]*String{}
	m := mapping(node)
	for name, val := range m {
		e.Vars[name] = stringVal(val)
	}
	return e
}

func parseJob(id string, node *yaml.Node) (*Job, error) {
	job := &Job{ID: id}
	m := mapping(node)

	if name := m["name"]; name != nil {
		job.Name = stringVal(name)
	}
	if needs := m["needs"]; needs != nil {
		job.Needs = stringList(needs)
	}
	if perms := m["permissions"]; perms != nil {
		job.Permissions = parsePermissions(perms)
	}
	if env := m["env"]; env != nil {
		job.Env = parseEnv(env)
	}
	if ifNode := m["if"]; ifNode != nil {
		job.If = stringVal(ifNode)
	}
	if outputsNode := m["outputs"]; outputsNode != nil {
		job.Outputs = map[string]*Output{}
		om := mapping(outputsNode)
		for name, val := range om {
			job.Outputs[name] = &Output{Name: name, Value: stringVal(val)}
		}
	}

	// Discriminator for job kind: presence of `uses:` means a reusable
	// workflow call; otherwise the job runs its own steps. This is the
	// explicit dispatch-table replacement for the dynamic job-kind
	// detection the redesign note calls for.
	if uses := m["uses"]; uses != nil {
		wc := &WorkflowCall{Uses: stringVal(uses), Inputs: map[string]*Input{}, Secrets: map[string]*String{}}
		if withNode := m["with"]; withNode != nil {
			wm := mapping(withNode)
			for name, val := range wm {
				wc.Inputs[strings.ToLower(name)] = &Input{Name: name, Value: stringVal(val)}
			}
		}
		if secretsNode := m["secrets"]; secretsNode != nil {
			if secretsNode.Kind == yaml.ScalarNode && secretsNode.Value == "inherit" {
				wc.InheritSecrets = true
			} else {
				sm := mapping(secretsNode)
				for name, val := range sm {
					wc.Secrets[strings.ToLower(name)] = stringVal(val)
				}
			}
		}
		job.WorkflowCall = wc
	} else if stepsNode := m["steps"]; stepsNode != nil {
		job.Steps = parseSteps(stepsNode)
	}

	return job, nil
}

func parseSteps(node *yaml.Node) []*Step {
	var steps []*Step
	for _, item := range node.Content {
		m := mapping(item)
		step := &Step{}
		if id := m["id"]; id != nil {
			step.ID = id.Value
		}
		if ifNode := m["if"]; ifNode != nil {
			step.If = stringVal(ifNode)
		}
		if name := m["name"]; name != nil {
			step.Name = stringVal(name)
		}
		if env := m["env"]; env != nil {
			step.Env = parseEnv(env)
		}
		if cont := m["continue-on-error"]; cont != nil {
			step.ContinueOnError = cont.Value == "true"
		}

		// Discriminator for step kind: `run:` vs `uses:`.
		if run := m["run"]; run != nil {
			execRun := &ExecRun{Run: stringVal(run)}
			if shell := m["shell"]; shell != nil {
				execRun.Shell = stringVal(shell)
			}
			if wd := m["working-directory"]; wd != nil {
				execRun.WorkingDirectory = stringVal(wd)
			}
			step.Exec = execRun
		} else if uses := m["uses"]; uses != nil {
			execAction := &ExecAction{Uses: stringVal(uses), Inputs: map[string]*Input{}}
			if withNode := m["with"]; withNode != nil {
				wm := mapping(withNode)
				for name, val := range wm {
					execAction.Inputs[strings.ToLower(name)] = &Input{Name: name, Value: stringVal(val)}
				}
			}
			step.Exec = execAction
		}

		steps = append(steps, step)
	}
	return steps
}

// --- yaml.Node helpers ---

func pos(n *yaml.Node) *Position {
	if n == nil {
		return nil
	}
	return &Position{Line: n.Line, Col: n.Column}
}

func stringVal(n *yaml.Node) *String {
	if n == nil {
		return nil
	}
	return &String{Value: n.Value, Quoted: n.Style == yaml.DoubleQuotedStyle || n.Style == yaml.SingleQuotedStyle, Pos: pos(n)}
}

func stringList(n *yaml.Node) []string {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.ScalarNode {
		return []string{n.Value}
	}
	var out []string
	for _, item := range n.Content {
		out = append(out, item.Value)
	}
	return out
}

// mapping decodes a YAML mapping node into a lowercase-keyed map of value
// nodes, matching GitHub Actions' case-insensitive key semantics.
func mapping(n *yaml.Node) map[string]*yaml.Node {
	out := map[string]*yaml.Node{}
	if n == nil || n.Kind != yaml.MappingNode {
		return out
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := strings.ToLower(n.Content[i].Value)
		out[key] = n.Content[i+1]
	}
	return out
}

type orderedEntry struct {
	key   string
	value *yaml.Node
}

// mappingOrdered preserves declaration order, needed where default-value
// evaluation order is significant (workflow_call inputs).
func mappingOrdered(n *yaml.Node) []orderedEntry {
	var out []orderedEntry
	if n == nil || n.Kind != yaml.MappingNode {
		return out
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, orderedEntry{key: n.Content[i].Value, value: n.Content[i+1]})
	}
	return out
}
