// Package plan turns a task description into a structured execution plan.
package plan

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/taskpilot/taskpilot/internal/extract"
	"github.com/taskpilot/taskpilot/internal/llm"
	"github.com/taskpilot/taskpilot/internal/prompt"
)

// ChangeType is the kind of file operation a planned change performs.
type ChangeType string

const (
	Create ChangeType = "CREATE"
	Modify ChangeType = "MODIFY"
	Delete ChangeType = "DELETE"
)

// PlannedChange is one file-level step of an execution plan.
type PlannedChange struct {
	Path        string     `json:"path"`
	Action      ChangeType `json:"action"`
	Description string     `json:"description"`
}

// ExecutionPlan is the ordered set of changes for a task. Degraded marks a
// plan synthesized after the model failed to produce a parseable one; the
// user sees it at confirmation and can cancel.
type ExecutionPlan struct {
	Task           string          `json:"task"`
	Summary        string          `json:"summary"`
	Changes        []PlannedChange `json:"changes"`
	EstimatedFiles int             `json:"estimated_files"`
	Degraded       bool            `json:"degraded,omitempty"`
}

// Planner builds execution plans with an LLM.
type Planner struct {
	llm     llm.Client
	repoDir string
	model   string
}

// NewPlanner creates a Planner. repoDir is used to resolve project prompt
// template overrides.
func NewPlanner(client llm.Client, repoDir, model string) *Planner {
	return &Planner{llm: client, repoDir: repoDir, model: model}
}

// Build produces an ExecutionPlan for the task. projectContext is an opaque
// retrieval blob and may be empty; files lists existing tracked paths.
//
// Planning never fails: any LLM or parse error degrades to a single-entry
// plan carrying the raw task, so the user still gets a confirmation step.
func (p *Planner) Build(ctx context.Context, task, projectContext string, files []string) *ExecutionPlan {
	tmpl, err := prompt.LoadTemplate("plan.md", p.repoDir)
	if err != nil {
		return degradedPlan(task)
	}
	rendered, err := prompt.Render(tmpl, prompt.Vars{
		"task":         task,
		"context":      projectContext,
		"file_listing": strings.Join(files, "\n"),
	})
	if err != nil {
		return degradedPlan(task)
	}

	resp, err := p.llm.Complete(ctx, llm.Request{
		System:   "You are a careful software planner. Respond with JSON only.",
		Messages: []llm.Message{{Role: "user", Content: rendered}},
		Model:    p.model,
		Purpose:  "plan",
	})
	if err != nil {
		return degradedPlan(task)
	}

	plan, err := parsePlan(resp)
	if err != nil || len(plan.Changes) == 0 {
		return degradedPlan(task)
	}

	normalize(plan, files)
	if len(plan.Changes) == 0 {
		return degradedPlan(task)
	}
	plan.Task = task
	plan.EstimatedFiles = len(plan.Changes)
	return plan
}

func parsePlan(resp string) (*ExecutionPlan, error) {
	raw, err := extract.FirstJSONObject(resp)
	if err != nil {
		return nil, err
	}
	var plan ExecutionPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// normalize uppercases actions, drops entries with no path, and downgrades
// CREATE to MODIFY for paths that already exist.
func normalize(plan *ExecutionPlan, files []string) {
	existing := make(map[string]bool, len(files))
	for _, f := range files {
		existing[f] = true
	}

	kept := plan.Changes[:0]
	for _, ch := range plan.Changes {
		ch.Path = strings.TrimSpace(ch.Path)
		if ch.Path == "" {
			continue
		}
		ch.Action = ChangeType(strings.ToUpper(string(ch.Action)))
		switch ch.Action {
		case Create:
			if existing[ch.Path] {
				ch.Action = Modify
			}
		case Modify, Delete:
		default:
			ch.Action = Modify
		}
		kept = append(kept, ch)
	}
	plan.Changes = kept
}

func degradedPlan(task string) *ExecutionPlan {
	return &ExecutionPlan{
		Task:    task,
		Summary: "Could not produce a structured plan; applying the task as a single free-form change.",
		Changes: []PlannedChange{{
			Action:      Modify,
			Description: task,
		}},
		EstimatedFiles: 1,
		Degraded:       true,
	}
}
