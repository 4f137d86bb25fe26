// Package apply writes planned changes into the working tree via LLM
// generated file content, with guards against destroying what is there.
package apply

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/taskpilot/taskpilot/internal/extract"
	"github.com/taskpilot/taskpilot/internal/llm"
	"github.com/taskpilot/taskpilot/internal/plan"
	"github.com/taskpilot/taskpilot/internal/prompt"
)

// ErrNoChanges means an entire plan produced zero file changes. Pushing an
// empty commit would be worse than failing, so callers treat this as fatal.
var ErrNoChanges = errors.New("no changes applied")

// FileChange records one applied file operation.
type FileChange struct {
	Path     string          `json:"path"`
	Action   plan.ChangeType `json:"action"`
	Added    int             `json:"added"`
	Removed  int             `json:"removed"`
	Rejected bool            `json:"rejected,omitempty"` // tripped the truncation guard
}

// Applier executes planned changes against a working tree.
type Applier struct {
	llm       llm.Client
	repoDir   string
	model     string
	protected []string
	logf      func(format string, args ...any)
}

// NewApplier creates an Applier rooted at repoDir. logf may be nil.
func NewApplier(client llm.Client, repoDir, model string, protected []string, logf func(string, ...any)) *Applier {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Applier{llm: client, repoDir: repoDir, model: model, protected: protected, logf: logf}
}

// Apply executes every change in the plan, in order. Protected and pathless
// entries are skipped with a progress note. A change whose replacement
// content trips the truncation guard leaves the file byte-identical and is
// recorded as rejected. Returns ErrNoChanges if nothing was written.
func (a *Applier) Apply(ctx context.Context, task, projectContext string, p *plan.ExecutionPlan) ([]FileChange, error) {
	var changes []FileChange
	for _, ch := range p.Changes {
		if ch.Path == "" {
			a.logf("skipping plan entry with no path: %s", ch.Description)
			continue
		}
		if IsProtected(ch.Path, a.protected) {
			a.logf("skipping protected path: %s", ch.Path)
			continue
		}

		fc, err := a.applyOne(ctx, task, projectContext, ch)
		if err != nil {
			return changes, fmt.Errorf("apply %s %s: %w", ch.Action, ch.Path, err)
		}
		if fc != nil {
			changes = append(changes, *fc)
		}
	}

	if countEffective(changes) == 0 {
		return changes, ErrNoChanges
	}
	return changes, nil
}

func countEffective(changes []FileChange) int {
	n := 0
	for _, c := range changes {
		if !c.Rejected {
			n++
		}
	}
	return n
}

func (a *Applier) applyOne(ctx context.Context, task, projectContext string, ch plan.PlannedChange) (*FileChange, error) {
	abs := filepath.Join(a.repoDir, ch.Path)

	switch ch.Action {
	case plan.Delete:
		content, err := os.ReadFile(abs)
		if os.IsNotExist(err) {
			a.logf("delete skipped, file missing: %s", ch.Path)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if err := os.Remove(abs); err != nil {
			return nil, err
		}
		a.logf("deleted %s", ch.Path)
		return &FileChange{Path: ch.Path, Action: plan.Delete, Removed: countLines(string(content))}, nil

	case plan.Create:
		if _, err := os.Stat(abs); err == nil {
			// Planner normalization should have caught this; modify instead
			// of clobbering.
			ch.Action = plan.Modify
			return a.applyOne(ctx, task, projectContext, ch)
		}
		content, err := a.generate(ctx, "create-file.md", prompt.Vars{
			"task":        task,
			"path":        ch.Path,
			"description": ch.Description,
			"context":     projectContext,
		})
		if err != nil {
			return nil, err
		}
		if err := writeFile(abs, content); err != nil {
			return nil, err
		}
		a.logf("created %s", ch.Path)
		return &FileChange{Path: ch.Path, Action: plan.Create, Added: countLines(content)}, nil

	case plan.Modify:
		orig, err := os.ReadFile(abs)
		if os.IsNotExist(err) {
			ch.Action = plan.Create
			return a.applyOne(ctx, task, projectContext, ch)
		}
		if err != nil {
			return nil, err
		}
		replacement, err := a.generate(ctx, "modify-file.md", prompt.Vars{
			"task":        task,
			"path":        ch.Path,
			"description": ch.Description,
			"content":     string(orig),
			"context":     projectContext,
		})
		if err != nil {
			return nil, err
		}
		return a.writeModified(ch.Path, abs, plan.Modify, string(orig), replacement)

	default:
		return nil, fmt.Errorf("unknown change action %q", ch.Action)
	}
}

// FixFile regenerates one file from its current content and a problem
// report. Shared by the build fix loop, the review loop, and the CI fix
// loop. The truncation guard applies; a rejected fix returns nil without
// touching the file.
func (a *Applier) FixFile(ctx context.Context, path, problems string) (*FileChange, error) {
	abs := filepath.Join(a.repoDir, path)
	orig, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	replacement, err := a.generate(ctx, "fix-file.md", prompt.Vars{
		"path":     path,
		"problems": problems,
		"content":  string(orig),
	})
	if err != nil {
		return nil, err
	}
	return a.writeModified(path, abs, plan.Modify, string(orig), replacement)
}

// FixFromLogs regenerates one file from a CI log excerpt.
func (a *Applier) FixFromLogs(ctx context.Context, path, kind, logs string) (*FileChange, error) {
	abs := filepath.Join(a.repoDir, path)
	orig, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	replacement, err := a.generate(ctx, "ci-fix.md", prompt.Vars{
		"path":    path,
		"kind":    kind,
		"logs":    logs,
		"content": string(orig),
	})
	if err != nil {
		return nil, err
	}
	return a.writeModified(path, abs, plan.Modify, string(orig), replacement)
}

// writeModified applies the truncation guard and writes the replacement.
// A file over 50 lines that would shrink below half its size is assumed to
// be a truncated model response, not a real edit.
func (a *Applier) writeModified(path, abs string, action plan.ChangeType, orig, replacement string) (*FileChange, error) {
	origLines := countLines(orig)
	newLines := countLines(replacement)

	if origLines > 50 && newLines*2 < origLines {
		a.logf("rejected suspicious shrink of %s (%d -> %d lines), file left unchanged", path, origLines, newLines)
		return &FileChange{Path: path, Action: action, Rejected: true}, nil
	}

	if err := writeFile(abs, replacement); err != nil {
		return nil, err
	}
	fc := &FileChange{Path: path, Action: action}
	if newLines > origLines {
		fc.Added = newLines - origLines
	} else {
		fc.Removed = origLines - newLines
	}
	a.logf("modified %s (%d -> %d lines)", path, origLines, newLines)
	return fc, nil
}

func (a *Applier) generate(ctx context.Context, template string, vars prompt.Vars) (string, error) {
	tmpl, err := prompt.LoadTemplate(template, a.repoDir)
	if err != nil {
		return "", err
	}
	rendered, err := prompt.Render(tmpl, vars)
	if err != nil {
		return "", err
	}
	resp, err := a.llm.Complete(ctx, llm.Request{
		System:   "You are a precise code generator. Respond with file content only.",
		Messages: []llm.Message{{Role: "user", Content: rendered}},
		Model:    a.model,
		Purpose:  strings.TrimSuffix(template, ".md"),
	})
	if err != nil {
		return "", err
	}
	content := extract.StripCodeFences(resp)
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("model returned empty content")
	}
	return content, nil
}

func writeFile(abs, content string) error {
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(abs, []byte(content), 0o644)
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + boolToInt(!strings.HasSuffix(s, "\n"))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
