// Package orchestrator sequences a full task-to-merged-PR run as a strict
// linear state machine with bounded review and CI fix cycles.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskpilot/taskpilot/internal/apply"
	"github.com/taskpilot/taskpilot/internal/ci"
	"github.com/taskpilot/taskpilot/internal/config"
	"github.com/taskpilot/taskpilot/internal/gh"
	"github.com/taskpilot/taskpilot/internal/plan"
	"github.com/taskpilot/taskpilot/internal/prompt"
	"github.com/taskpilot/taskpilot/internal/review"
	"github.com/taskpilot/taskpilot/internal/runstore"
	"github.com/taskpilot/taskpilot/internal/vcs"
)

// Planner builds an execution plan for a task.
type Planner interface {
	Build(ctx context.Context, task, projectContext string, files []string) *plan.ExecutionPlan
}

// Applier writes planned changes into the working tree.
type Applier interface {
	Apply(ctx context.Context, task, projectContext string, p *plan.ExecutionPlan) ([]apply.FileChange, error)
}

// Validator runs local build and test validation.
type Validator interface {
	EnsureBuilds(ctx context.Context) error
	RunTests(ctx context.Context) error
}

// Repo is the version-control surface the orchestrator drives.
type Repo interface {
	CreateBranch(name string) error
	HasChanges() (bool, error)
	CommitAll(message string) error
	Push(branch string) error
	ForcePush(branch string) error
	ListFiles() ([]string, error)
	Rebase(keepOurs bool) (*vcs.RebaseResult, error)
}

// Gateway is the PR surface the orchestrator drives.
type Gateway interface {
	Create(opts gh.CreateOpts) (*gh.PullRequest, error)
	FindByBranch(branch string) (*gh.PullRequest, error)
	Mergeable(number int) (bool, error)
	Merge(number int, strategy string) error
}

// Publisher commits and pushes fix commits produced inside the review and
// CI cycles.
type Publisher interface {
	Publish(message string) error
}

// ReviewFunc runs the self-review loop for the current branch.
type ReviewFunc func(ctx context.Context, task string, pub Publisher) *review.Outcome

// CIFunc watches CI for the branch, fixing failures through pub.
type CIFunc func(ctx context.Context, branch string, pub Publisher) *ci.Result

// ContextProvider supplies opaque retrieval context for planning.
type ContextProvider interface {
	Search(ctx context.Context, query string, topK int) (string, error)
}

// EventSink receives state transitions for offline analysis.
type EventSink interface {
	LogEvent(runID, state, detail string) error
}

// Hooks are the caller-supplied observation and confirmation points. All
// are optional; a nil ConfirmPlan auto-confirms.
type Hooks struct {
	OnProgress    func(text string)
	OnStateChange func(s State)
	ConfirmPlan   func(p *plan.ExecutionPlan) bool
}

// Deps are the collaborators one Orchestrator drives. Store and Events are
// optional.
type Deps struct {
	Planner   Planner
	Applier   Applier
	Validator Validator
	Repo      Repo
	Gateway   Gateway
	Review    ReviewFunc
	CI        CIFunc
	Context   ContextProvider
	Store     *runstore.Store
	Events    EventSink
}

// Orchestrator owns the state machine for pipeline runs. All run-scoped
// mutable state lives in a per-run context, so one Orchestrator value can
// serve sequential runs.
type Orchestrator struct {
	cfg   config.Pipeline
	deps  Deps
	hooks Hooks
}

// New creates an Orchestrator.
func New(cfg config.Pipeline, deps Deps, hooks Hooks) *Orchestrator {
	return &Orchestrator{cfg: cfg, deps: deps, hooks: hooks}
}

// runContext carries every run-scoped counter and artifact reference.
type runContext struct {
	id      string
	rec     *runstore.Record
	task    string
	plan    *plan.ExecutionPlan
	changes []apply.FileChange
	branch  string
	pr      *gh.PullRequest

	reviewIterations int
	ciRuns           int
	state            State
	errs             []string
	started          time.Time
}

// Run executes the pipeline for one task. It never returns an error and
// never panics past its own boundary: every failure becomes a Report with
// success=false and whatever partial artifacts exist.
func (o *Orchestrator) Run(ctx context.Context, task string) (report *Report) {
	rc := &runContext{task: task, started: time.Now()}
	if o.deps.Store != nil {
		if rec, err := o.deps.Store.Create(task); err == nil {
			rc.rec = rec
			rc.id = rec.ID
		}
	}
	if rc.id == "" {
		rc.id = rc.started.UTC().Format("20060102-150405")
	}

	defer func() {
		if r := recover(); r != nil {
			rc.errs = append(rc.errs, fmt.Sprintf("panic: %v", r))
			report = o.finish(rc, StateFailed, false, "internal error, run aborted")
		}
	}()

	return o.drive(ctx, rc)
}

func (o *Orchestrator) drive(ctx context.Context, rc *runContext) *Report {
	// Analyzing: gather retrieval context and the file listing. Both are
	// best-effort; planning tolerates their absence.
	o.setState(rc, StateAnalyzing, "")
	projectContext := ""
	if o.deps.Context != nil {
		pc, err := o.deps.Context.Search(ctx, rc.task, o.cfg.Context.TopK)
		if err != nil {
			o.progressf("context retrieval failed, planning without it: %v", err)
		} else {
			projectContext = pc
		}
	}
	files, err := o.deps.Repo.ListFiles()
	if err != nil {
		o.progressf("file listing failed, planning without it: %v", err)
	}

	p := o.deps.Planner.Build(ctx, rc.task, projectContext, files)
	rc.plan = p
	if o.deps.Store != nil && rc.rec != nil {
		_ = o.deps.Store.SavePlan(rc.id, p)
	}
	o.setState(rc, StatePlanReady, p.Summary)
	o.progressf("plan: %s (%d file(s))", p.Summary, len(p.Changes))

	o.setState(rc, StateAwaitingConfirmation, "")
	if o.hooks.ConfirmPlan != nil && !o.hooks.ConfirmPlan(p) {
		return o.finish(rc, StateNeedsUserInput, false, "Cancelled by user")
	}

	o.setState(rc, StateMakingChanges, "")
	changes, err := o.deps.Applier.Apply(ctx, rc.task, projectContext, p)
	rc.changes = changes
	if err != nil {
		if errors.Is(err, apply.ErrNoChanges) {
			return o.fail(rc, "no changes applied", err)
		}
		return o.fail(rc, "applying changes failed", err)
	}

	if err := o.deps.Validator.EnsureBuilds(ctx); err != nil {
		// The validator reverted the tree on its way out.
		rc.changes = nil
		return o.fail(rc, "build could not be fixed locally, tree reverted", err)
	}
	if o.cfg.Build.RunLocalTests {
		if err := o.deps.Validator.RunTests(ctx); err != nil {
			rc.errs = append(rc.errs, fmt.Sprintf("warning: %v", err))
			o.progressf("local tests still failing, deferring to CI: %v", err)
		}
	}

	o.setState(rc, StateCreatingBranch, "")
	rc.branch = branchName(rc.task)
	if err := o.deps.Repo.CreateBranch(rc.branch); err != nil {
		return o.fail(rc, "branch creation failed", err)
	}

	o.setState(rc, StateCommitting, "")
	if err := o.deps.Repo.CommitAll(title(rc.task)); err != nil {
		return o.fail(rc, "commit failed", err)
	}

	o.setState(rc, StatePushing, "")
	if err := o.deps.Repo.Push(rc.branch); err != nil {
		return o.fail(rc, "push failed", err)
	}

	o.setState(rc, StateCreatingPR, "")
	pr, err := o.deps.Gateway.FindByBranch(rc.branch)
	if err != nil {
		o.progressf("PR lookup failed: %v", err)
	}
	if pr == nil {
		pr, err = o.deps.Gateway.Create(gh.CreateOpts{
			Title:  title(rc.task),
			Body:   o.prBody(rc),
			Branch: rc.branch,
			Base:   o.cfg.Repo.BaseBranch,
		})
		if err != nil {
			return o.fail(rc, "PR creation failed", err)
		}
	} else {
		o.progressf("reusing open PR #%d", pr.Number)
	}
	rc.pr = pr
	if rc.rec != nil {
		rc.rec.Branch = rc.branch
		rc.rec.PRNumber = pr.Number
	}

	if o.deps.Review != nil {
		o.setState(rc, StateReviewing, "")
		pub := &branchPublisher{o: o, rc: rc, fixing: StateFixingReview, back: StateReviewing}
		out := o.deps.Review(ctx, rc.task, pub)
		rc.reviewIterations = out.Iterations
		o.progressf("review finished after %d iteration(s): %s", out.Iterations, out.Reason)
	}

	if o.cfg.CI.RequirePass && o.deps.CI != nil {
		o.setState(rc, StateWaitingForCI, "")
		pub := &branchPublisher{o: o, rc: rc, fixing: StateFixingCI, back: StateWaitingForCI}
		res := o.deps.CI(ctx, rc.branch, pub)
		rc.ciRuns = res.Runs
		switch res.Status {
		case ci.StatusSuccess:
			o.progressf("CI passed")
		case ci.StatusCancelled:
			return o.fail(rc, "CI run was cancelled", errors.New(res.Message))
		default:
			return o.fail(rc, fmt.Sprintf("CI failed after %d attempts", res.Runs), errors.New(res.Message))
		}
	}

	mergeable, err := o.deps.Gateway.Mergeable(rc.pr.Number)
	if err != nil {
		o.progressf("mergeability check failed, attempting merge anyway: %v", err)
		mergeable = true
	}
	if !mergeable {
		o.setState(rc, StateResolvingConflicts, "")
		res, err := o.deps.Repo.Rebase(o.cfg.Merge.KeepOursOnConflict)
		if err != nil {
			return o.fail(rc, "merge conflicts could not be resolved automatically", err)
		}
		if res.Conflicted && !res.Resolved {
			return o.fail(rc, "merge conflicts require manual resolution", nil)
		}
		if res.Resolved {
			o.progressf("conflicts resolved keeping this branch's version: %s", strings.Join(res.Files, ", "))
		}
		if err := o.deps.Repo.ForcePush(rc.branch); err != nil {
			return o.fail(rc, "push after rebase failed", err)
		}
	}

	if o.cfg.Merge.Auto {
		o.setState(rc, StateMerging, "")
		if err := o.deps.Gateway.Merge(rc.pr.Number, o.cfg.Merge.Strategy); err != nil {
			return o.fail(rc, "merge failed, PR left open", err)
		}
		return o.finish(rc, StateCompleted, true, fmt.Sprintf("PR #%d merged: %s", rc.pr.Number, rc.pr.URL))
	}
	return o.finish(rc, StateCompleted, true, fmt.Sprintf("PR #%d ready for review: %s", rc.pr.Number, rc.pr.URL))
}

// branchPublisher commits and pushes fix commits for the review and CI
// cycles, flipping the state to the fixing variant for the duration.
type branchPublisher struct {
	o      *Orchestrator
	rc     *runContext
	fixing State
	back   State
}

func (p *branchPublisher) Publish(message string) error {
	p.o.setState(p.rc, p.fixing, message)
	defer p.o.setState(p.rc, p.back, "")

	dirty, err := p.o.deps.Repo.HasChanges()
	if err != nil {
		return err
	}
	if dirty {
		if err := p.o.deps.Repo.CommitAll(message); err != nil {
			return err
		}
	}
	return p.o.deps.Repo.Push(p.rc.branch)
}

func (o *Orchestrator) setState(rc *runContext, s State, detail string) {
	rc.state = s
	if o.hooks.OnStateChange != nil {
		o.hooks.OnStateChange(s)
	}
	if o.deps.Events != nil {
		_ = o.deps.Events.LogEvent(rc.id, string(s), detail)
	}
	if o.deps.Store != nil && rc.rec != nil {
		rc.rec.State = string(s)
		_ = o.deps.Store.Save(rc.rec)
	}
}

func (o *Orchestrator) progressf(format string, args ...any) {
	if o.hooks.OnProgress != nil {
		o.hooks.OnProgress(fmt.Sprintf(format, args...))
	}
}

func (o *Orchestrator) fail(rc *runContext, summary string, err error) *Report {
	if err != nil {
		rc.errs = append(rc.errs, err.Error())
	}
	return o.finish(rc, StateFailed, false, summary)
}

func (o *Orchestrator) finish(rc *runContext, s State, success bool, summary string) *Report {
	o.setState(rc, s, summary)

	report := &Report{
		Success:          success,
		State:            s,
		Branch:           rc.branch,
		ChangedFiles:     effectiveChanges(rc.changes),
		ReviewIterations: rc.reviewIterations,
		CIRuns:           rc.ciRuns,
		Duration:         time.Since(rc.started),
		Summary:          summary,
		Errors:           rc.errs,
	}
	if rc.pr != nil {
		report.PRNumber = rc.pr.Number
		report.PRURL = rc.pr.URL
	}

	if o.deps.Store != nil && rc.rec != nil {
		rc.rec.FinishedAt = time.Now().UTC().Format(time.RFC3339)
		_ = o.deps.Store.Save(rc.rec)
		_ = o.deps.Store.SaveReport(rc.id, report)
	}
	return report
}

// effectiveChanges drops rejected records: a tripped truncation guard left
// the file untouched, so it is not a changed file.
func effectiveChanges(changes []apply.FileChange) []apply.FileChange {
	var out []apply.FileChange
	for _, c := range changes {
		if !c.Rejected {
			out = append(out, c)
		}
	}
	return out
}

// branchName derives a stable branch name from the task text.
func branchName(task string) string {
	words := strings.Fields(strings.ToLower(task))
	if len(words) > 6 {
		words = words[:6]
	}
	name := vcs.SanitizeBranch(strings.Join(words, "-"))
	if name == "" {
		name = "task"
	}
	return "taskpilot/" + name
}

// title derives a commit/PR title from the task's first line.
func title(task string) string {
	line := task
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if len(line) > 72 {
		line = line[:69] + "..."
	}
	return line
}

func (o *Orchestrator) prBody(rc *runContext) string {
	var changes []string
	for _, c := range effectiveChanges(rc.changes) {
		changes = append(changes, fmt.Sprintf("- %s `%s` (+%d/-%d)", strings.ToLower(string(c.Action)), c.Path, c.Added, c.Removed))
	}

	body := rc.plan.Summary + "\n\n" + strings.Join(changes, "\n")
	tmpl, err := prompt.LoadTemplate("pr-body.md", o.cfg.Repo.Dir)
	if err == nil {
		rendered, rerr := prompt.Render(tmpl, prompt.Vars{
			"summary": rc.plan.Summary,
			"task":    rc.task,
			"changes": strings.Join(changes, "\n"),
		})
		if rerr == nil {
			body = rendered
		}
	}
	if o.deps.Store != nil && rc.rec != nil {
		_ = o.deps.Store.SavePrompt(rc.id, "pr-body", body)
	}
	return body
}
