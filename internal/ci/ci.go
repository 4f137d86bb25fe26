// Package ci polls GitHub workflow runs for a branch and drives the
// bounded CI fix loop.
package ci

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/taskpilot/taskpilot/internal/apply"
	"github.com/taskpilot/taskpilot/internal/gh"
	"github.com/taskpilot/taskpilot/internal/validate"
)

// Status is the pipeline-level view of a CI run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// RunSource reads workflow runs. Satisfied by gh.Client.
type RunSource interface {
	LatestRun(branch string) (*gh.Run, error)
	RunLogs(runID int64) (string, error)
}

// Fixer regenerates a file from a CI log excerpt.
type Fixer interface {
	FixFromLogs(ctx context.Context, path, kind, logs string) (*apply.FileChange, error)
}

// Publisher commits and pushes the current branch.
type Publisher interface {
	Publish(message string) error
}

// Fallback re-validates locally when CI logs are unavailable. A nil error
// means the fallback repaired or confirmed the tree and a retry is worth
// pushing.
type Fallback func(ctx context.Context) error

// Result is the terminal outcome of watching CI for a branch.
type Result struct {
	Status  Status
	Runs    int // fix attempts consumed
	Message string
}

// Watcher polls CI and fixes failures.
type Watcher struct {
	runs     RunSource
	fixer    Fixer
	pub      Publisher
	fallback Fallback

	// OnPoll, when set, receives the classified status of every observed
	// run. Used to record poll history for offline stats.
	OnPoll func(Status)

	pollInterval time.Duration
	waitWindow   time.Duration
	maxRetries   int
	logf         func(format string, args ...any)

	sleep func(time.Duration)
	now   func() time.Time
}

// NewWatcher creates a Watcher. fallback and logf may be nil.
func NewWatcher(runs RunSource, fixer Fixer, pub Publisher, fallback Fallback, pollInterval, waitWindow time.Duration, maxRetries int, logf func(string, ...any)) *Watcher {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	if waitWindow <= 0 {
		waitWindow = 30 * time.Minute
	}
	return &Watcher{
		runs: runs, fixer: fixer, pub: pub, fallback: fallback,
		pollInterval: pollInterval, waitWindow: waitWindow, maxRetries: maxRetries,
		logf:  logf,
		sleep: time.Sleep,
		now:   time.Now,
	}
}

// Watch polls until CI concludes, fixing failures up to the retry budget.
// CANCELLED is terminal with no retry. Exhausting retries or the wait
// window returns a failed result; the PR stays open either way.
func (w *Watcher) Watch(ctx context.Context, branch string) *Result {
	var handled int64
	for attempt := 0; ; attempt++ {
		status, run, err := w.awaitConclusion(ctx, branch, handled)
		if err != nil {
			return &Result{Status: StatusFailed, Runs: attempt, Message: err.Error()}
		}

		switch status {
		case StatusSuccess:
			return &Result{Status: StatusSuccess, Runs: attempt, Message: "CI passed"}
		case StatusCancelled:
			return &Result{Status: StatusCancelled, Runs: attempt, Message: "CI run was cancelled"}
		}

		if attempt >= w.maxRetries {
			return &Result{Status: StatusFailed, Runs: attempt,
				Message: fmt.Sprintf("CI still failing after %d fix attempt(s)", attempt)}
		}

		if !w.attemptFix(ctx, run, attempt+1) {
			return &Result{Status: StatusFailed, Runs: attempt + 1,
				Message: "CI failed and no fix could be produced"}
		}
		if run != nil {
			handled = run.ID
		}
	}
}

// awaitConclusion polls the latest run for the branch until it concludes
// or the wait window closes. A branch with no workflow runs at all by the
// deadline counts as success: there is no CI to satisfy.
//
// handled is the run already fixed this cycle. gh keeps reporting it as
// the latest run for a while after the fix push, so it must not be
// classified again; the poll waits for a run with a different id.
func (w *Watcher) awaitConclusion(ctx context.Context, branch string, handled int64) (Status, *gh.Run, error) {
	deadline := w.now().Add(w.waitWindow)
	seenRun := false

	for {
		if err := ctx.Err(); err != nil {
			return StatusFailed, nil, err
		}

		run, err := w.runs.LatestRun(branch)
		if err != nil {
			return StatusFailed, nil, fmt.Errorf("poll CI: %w", err)
		}
		if run != nil {
			seenRun = true
			if w.OnPoll != nil {
				w.OnPoll(classifyRun(run))
			}
			if run.ID != handled {
				switch classifyRun(run) {
				case StatusSuccess:
					return StatusSuccess, run, nil
				case StatusFailed:
					return StatusFailed, run, nil
				case StatusCancelled:
					return StatusCancelled, run, nil
				}
				w.logf("CI %s: %s", run.Status, run.Name)
			} else {
				w.logf("latest run %d (%s) is the one already fixed, waiting for a new run", run.ID, run.HeadSHA)
			}
		}

		if !w.now().Before(deadline) {
			if !seenRun {
				w.logf("no workflow runs appeared for %s, treating as no CI", branch)
				return StatusSuccess, nil, nil
			}
			return StatusFailed, run, fmt.Errorf("CI did not conclude within %s", w.waitWindow)
		}
		w.sleep(w.pollInterval)
	}
}

func classifyRun(run *gh.Run) Status {
	if run.Status != "completed" {
		if run.Status == "queued" {
			return StatusPending
		}
		return StatusRunning
	}
	switch run.Conclusion {
	case "success", "skipped", "neutral":
		return StatusSuccess
	case "cancelled":
		return StatusCancelled
	default:
		return StatusFailed
	}
}

// attemptFix fetches logs, classifies the failure, rewrites the files the
// logs name, and pushes. Reports whether a retry is worth waiting for.
func (w *Watcher) attemptFix(ctx context.Context, run *gh.Run, attempt int) bool {
	var logs string
	if run != nil {
		var err error
		logs, err = w.runs.RunLogs(run.ID)
		if err != nil {
			w.logf("CI logs unavailable: %v", err)
			logs = ""
		}
	}

	if strings.TrimSpace(logs) == "" {
		// No logs to work from; local validation is the substitute signal.
		if w.fallback == nil {
			return false
		}
		w.logf("falling back to local validation for CI fix attempt %d", attempt)
		if err := w.fallback(ctx); err != nil {
			w.logf("local validation fallback failed: %v", err)
			return false
		}
		return w.publish(attempt)
	}

	kind := Classify(logs)
	files := filesFromLogs(logs)
	if len(files) == 0 {
		w.logf("CI logs name no files, cannot target a fix")
		return false
	}

	excerpt := firstLines(logs, 200)
	landed := false
	for _, file := range files {
		fc, err := w.fixer.FixFromLogs(ctx, file, kind, excerpt)
		if err != nil {
			w.logf("CI fix of %s failed: %v", file, err)
			continue
		}
		if fc != nil && !fc.Rejected {
			landed = true
		}
	}
	if !landed {
		return false
	}
	return w.publish(attempt)
}

func (w *Watcher) publish(attempt int) bool {
	if err := w.pub.Publish(fmt.Sprintf("Fix CI failure (attempt %d)", attempt)); err != nil {
		w.logf("push of CI fix failed: %v", err)
		return false
	}
	return true
}

// Classify buckets a CI failure by its log content.
func Classify(logs string) string {
	lower := strings.ToLower(logs)
	switch {
	case strings.Contains(lower, "syntax error"),
		strings.Contains(lower, "undefined:"),
		strings.Contains(lower, "cannot find package"),
		strings.Contains(lower, "build failed"),
		strings.Contains(lower, "compilation"):
		return "compilation"
	case strings.Contains(lower, "--- fail"),
		strings.Contains(lower, "test failed"),
		strings.Contains(lower, "assertion"):
		return "test"
	case strings.Contains(lower, "golangci"),
		strings.Contains(lower, "lint"),
		strings.Contains(lower, "vet:"):
		return "lint"
	default:
		return "unknown"
	}
}

// filesFromLogs extracts the distinct source files named in diagnostics.
func filesFromLogs(logs string) []string {
	seen := make(map[string]bool)
	var files []string
	for _, e := range validate.ParseBuildErrors(logs) {
		if !seen[e.File] {
			seen[e.File] = true
			files = append(files, e.File)
		}
	}
	return files
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
