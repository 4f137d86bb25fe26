package review

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/taskpilot/taskpilot/internal/apply"
)

// Service produces review results. Interface for testing.
type Service interface {
	Review(ctx context.Context, task, diff string) *Result
}

// Fixer regenerates a file from a problem report.
type Fixer interface {
	FixFile(ctx context.Context, path, problems string) (*apply.FileChange, error)
}

// Publisher commits and pushes the current branch so the next review pass
// and CI see the fixes.
type Publisher interface {
	Publish(message string) error
}

// Outcome summarizes a finished review loop.
type Outcome struct {
	Approved   bool
	Forced     bool // approved by a loop-breaker rule, not by the reviewer
	Iterations int
	Reason     string
}

// Loop drives review iterations until approval or a bound is hit.
type Loop struct {
	svc   Service
	fixer Fixer
	pub   Publisher
	diff  func() (string, error)

	maxIterations int
	allowForce    bool
	logf          func(format string, args ...any)
}

// NewLoop creates a review loop. diff returns the branch diff against base
// and is re-evaluated each iteration. allowForce enables the stuck and
// ceiling loop-breakers; without it the loop simply runs to its bound.
func NewLoop(svc Service, fixer Fixer, pub Publisher, diff func() (string, error), maxIterations int, allowForce bool, logf func(string, ...any)) *Loop {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if maxIterations < 1 {
		maxIterations = 1
	}
	return &Loop{svc: svc, fixer: fixer, pub: pub, diff: diff, maxIterations: maxIterations, allowForce: allowForce, logf: logf}
}

// Run executes the loop. It never returns a fatal error: exhausting the
// iteration budget yields an unapproved outcome and the pipeline defers to
// CI as the final arbiter.
func (l *Loop) Run(ctx context.Context, task string) *Outcome {
	var history [][]string // signature sets of the last 3 iterations

	for iter := 1; iter <= l.maxIterations; iter++ {
		diff, err := l.diff()
		if err != nil {
			l.logf("could not compute diff for review: %v", err)
			return &Outcome{Approved: true, Forced: true, Iterations: iter, Reason: "diff unavailable, review skipped"}
		}

		res := l.svc.Review(ctx, task, diff)
		actionable := actionableIssues(res.Issues)
		criticals := countCritical(actionable)
		l.logf("review iteration %d: approved=%v issues=%d actionable=%d critical=%d",
			iter, res.Approved, len(res.Issues), len(actionable), criticals)

		if res.Approved || len(actionable) == 0 {
			return &Outcome{Approved: true, Iterations: iter, Reason: "reviewer approved"}
		}

		sigs := signatures(actionable)
		if l.allowForce {
			if criticals == 0 && overlapsPrior(sigs, history) {
				return &Outcome{Approved: true, Forced: true, Iterations: iter,
					Reason: "same non-critical issues repeating, force-approved"}
			}
			if criticals == 0 && iter >= 5 {
				return &Outcome{Approved: true, Forced: true, Iterations: iter,
					Reason: "iteration ceiling reached with no critical issues, force-approved"}
			}
		}
		history = append(history, sigs)
		if len(history) > 3 {
			history = history[1:]
		}

		if l.applyFixes(ctx, actionable) {
			if err := l.pub.Publish(fmt.Sprintf("Address review feedback (round %d)", iter)); err != nil {
				l.logf("publish of review fixes failed: %v", err)
				return &Outcome{Approved: false, Iterations: iter, Reason: "could not publish review fixes"}
			}
		} else {
			l.logf("no review fix landed this iteration")
		}
	}

	return &Outcome{Approved: false, Iterations: l.maxIterations,
		Reason: "review iterations exhausted, deferring to CI"}
}

// applyFixes sends each file's critical and warning issues to the fixer.
// Reports whether at least one fix changed a file.
func (l *Loop) applyFixes(ctx context.Context, issues []Issue) bool {
	grouped := make(map[string][]string)
	for _, is := range issues {
		if is.File == "" {
			continue
		}
		line := fmt.Sprintf("[%s] line %d: %s", is.Severity, is.Line, is.Message)
		if is.Fix != "" {
			line += " (suggested: " + is.Fix + ")"
		}
		grouped[is.File] = append(grouped[is.File], line)
	}

	files := make([]string, 0, len(grouped))
	for f := range grouped {
		files = append(files, f)
	}
	sort.Strings(files)

	landed := false
	for _, file := range files {
		fc, err := l.fixer.FixFile(ctx, file, strings.Join(grouped[file], "\n"))
		if err != nil {
			l.logf("review fix of %s failed: %v", file, err)
			continue
		}
		if fc != nil && !fc.Rejected {
			landed = true
		}
	}
	return landed
}

func actionableIssues(issues []Issue) []Issue {
	var out []Issue
	for _, is := range issues {
		if is.Actionable() {
			out = append(out, is)
		}
	}
	return out
}

func countCritical(issues []Issue) int {
	n := 0
	for _, is := range issues {
		if is.Severity == Critical {
			n++
		}
	}
	return n
}

func signatures(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.Signature())
	}
	return out
}

// overlapsPrior reports whether the current signature set shares at least
// 80% of its members with any retained prior set.
func overlapsPrior(current []string, history [][]string) bool {
	if len(current) == 0 {
		return false
	}
	cur := make(map[string]bool, len(current))
	for _, s := range current {
		cur[s] = true
	}
	for _, prior := range history {
		shared := 0
		for _, s := range prior {
			if cur[s] {
				shared++
			}
		}
		if shared*5 >= len(cur)*4 {
			return true
		}
	}
	return false
}
