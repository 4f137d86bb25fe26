// Package validate runs the project's build and test commands and drives
// the bounded local auto-fix loops.
package validate

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/taskpilot/taskpilot/internal/apply"
)

// Runner executes a shell command in a directory. Interface for testing.
type Runner interface {
	Run(ctx context.Context, dir, command string) (string, error)
}

// ExecRunner runs commands through sh -c with a timeout.
type ExecRunner struct {
	Timeout time.Duration
}

func (r *ExecRunner) Run(ctx context.Context, dir, command string) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s: %w", command, err)
	}
	return string(out), nil
}

// Fixer regenerates a file from a problem report.
type Fixer interface {
	FixFile(ctx context.Context, path, problems string) (*apply.FileChange, error)
}

// TreeReverter discards uncommitted working-tree changes.
type TreeReverter interface {
	RevertTracked() error
}

// Validator runs build and test commands with LLM-backed fix loops.
type Validator struct {
	run    Runner
	fixer  Fixer
	revert TreeReverter

	dir        string
	buildCmd   string
	testCmd    string
	maxCompile int
	maxTest    int
	logf       func(format string, args ...any)
}

// NewValidator creates a Validator. logf may be nil.
func NewValidator(run Runner, fixer Fixer, revert TreeReverter, dir, buildCmd, testCmd string, maxCompile, maxTest int, logf func(string, ...any)) *Validator {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if maxCompile < 1 {
		maxCompile = 1
	}
	if maxTest < 1 {
		maxTest = 1
	}
	return &Validator{
		run: run, fixer: fixer, revert: revert,
		dir: dir, buildCmd: buildCmd, testCmd: testCmd,
		maxCompile: maxCompile, maxTest: maxTest, logf: logf,
	}
}

// BuildError is one (file, line, message) triple parsed from tool output.
type BuildError struct {
	File    string
	Line    int
	Message string
}

var goErrLine = regexp.MustCompile(`(?m)^([\w./\\-]+\.go):(\d+)(?::\d+)?:\s*(.+)$`)

// ParseBuildErrors extracts file/line/message triples from compiler or test
// output. Lines that do not match the Go diagnostic shape are ignored.
func ParseBuildErrors(output string) []BuildError {
	var errs []BuildError
	for _, m := range goErrLine.FindAllStringSubmatch(output, -1) {
		line, _ := strconv.Atoi(m[2])
		errs = append(errs, BuildError{
			File:    strings.TrimPrefix(m[1], "./"),
			Line:    line,
			Message: strings.TrimSpace(m[3]),
		})
	}
	return errs
}

// groupByFile joins each file's messages into one problem report.
func groupByFile(errs []BuildError) map[string]string {
	grouped := make(map[string][]string)
	for _, e := range errs {
		grouped[e.File] = append(grouped[e.File], fmt.Sprintf("line %d: %s", e.Line, e.Message))
	}
	out := make(map[string]string, len(grouped))
	for file, msgs := range grouped {
		out[file] = strings.Join(msgs, "\n")
	}
	return out
}

// EnsureBuilds runs the build command, fixing reported errors up to the
// compile-attempt budget. On exhaustion it reverts all uncommitted tree
// changes and returns an error: a broken tree is never left behind for the
// commit stage.
func (v *Validator) EnsureBuilds(ctx context.Context) error {
	var lastOut string
	for attempt := 1; attempt <= v.maxCompile; attempt++ {
		out, err := v.run.Run(ctx, v.dir, v.buildCmd)
		if err == nil {
			if attempt > 1 {
				v.logf("build fixed after %d attempt(s)", attempt)
			}
			return nil
		}
		lastOut = out
		v.logf("build failed (attempt %d/%d)", attempt, v.maxCompile)

		if attempt == v.maxCompile {
			break
		}
		if !v.fixFromOutput(ctx, out) {
			break
		}
	}

	if v.revert != nil {
		if err := v.revert.RevertTracked(); err != nil {
			v.logf("revert after failed build also failed: %v", err)
		} else {
			v.logf("build unfixable, working tree reverted")
		}
	}
	return fmt.Errorf("build failed after %d attempt(s): %s", v.maxCompile, firstLines(lastOut, 20))
}

// RunTests runs the test command with the same fix loop, but exhaustion is
// not fatal: the returned error is a warning for the caller to record, CI
// remains the authoritative gate.
func (v *Validator) RunTests(ctx context.Context) error {
	var lastOut string
	for attempt := 1; attempt <= v.maxTest; attempt++ {
		out, err := v.run.Run(ctx, v.dir, v.testCmd)
		if err == nil {
			return nil
		}
		lastOut = out
		v.logf("tests failed (attempt %d/%d)", attempt, v.maxTest)

		if attempt == v.maxTest {
			break
		}
		if !v.fixFromOutput(ctx, out) {
			break
		}
	}
	return fmt.Errorf("tests still failing after %d attempt(s): %s", v.maxTest, firstLines(lastOut, 20))
}

// fixFromOutput asks the fixer to rewrite every file named in the output.
// Returns false when nothing actionable could be parsed or every fix
// attempt failed, which ends the enclosing loop early.
func (v *Validator) fixFromOutput(ctx context.Context, output string) bool {
	grouped := groupByFile(ParseBuildErrors(output))
	if len(grouped) == 0 {
		v.logf("no file/line diagnostics found in output, cannot auto-fix")
		return false
	}

	files := make([]string, 0, len(grouped))
	for f := range grouped {
		files = append(files, f)
	}
	sort.Strings(files)

	fixed := false
	for _, file := range files {
		fc, err := v.fixer.FixFile(ctx, file, grouped[file])
		if err != nil {
			v.logf("fix of %s failed: %v", file, err)
			continue
		}
		if fc != nil && !fc.Rejected {
			fixed = true
		}
	}
	return fixed
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
