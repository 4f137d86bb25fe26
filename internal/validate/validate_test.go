package validate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/taskpilot/taskpilot/internal/apply"
)

// scriptedRunner returns one result per call, in order.
type scriptedRunner struct {
	results []runResult
	calls   []string
}

type runResult struct {
	out string
	err error
}

func (r *scriptedRunner) Run(ctx context.Context, dir, command string) (string, error) {
	r.calls = append(r.calls, command)
	if len(r.results) == 0 {
		return "", nil
	}
	res := r.results[0]
	r.results = r.results[1:]
	return res.out, res.err
}

type recordingFixer struct {
	fixed  []string
	reject bool
	err    error
}

func (f *recordingFixer) FixFile(ctx context.Context, path, problems string) (*apply.FileChange, error) {
	f.fixed = append(f.fixed, path)
	if f.err != nil {
		return nil, f.err
	}
	return &apply.FileChange{Path: path, Rejected: f.reject}, nil
}

type recordingReverter struct {
	reverted bool
}

func (r *recordingReverter) RevertTracked() error {
	r.reverted = true
	return nil
}

func TestParseBuildErrors(t *testing.T) {
	out := `# example.com/pkg
main.go:12:5: undefined: foo
./internal/a/b.go:3:1: syntax error: unexpected }
some unrelated noise
FAIL    example.com/pkg [build failed]`

	errs := ParseBuildErrors(out)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %+v", errs)
	}
	if errs[0].File != "main.go" || errs[0].Line != 12 || !strings.Contains(errs[0].Message, "undefined") {
		t.Errorf("unexpected first error: %+v", errs[0])
	}
	if errs[1].File != "internal/a/b.go" {
		t.Errorf("leading ./ should be stripped: %+v", errs[1])
	}
}

func TestEnsureBuilds_SucceedsFirstTry(t *testing.T) {
	run := &scriptedRunner{}
	fixer := &recordingFixer{}
	v := NewValidator(run, fixer, nil, "/repo", "go build ./...", "go test ./...", 3, 2, nil)

	if err := v.EnsureBuilds(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fixer.fixed) != 0 {
		t.Error("fixer should not be consulted when the build passes")
	}
}

func TestEnsureBuilds_FixesThenPasses(t *testing.T) {
	run := &scriptedRunner{results: []runResult{
		{out: "main.go:5:2: undefined: bar", err: errors.New("exit 1")},
		{out: "", err: nil},
	}}
	fixer := &recordingFixer{}
	v := NewValidator(run, fixer, &recordingReverter{}, "/repo", "go build ./...", "", 3, 2, nil)

	if err := v.EnsureBuilds(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fixer.fixed) != 1 || fixer.fixed[0] != "main.go" {
		t.Errorf("unexpected fixes: %v", fixer.fixed)
	}
}

// Exhausting the compile budget reverts the tree and fails.
func TestEnsureBuilds_ExhaustionRevertsTree(t *testing.T) {
	fail := runResult{out: "main.go:5:2: undefined: bar", err: errors.New("exit 1")}
	run := &scriptedRunner{results: []runResult{fail, fail, fail}}
	fixer := &recordingFixer{}
	rev := &recordingReverter{}
	v := NewValidator(run, fixer, rev, "/repo", "go build ./...", "", 3, 2, nil)

	err := v.EnsureBuilds(context.Background())
	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if !rev.reverted {
		t.Error("tree must be reverted when the build cannot be fixed")
	}
	if len(run.calls) != 3 {
		t.Errorf("build run %d times, want 3", len(run.calls))
	}
}

// Output with no parseable diagnostics ends the loop early instead of
// burning attempts on unfixable failures.
func TestEnsureBuilds_UnparseableOutputStopsEarly(t *testing.T) {
	run := &scriptedRunner{results: []runResult{
		{out: "linker blew up in a novel way", err: errors.New("exit 2")},
	}}
	fixer := &recordingFixer{}
	rev := &recordingReverter{}
	v := NewValidator(run, fixer, rev, "/repo", "go build ./...", "", 3, 2, nil)

	if err := v.EnsureBuilds(context.Background()); err == nil {
		t.Fatal("expected failure")
	}
	if len(fixer.fixed) != 0 {
		t.Error("nothing parseable, fixer should not be consulted")
	}
	if len(run.calls) != 1 {
		t.Errorf("build run %d times, want 1", len(run.calls))
	}
	if !rev.reverted {
		t.Error("tree must still be reverted")
	}
}

// Test failures are warnings: an error comes back but no revert happens.
func TestRunTests_ExhaustionIsNonFatalWarning(t *testing.T) {
	fail := runResult{out: "main_test.go:10:1: assertion failed", err: errors.New("exit 1")}
	run := &scriptedRunner{results: []runResult{fail, fail}}
	fixer := &recordingFixer{}
	rev := &recordingReverter{}
	v := NewValidator(run, fixer, rev, "/repo", "", "go test ./...", 3, 2, nil)

	err := v.RunTests(context.Background())
	if err == nil {
		t.Fatal("expected a warning error after exhausting test attempts")
	}
	if rev.reverted {
		t.Error("test exhaustion must not revert the tree")
	}
	if len(run.calls) != 2 {
		t.Errorf("tests run %d times, want 2 (maxTest)", len(run.calls))
	}
}

func TestRunTests_PassImmediately(t *testing.T) {
	run := &scriptedRunner{}
	v := NewValidator(run, &recordingFixer{}, nil, "/repo", "", "go test ./...", 3, 2, nil)
	if err := v.RunTests(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// A fixer whose every rewrite is rejected by the truncation guard cannot
// make progress; the loop ends early.
func TestEnsureBuilds_AllFixesRejectedStopsEarly(t *testing.T) {
	fail := runResult{out: "main.go:5:2: undefined: bar", err: errors.New("exit 1")}
	run := &scriptedRunner{results: []runResult{fail, fail, fail}}
	fixer := &recordingFixer{reject: true}
	v := NewValidator(run, fixer, &recordingReverter{}, "/repo", "go build ./...", "", 3, 2, nil)

	if err := v.EnsureBuilds(context.Background()); err == nil {
		t.Fatal("expected failure")
	}
	if len(run.calls) != 1 {
		t.Errorf("build run %d times, want 1 when no fix lands", len(run.calls))
	}
}
