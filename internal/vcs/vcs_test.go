package vcs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeGit records invocations and returns scripted results keyed by the
// leading git subcommand (or full argument prefix).
type fakeGit struct {
	calls   [][]string
	results map[string]fakeResult
}

type fakeResult struct {
	out string
	err error
}

func (f *fakeGit) Run(dir string, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	key := strings.Join(args, " ")
	for prefix, res := range f.results {
		if strings.HasPrefix(key, prefix) {
			return res.out, res.err
		}
	}
	return "", nil
}

func (f *fakeGit) called(prefix string) bool {
	for _, c := range f.calls {
		if strings.HasPrefix(strings.Join(c, " "), prefix) {
			return true
		}
	}
	return false
}

func TestCreateBranch_FetchesBaseFirst(t *testing.T) {
	git := &fakeGit{results: map[string]fakeResult{}}
	d := NewDriver(git, "/repo", "main")

	if err := d.CreateBranch("taskpilot/add-flag"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !git.called("fetch origin main") {
		t.Error("expected fetch of base branch")
	}
	if !git.called("checkout -b taskpilot/add-flag") {
		t.Error("expected checkout -b")
	}
}

func TestCreateBranch_RejectsDashPrefix(t *testing.T) {
	d := NewDriver(&fakeGit{}, "/repo", "main")
	if err := d.CreateBranch("-rf"); err == nil {
		t.Error("expected error for branch starting with -")
	}
}

func TestHasChanges(t *testing.T) {
	git := &fakeGit{results: map[string]fakeResult{
		"status --porcelain": {out: " M main.go"},
	}}
	d := NewDriver(git, "/repo", "main")

	dirty, err := d.HasChanges()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dirty {
		t.Error("expected dirty tree")
	}
}

func TestCommitAll(t *testing.T) {
	git := &fakeGit{results: map[string]fakeResult{}}
	d := NewDriver(git, "/repo", "main")

	if err := d.CommitAll("apply planned changes"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !git.called("add -A") || !git.called("commit -m apply planned changes") {
		t.Errorf("unexpected call sequence: %v", git.calls)
	}
}

func TestPush_Errors(t *testing.T) {
	git := &fakeGit{results: map[string]fakeResult{
		"push": {err: errors.New("remote rejected")},
	}}
	d := NewDriver(git, "/repo", "main")

	if err := d.Push("feature"); err == nil {
		t.Error("expected push error to propagate")
	}
}

func TestRebase_Clean(t *testing.T) {
	git := &fakeGit{results: map[string]fakeResult{}}
	d := NewDriver(git, "/repo", "main")

	res, err := d.Rebase(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Conflicted {
		t.Error("clean rebase should not report conflicts")
	}
}

func TestRebase_ConflictWithoutKeepOursAborts(t *testing.T) {
	git := &fakeGit{results: map[string]fakeResult{
		"rebase origin/main": {out: "CONFLICT (content): merge conflict in main.go", err: errors.New("exit 1")},
	}}
	d := NewDriver(git, "/repo", "main")

	res, err := d.Rebase(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Conflicted || res.Resolved {
		t.Errorf("expected unresolved conflict, got %+v", res)
	}
	if !git.called("rebase --abort") {
		t.Error("expected rebase --abort")
	}
}

func TestRebase_KeepOursResolves(t *testing.T) {
	first := true
	git := &fakeGit{results: map[string]fakeResult{
		"rebase origin/main": {out: "CONFLICT (content): merge conflict in a.go", err: errors.New("exit 1")},
	}}
	// Conflicted file list returns a.go once, then empty after resolution.
	gitDyn := &dynamicGit{inner: git, onDiff: func() string {
		if first {
			first = false
			return "a.go"
		}
		return ""
	}}
	d := NewDriver(gitDyn, "/repo", "main")

	res, err := d.Rebase(true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Conflicted || !res.Resolved {
		t.Errorf("expected resolved conflict, got %+v", res)
	}
	if len(res.Files) != 1 || res.Files[0] != "a.go" {
		t.Errorf("unexpected resolved files: %v", res.Files)
	}
	if !git.called("checkout --theirs -- a.go") {
		t.Errorf("expected keep-ours checkout, calls: %v", git.calls)
	}
}

// dynamicGit wraps fakeGit to make the conflicted-file listing change over
// time, as it does during a real rebase.
type dynamicGit struct {
	inner  *fakeGit
	onDiff func() string
}

func (d *dynamicGit) Run(dir string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	if strings.HasPrefix(key, "diff --name-only --diff-filter=U") {
		d.inner.calls = append(d.inner.calls, args)
		return d.onDiff(), nil
	}
	if strings.Contains(key, "rebase --continue") {
		d.inner.calls = append(d.inner.calls, args)
		return "", nil
	}
	return d.inner.Run(dir, args...)
}

func TestSanitizeBranch(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"taskpilot/add feature!", "taskpilot/add-feature"},
		{"--weird--", "weird"},
		{"simple", "simple"},
		{strings.Repeat("a", 150), strings.Repeat("a", 100)},
	}
	for _, tt := range tests {
		if got := SanitizeBranch(tt.in); got != tt.want {
			t.Errorf("SanitizeBranch(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestListFiles(t *testing.T) {
	git := &fakeGit{results: map[string]fakeResult{
		"ls-files": {out: "a.go\nb/c.go"},
	}}
	d := NewDriver(git, "/repo", "main")

	files, err := d.ListFiles()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fmt.Sprint(files) != "[a.go b/c.go]" {
		t.Errorf("unexpected files: %v", files)
	}
}
