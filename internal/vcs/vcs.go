// Package vcs wraps the git operations the pipeline needs behind a narrow
// runner interface so tests never spawn real processes.
package vcs

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// GitRunner provides git command execution. Interface for testing.
type GitRunner interface {
	Run(dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.Command.
type ExecGit struct{}

func (g *ExecGit) Run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Driver performs branch/commit/push/rebase operations in one working tree.
type Driver struct {
	git  GitRunner
	dir  string
	base string // base branch, e.g. "main"
}

// NewDriver creates a Driver for the working tree at dir.
func NewDriver(git GitRunner, dir string, baseBranch string) *Driver {
	if baseBranch == "" {
		baseBranch = "main"
	}
	return &Driver{git: git, dir: dir, base: baseBranch}
}

// Dir returns the working tree path.
func (d *Driver) Dir() string {
	return d.dir
}

// CreateBranch fetches the base branch and creates a new branch from the
// current HEAD. Uncommitted working-tree changes are carried onto the new
// branch, which is what the pipeline relies on: changes are applied first,
// branched after.
func (d *Driver) CreateBranch(name string) error {
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("invalid branch name %q: must not start with -", name)
	}
	// Best-effort fetch so a later rebase sees an up-to-date base.
	_, _ = d.git.Run(d.dir, "fetch", "origin", d.base)

	_, err := d.git.Run(d.dir, "checkout", "-b", name)
	if err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// CurrentBranch returns the checked-out branch name.
func (d *Driver) CurrentBranch() (string, error) {
	out, err := d.git.Run(d.dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	return out, nil
}

// HasChanges reports whether the working tree has uncommitted changes.
func (d *Driver) HasChanges() (bool, error) {
	out, err := d.git.Run(d.dir, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// CommitAll stages everything and commits. Committing with a clean tree is
// an error; callers check HasChanges first when that is expected.
func (d *Driver) CommitAll(message string) error {
	if _, err := d.git.Run(d.dir, "add", "-A"); err != nil {
		return fmt.Errorf("git add: %w", err)
	}
	if _, err := d.git.Run(d.dir, "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	return nil
}

// Push pushes the branch to origin, setting upstream.
func (d *Driver) Push(branch string) error {
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("invalid branch name %q: must not start with -", branch)
	}
	if _, err := d.git.Run(d.dir, "push", "-u", "origin", branch); err != nil {
		return fmt.Errorf("push branch: %w", err)
	}
	return nil
}

// ForcePush pushes with --force-with-lease, safe after a local rebase that
// rewrote history already on the remote.
func (d *Driver) ForcePush(branch string) error {
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("invalid branch name %q: must not start with -", branch)
	}
	if _, err := d.git.Run(d.dir, "push", "--force-with-lease", "-u", "origin", branch); err != nil {
		return fmt.Errorf("force push branch: %w", err)
	}
	return nil
}

// RevertTracked discards all uncommitted changes to tracked files. Used
// when the local fix loop exhausts its budget and the tree must not be
// left broken.
func (d *Driver) RevertTracked() error {
	if _, err := d.git.Run(d.dir, "checkout", "--", "."); err != nil {
		return fmt.Errorf("revert tracked files: %w", err)
	}
	// Untracked files created by a failed CREATE are removed as well.
	if _, err := d.git.Run(d.dir, "clean", "-fd"); err != nil {
		return fmt.Errorf("clean untracked files: %w", err)
	}
	return nil
}

// ListFiles returns all tracked file paths.
func (d *Driver) ListFiles() ([]string, error) {
	out, err := d.git.Run(d.dir, "ls-files")
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Diff returns the diff of the branch against the base branch.
func (d *Driver) Diff() (string, error) {
	out, err := d.git.Run(d.dir, "diff", "origin/"+d.base+"...HEAD")
	if err != nil {
		return "", fmt.Errorf("diff against %s: %w", d.base, err)
	}
	return out, nil
}

var nonBranchChars = regexp.MustCompile(`[^a-zA-Z0-9/_-]+`)

// SanitizeBranch cleans up a branch name derived from free text.
func SanitizeBranch(name string) string {
	s := nonBranchChars.ReplaceAllString(name, "-")
	s = strings.Trim(s, "-")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
