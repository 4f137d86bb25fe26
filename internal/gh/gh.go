// Package gh provides pull-request and CI operations via the gh CLI.
package gh

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// CmdRunner provides gh command execution. Interface for testing.
type CmdRunner interface {
	Run(args ...string) (string, error)
}

// ExecRunner runs gh commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(args ...string) (string, error) {
	cmd := exec.Command("gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Client provides GitHub PR and workflow-run operations.
type Client struct {
	cmd CmdRunner
}

// NewClient creates a GitHub client.
func NewClient(cmd CmdRunner) *Client {
	return &Client{cmd: cmd}
}

// PullRequest identifies an open pull request.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// CreateOpts holds options for creating a PR.
type CreateOpts struct {
	Title  string
	Body   string
	Branch string
	Base   string
}

// Create creates a pull request and returns its number and URL.
func (c *Client) Create(opts CreateOpts) (*PullRequest, error) {
	args := []string{"pr", "create", "--title", opts.Title, "--body", opts.Body, "--head", opts.Branch}
	if opts.Base != "" {
		args = append(args, "--base", opts.Base)
	}
	if _, err := c.cmd.Run(args...); err != nil {
		return nil, fmt.Errorf("create PR: %w", err)
	}

	// gh pr create prints only the URL; fetch the number separately.
	pr, err := c.FindByBranch(opts.Branch)
	if err != nil {
		return nil, err
	}
	if pr == nil {
		return nil, fmt.Errorf("PR created for %q but not found afterwards", opts.Branch)
	}
	return pr, nil
}

// FindByBranch returns the open PR for a branch, or nil if none exists.
func (c *Client) FindByBranch(branch string) (*PullRequest, error) {
	out, err := c.cmd.Run("pr", "list", "--head", branch, "--json", "number,url", "--limit", "1")
	if err != nil {
		return nil, fmt.Errorf("find PR by branch: %w", err)
	}

	var prs []PullRequest
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, fmt.Errorf("parse PR list JSON: %w", err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return &prs[0], nil
}

// Mergeable reports whether a PR can merge cleanly. GitHub computes
// mergeability lazily, so UNKNOWN is possible shortly after a push;
// callers treat it as mergeable and let the merge call be the arbiter.
func (c *Client) Mergeable(number int) (bool, error) {
	out, err := c.cmd.Run("pr", "view", strconv.Itoa(number), "--json", "mergeable")
	if err != nil {
		return false, fmt.Errorf("check mergeability: %w", err)
	}

	var view struct {
		Mergeable string `json:"mergeable"`
	}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		return false, fmt.Errorf("parse PR view JSON: %w", err)
	}
	return view.Mergeable != "CONFLICTING", nil
}

var validMergeStrategies = map[string]bool{
	"squash": true,
	"merge":  true,
	"rebase": true,
}

// Merge merges a pull request.
func (c *Client) Merge(number int, strategy string) error {
	if strategy == "" {
		strategy = "squash"
	}
	if !validMergeStrategies[strategy] {
		return fmt.Errorf("invalid merge strategy %q: must be squash, merge, or rebase", strategy)
	}

	if _, err := c.cmd.Run("pr", "merge", strconv.Itoa(number), "--"+strategy, "--delete-branch"); err != nil {
		return fmt.Errorf("merge PR #%d: %w", number, err)
	}
	return nil
}
