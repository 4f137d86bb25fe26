package vcs

import (
	"fmt"
	"strings"
)

// RebaseResult describes the outcome of a rebase onto the base branch.
type RebaseResult struct {
	Conflicted bool
	Resolved   bool     // conflicts were auto-resolved with keep-ours
	Files      []string // paths that conflicted
}

// Rebase fetches the base branch and rebases the current branch onto it.
//
// With keepOurs false, a conflict aborts the rebase, leaving the tree
// clean, and returns Conflicted=true. With keepOurs true, every conflicted
// path is resolved in favor of this branch's version and the rebase
// continues; upstream edits to those paths are discarded. If resolution
// cannot complete, the rebase is aborted and an error is returned.
func (d *Driver) Rebase(keepOurs bool) (*RebaseResult, error) {
	if _, err := d.git.Run(d.dir, "fetch", "origin", d.base); err != nil {
		return nil, fmt.Errorf("fetch origin %s: %w", d.base, err)
	}

	out, rebaseErr := d.git.Run(d.dir, "rebase", "origin/"+d.base)
	if rebaseErr == nil {
		return &RebaseResult{}, nil
	}
	if !strings.Contains(out, "CONFLICT") && !strings.Contains(out, "conflict") {
		return nil, fmt.Errorf("rebase onto origin/%s: %w", d.base, rebaseErr)
	}

	if !keepOurs {
		_, _ = d.git.Run(d.dir, "rebase", "--abort")
		return &RebaseResult{Conflicted: true}, nil
	}

	files, err := d.resolveKeepOurs()
	if err != nil {
		_, _ = d.git.Run(d.dir, "rebase", "--abort")
		return nil, err
	}
	return &RebaseResult{Conflicted: true, Resolved: true, Files: files}, nil
}

// resolveKeepOurs resolves every conflicted path by keeping this branch's
// version, then continues the rebase. During a rebase the branch being
// replayed is "theirs" in git's terms, so keeping the pipeline's own work
// means checking out the theirs side.
func (d *Driver) resolveKeepOurs() ([]string, error) {
	var resolved []string

	// A rebase replays one commit at a time; each step can conflict.
	for step := 0; step < 50; step++ {
		out, err := d.git.Run(d.dir, "diff", "--name-only", "--diff-filter=U")
		if err != nil {
			return nil, fmt.Errorf("list conflicted files: %w", err)
		}
		conflicted := splitLines(out)
		if len(conflicted) == 0 {
			return resolved, nil
		}

		for _, f := range conflicted {
			if _, err := d.git.Run(d.dir, "checkout", "--theirs", "--", f); err != nil {
				// A file deleted on one side has no theirs version; keep
				// whatever content git left and stage it as-is.
				if !strings.Contains(err.Error(), "does not have") {
					return nil, fmt.Errorf("keep ours for %q: %w", f, err)
				}
			}
			if _, err := d.git.Run(d.dir, "add", "--", f); err != nil {
				return nil, fmt.Errorf("stage resolved %q: %w", f, err)
			}
			resolved = append(resolved, f)
		}

		out, err = d.git.Run(d.dir, "-c", "core.editor=true", "rebase", "--continue")
		if err == nil {
			return resolved, nil
		}
		if !strings.Contains(out, "CONFLICT") && !strings.Contains(out, "conflict") {
			return nil, fmt.Errorf("continue rebase: %w", err)
		}
	}
	return nil, fmt.Errorf("rebase did not converge after keep-ours resolution")
}

func splitLines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
