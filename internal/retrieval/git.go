package retrieval

import (
	"context"
	"strconv"
	"strings"
)

// GitRunner executes git commands. Interface for testing.
type GitRunner interface {
	Run(dir string, args ...string) (string, error)
}

// Git derives planning context from repository history: recent commit
// subjects and a summary of what the tree currently changes relative to
// the base branch. It is the default provider when no external retrieval
// command is configured.
type Git struct {
	Runner GitRunner
	Dir    string
	Base   string
}

// Search implements Provider. topK bounds the number of commits included.
// Every section is best-effort; a repository with no history yields an
// empty context rather than an error.
func (g *Git) Search(ctx context.Context, query string, topK int) (string, error) {
	if topK <= 0 {
		topK = 10
	}

	var sections []string
	if log, err := g.Runner.Run(g.Dir, "log", "--oneline", "-"+strconv.Itoa(topK)); err == nil && log != "" {
		sections = append(sections, "Recent commits:\n"+log)
	}

	base := g.Base
	if base == "" {
		base = "main"
	}
	if stat, err := g.Runner.Run(g.Dir, "diff", "--stat", "origin/"+base+"...HEAD"); err == nil && strings.TrimSpace(stat) != "" {
		sections = append(sections, "Changes on this branch vs "+base+":\n"+stat)
	}

	return strings.Join(sections, "\n\n"), nil
}
