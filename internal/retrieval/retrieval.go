// Package retrieval supplies project context for planning. The pipeline
// treats the result as an opaque string.
package retrieval

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Provider fetches context relevant to a task query.
type Provider interface {
	Search(ctx context.Context, query string, topK int) (string, error)
}

// Null returns no context. Used when no retrieval command is configured.
type Null struct{}

func (Null) Search(ctx context.Context, query string, topK int) (string, error) {
	return "", nil
}

// Command shells out to a user-configured retrieval command. The query and
// result count are passed as arguments; whatever the command prints is the
// context.
type Command struct {
	Cmd     string
	Dir     string
	Timeout time.Duration
}

func (c *Command) Search(ctx context.Context, query string, topK int) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", c.Cmd+" "+shellQuote(query)+" "+strconv.Itoa(topK))
	cmd.Dir = c.Dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("retrieval command: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
