package gh

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Run is a workflow run as reported by gh run list.
type Run struct {
	ID         int64  `json:"databaseId"`
	Name       string `json:"name"`
	Status     string `json:"status"`     // queued, in_progress, completed
	Conclusion string `json:"conclusion"` // success, failure, cancelled, ... (empty until completed)
	HeadSHA    string `json:"headSha"`
}

// LatestRun returns the most recent workflow run for a branch, or nil if
// the repository has no workflows or none have triggered yet.
func (c *Client) LatestRun(branch string) (*Run, error) {
	out, err := c.cmd.Run("run", "list", "--branch", branch, "--limit", "1",
		"--json", "databaseId,name,status,conclusion,headSha")
	if err != nil {
		return nil, fmt.Errorf("list workflow runs: %w", err)
	}

	var runs []Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		return nil, fmt.Errorf("parse run list JSON: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// RunLogs returns the logs of the failed steps of a workflow run. Logs may
// be unavailable (expired, or the run is on a runner that withholds them);
// callers fall back to local validation in that case.
func (c *Client) RunLogs(runID int64) (string, error) {
	out, err := c.cmd.Run("run", "view", strconv.FormatInt(runID, 10), "--log-failed")
	if err != nil {
		return "", fmt.Errorf("fetch run logs: %w", err)
	}
	return out, nil
}
