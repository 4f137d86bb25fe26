package orchestrator

import (
	"time"

	"github.com/taskpilot/taskpilot/internal/apply"
)

// Report is the single document a run produces. Partial artifacts (branch,
// PR) are always included so a human can pick up where the pipeline
// stopped.
type Report struct {
	Success          bool               `json:"success"`
	State            State              `json:"state"`
	PRNumber         int                `json:"pr_number,omitempty"`
	PRURL            string             `json:"pr_url,omitempty"`
	Branch           string             `json:"branch,omitempty"`
	ChangedFiles     []apply.FileChange `json:"changed_files,omitempty"`
	ReviewIterations int                `json:"review_iterations"`
	CIRuns           int                `json:"ci_runs"`
	Duration         time.Duration      `json:"duration_ns"`
	Summary          string             `json:"summary"`
	Errors           []string           `json:"errors,omitempty"`
}
