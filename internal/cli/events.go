package cli

import (
	"sync"
	"time"

	"github.com/taskpilot/taskpilot/internal/ci"
	"github.com/taskpilot/taskpilot/internal/db"
)

// eventLog adapts db.DB to the orchestrator's event sink and feeds the LLM
// call and CI poll logs. State transitions carry the run id; the log
// remembers the most recent one so mid-run observations land under it.
// All writes are best-effort: a broken database never fails a run.
type eventLog struct {
	db *db.DB

	mu    sync.Mutex
	runID string
}

func (e *eventLog) LogEvent(runID, state, detail string) error {
	e.mu.Lock()
	e.runID = runID
	e.mu.Unlock()
	return e.db.LogEvent(runID, state, detail)
}

func (e *eventLog) currentRun() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

func (e *eventLog) logLLMCall(purpose, model string, elapsed time.Duration, err error) {
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	_ = e.db.LogLLMCall(e.currentRun(), purpose, model, elapsed.Milliseconds(), err == nil, errText)
}

func (e *eventLog) logCIPoll(branch string, status ci.Status) {
	_ = e.db.LogCIPoll(e.currentRun(), branch, string(status))
}
