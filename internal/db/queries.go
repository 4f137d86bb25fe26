package db

import "fmt"

// RunEvent is a row in the run_events table.
type RunEvent struct {
	ID        int
	RunID     string
	State     string
	Detail    string
	Timestamp string
}

// LogEvent records a state transition or progress marker for a run.
func (d *DB) LogEvent(runID, state, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO run_events (run_id, state, detail) VALUES (?, ?, ?)`,
		runID, state, detail,
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// LogLLMCall records one model invocation.
func (d *DB) LogLLMCall(runID, purpose, model string, durationMs int64, ok bool, errText string) error {
	_, err := d.conn.Exec(
		`INSERT INTO llm_calls (run_id, purpose, model, duration_ms, ok, error) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, purpose, model, durationMs, ok, errText,
	)
	if err != nil {
		return fmt.Errorf("log llm call: %w", err)
	}
	return nil
}

// LogCIPoll records one observed CI status.
func (d *DB) LogCIPoll(runID, branch, status string) error {
	_, err := d.conn.Exec(
		`INSERT INTO ci_polls (run_id, branch, status) VALUES (?, ?, ?)`,
		runID, branch, status,
	)
	if err != nil {
		return fmt.Errorf("log ci poll: %w", err)
	}
	return nil
}

// Events returns all events for a run in chronological order.
func (d *DB) Events(runID string) ([]RunEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, state, COALESCE(detail, ''), timestamp
		 FROM run_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.State, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Stats aggregates counters across all recorded runs.
type Stats struct {
	Runs       int
	Completed  int
	Failed     int
	LLMCalls   int
	LLMErrors  int
	CIPolls    int
	CIFailures int
}

// CollectStats computes aggregate counters for the stats command.
func (d *DB) CollectStats() (*Stats, error) {
	var s Stats
	queries := []struct {
		dst   *int
		query string
	}{
		{&s.Runs, `SELECT COUNT(DISTINCT run_id) FROM run_events`},
		{&s.Completed, `SELECT COUNT(DISTINCT run_id) FROM run_events WHERE state = 'completed'`},
		{&s.Failed, `SELECT COUNT(DISTINCT run_id) FROM run_events WHERE state = 'failed'`},
		{&s.LLMCalls, `SELECT COUNT(*) FROM llm_calls`},
		{&s.LLMErrors, `SELECT COUNT(*) FROM llm_calls WHERE NOT ok`},
		{&s.CIPolls, `SELECT COUNT(*) FROM ci_polls`},
		{&s.CIFailures, `SELECT COUNT(*) FROM ci_polls WHERE status = 'failed'`},
	}
	for _, q := range queries {
		if err := d.conn.QueryRow(q.query).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("collect stats: %w", err)
		}
	}
	return &s, nil
}
