// Package runstore persists per-run artifacts (record, plan, prompts,
// report) as JSON under a single directory per run.
package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/taskpilot/taskpilot/internal/plan"
)

// Record is the durable header of one pipeline run.
type Record struct {
	ID         string `json:"id"`
	Task       string `json:"task"`
	Branch     string `json:"branch,omitempty"`
	PRNumber   int    `json:"pr_number,omitempty"`
	State      string `json:"state"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// Store manages run artifacts on disk.
type Store struct {
	baseDir string // defaults to ~/.taskpilot/runs
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.taskpilot/runs, creating it if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".taskpilot", "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) runDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *Store) recordPath(id string) string {
	return filepath.Join(s.runDir(id), "run.json")
}

// Create initialises a new run on disk and returns its record. Run IDs are
// UTC timestamps, so lexical order is chronological order.
func (s *Store) Create(task string) (*Record, error) {
	id := time.Now().UTC().Format("20060102-150405")
	dir := s.runDir(id)
	for i := 2; ; i++ {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			break
		}
		dir = s.runDir(fmt.Sprintf("%s-%d", id, i))
	}
	id = filepath.Base(dir)

	rec := &Record{
		ID:        id,
		Task:      task,
		State:     "analyzing",
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := writeJSON(s.recordPath(id), rec); err != nil {
		return nil, fmt.Errorf("create run %s: %w", id, err)
	}
	return rec, nil
}

// Save persists the record.
func (s *Store) Save(rec *Record) error {
	return writeJSON(s.recordPath(rec.ID), rec)
}

// Get loads the record for a run.
func (s *Store) Get(id string) (*Record, error) {
	var rec Record
	if err := readJSON(s.recordPath(id), &rec); err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return &rec, nil
}

// List returns all run records, newest first. Corrupt entries are skipped.
func (s *Store) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.baseDir, err)
	}

	var recs []*Record
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rec, err := s.Get(e.Name())
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID > recs[j].ID })
	return recs, nil
}

// SavePlan stores the execution plan for a run.
func (s *Store) SavePlan(id string, p *plan.ExecutionPlan) error {
	return writeJSON(filepath.Join(s.runDir(id), "plan.json"), p)
}

// SaveReport stores the final report for a run.
func (s *Store) SaveReport(id string, report any) error {
	return writeJSON(filepath.Join(s.runDir(id), "report.json"), report)
}

// SavePrompt stores a rendered prompt for later inspection. Prompts are
// numbered in call order.
func (s *Store) SavePrompt(id, name, content string) error {
	dir := filepath.Join(s.runDir(id), "prompts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir prompts: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%03d-%s.md", len(entries)+1, name))
	return writeAtomic(path, []byte(content))
}
