package ci

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/taskpilot/taskpilot/internal/apply"
	"github.com/taskpilot/taskpilot/internal/gh"
)

// fakeRuns serves one Run per LatestRun call, repeating the last.
type fakeRuns struct {
	runs    []*gh.Run
	logs    string
	logsErr error
	polls   int
}

func (f *fakeRuns) LatestRun(branch string) (*gh.Run, error) {
	f.polls++
	i := f.polls - 1
	if len(f.runs) == 0 {
		return nil, nil
	}
	if i >= len(f.runs) {
		i = len(f.runs) - 1
	}
	return f.runs[i], nil
}

func (f *fakeRuns) RunLogs(runID int64) (string, error) {
	return f.logs, f.logsErr
}

type ciFixer struct {
	fixed []string
	kinds []string
}

func (f *ciFixer) FixFromLogs(ctx context.Context, path, kind, logs string) (*apply.FileChange, error) {
	f.fixed = append(f.fixed, path)
	f.kinds = append(f.kinds, kind)
	return &apply.FileChange{Path: path}, nil
}

type ciPublisher struct {
	published []string
}

func (p *ciPublisher) Publish(message string) error {
	p.published = append(p.published, message)
	return nil
}

// fakeClock makes sleeps advance virtual time so wait windows expire
// without real waiting.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time        { return c.t }
func (c *fakeClock) sleep(d time.Duration) { c.t = c.t.Add(d) }

func newTestWatcher(runs RunSource, fixer Fixer, pub Publisher, fallback Fallback, maxRetries int) (*Watcher, *fakeClock) {
	w := NewWatcher(runs, fixer, pub, fallback, time.Second, time.Minute, maxRetries, nil)
	clk := &fakeClock{t: time.Unix(0, 0)}
	w.now = clk.now
	w.sleep = clk.sleep
	return w, clk
}

func completed(id int64, conclusion string) *gh.Run {
	return &gh.Run{ID: id, Name: "build", Status: "completed", Conclusion: conclusion}
}

func TestWatch_SuccessFirstPoll(t *testing.T) {
	runs := &fakeRuns{runs: []*gh.Run{completed(1, "success")}}
	w, _ := newTestWatcher(runs, &ciFixer{}, &ciPublisher{}, nil, 3)

	res := w.Watch(context.Background(), "b")
	if res.Status != StatusSuccess || res.Runs != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestWatch_PendingThenSuccess(t *testing.T) {
	runs := &fakeRuns{runs: []*gh.Run{
		{ID: 1, Status: "queued"},
		{ID: 1, Status: "in_progress"},
		completed(1, "success"),
	}}
	w, _ := newTestWatcher(runs, &ciFixer{}, &ciPublisher{}, nil, 3)

	res := w.Watch(context.Background(), "b")
	if res.Status != StatusSuccess {
		t.Errorf("unexpected result: %+v", res)
	}
	if runs.polls != 3 {
		t.Errorf("polled %d times, want 3", runs.polls)
	}
}

func TestWatch_OnPollObservesEveryRun(t *testing.T) {
	runs := &fakeRuns{runs: []*gh.Run{
		{ID: 1, Status: "in_progress"},
		completed(1, "success"),
	}}
	w, _ := newTestWatcher(runs, &ciFixer{}, &ciPublisher{}, nil, 3)
	var seen []Status
	w.OnPoll = func(s Status) { seen = append(seen, s) }

	w.Watch(context.Background(), "b")
	if len(seen) != 2 || seen[0] != StatusRunning || seen[1] != StatusSuccess {
		t.Errorf("unexpected poll history: %v", seen)
	}
}

func TestWatch_CancelledIsTerminal(t *testing.T) {
	runs := &fakeRuns{runs: []*gh.Run{completed(1, "cancelled")}}
	fixer := &ciFixer{}
	w, _ := newTestWatcher(runs, fixer, &ciPublisher{}, nil, 3)

	res := w.Watch(context.Background(), "b")
	if res.Status != StatusCancelled {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(fixer.fixed) != 0 {
		t.Error("cancelled runs must not trigger fixes")
	}
}

// A failure is fixed from its logs and the next run passes.
func TestWatch_FailureFixedThenPasses(t *testing.T) {
	runs := &fakeRuns{
		runs: []*gh.Run{completed(1, "failure"), completed(2, "success")},
		logs: "main.go:12:5: undefined: newFlag\nFAIL example.com/app [build failed]",
	}
	fixer := &ciFixer{}
	pub := &ciPublisher{}
	w, _ := newTestWatcher(runs, fixer, pub, nil, 3)

	res := w.Watch(context.Background(), "b")
	if res.Status != StatusSuccess || res.Runs != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(fixer.fixed) != 1 || fixer.fixed[0] != "main.go" {
		t.Errorf("unexpected fixes: %v", fixer.fixed)
	}
	if fixer.kinds[0] != "compilation" {
		t.Errorf("failure classified as %q, want compilation", fixer.kinds[0])
	}
	if len(pub.published) != 1 {
		t.Errorf("fix should be pushed once: %v", pub.published)
	}
}

// Exhausting the retry budget fails but never deletes or closes the PR;
// the result just reports failure. Each attempt is charged against a
// distinct run: every fix push triggered a fresh workflow run.
func TestWatch_RetryExhaustion(t *testing.T) {
	runs := &fakeRuns{
		runs: []*gh.Run{completed(1, "failure"), completed(2, "failure"), completed(3, "failure")},
		logs: "main.go:12:5: undefined: newFlag",
	}
	w, _ := newTestWatcher(runs, &ciFixer{}, &ciPublisher{}, nil, 2)

	res := w.Watch(context.Background(), "b")
	if res.Status != StatusFailed {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Runs != 2 {
		t.Errorf("consumed %d fix attempts, want 2", res.Runs)
	}
}

// gh keeps reporting the just-fixed run as the latest one for a while
// after the fix push. That stale run must not burn further fix attempts:
// the watcher waits for a run with a new id, and gives up only when the
// wait window closes without one appearing.
func TestWatch_StaleRunDoesNotBurnRetries(t *testing.T) {
	runs := &fakeRuns{
		runs: []*gh.Run{completed(42, "failure")},
		logs: "main.go:12:5: undefined: newFlag",
	}
	fixer := &ciFixer{}
	pub := &ciPublisher{}
	w, clk := newTestWatcher(runs, fixer, pub, nil, 3)

	res := w.Watch(context.Background(), "b")
	if res.Status != StatusFailed {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Runs != 1 {
		t.Errorf("consumed %d fix attempts against one run, want 1", res.Runs)
	}
	if len(fixer.fixed) != 1 || len(pub.published) != 1 {
		t.Errorf("fixes=%v pushes=%v, want one of each", fixer.fixed, pub.published)
	}
	if !strings.Contains(res.Message, "conclude") {
		t.Errorf("message should mention the window: %q", res.Message)
	}
	if clk.t.Equal(time.Unix(0, 0)) {
		t.Error("watcher never slept between polls of the stale run")
	}
}

// After a fix push the watcher keeps polling through the stale run until
// a fresh run appears, then classifies only the fresh one.
func TestWatch_FixObservedByFreshRunOnly(t *testing.T) {
	runs := &fakeRuns{
		runs: []*gh.Run{
			completed(1, "failure"),
			completed(1, "failure"), // stale echo of the fixed run
			completed(1, "failure"),
			completed(2, "success"),
		},
		logs: "main.go:12:5: undefined: newFlag",
	}
	fixer := &ciFixer{}
	w, _ := newTestWatcher(runs, fixer, &ciPublisher{}, nil, 3)

	res := w.Watch(context.Background(), "b")
	if res.Status != StatusSuccess || res.Runs != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(fixer.fixed) != 1 {
		t.Errorf("stale polls triggered extra fixes: %v", fixer.fixed)
	}
	if runs.polls != 4 {
		t.Errorf("polled %d times, want 4", runs.polls)
	}
}

// Unavailable logs fall back to local validation as the fix signal.
func TestWatch_LogFetchFallsBackToLocal(t *testing.T) {
	runs := &fakeRuns{
		runs:    []*gh.Run{completed(1, "failure"), completed(2, "success")},
		logsErr: errors.New("log expired"),
	}
	fallbackRan := false
	fallback := func(ctx context.Context) error {
		fallbackRan = true
		return nil
	}
	pub := &ciPublisher{}
	w, _ := newTestWatcher(runs, &ciFixer{}, pub, fallback, 3)

	res := w.Watch(context.Background(), "b")
	if res.Status != StatusSuccess {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !fallbackRan {
		t.Error("fallback should run when logs are unavailable")
	}
	if len(pub.published) != 1 {
		t.Error("fallback fix should still be pushed")
	}
}

// A branch with no workflow runs at all counts as success once the window
// closes.
func TestWatch_NoWorkflowsIsSuccess(t *testing.T) {
	runs := &fakeRuns{}
	w, _ := newTestWatcher(runs, &ciFixer{}, &ciPublisher{}, nil, 3)

	res := w.Watch(context.Background(), "b")
	if res.Status != StatusSuccess {
		t.Errorf("unexpected result: %+v", res)
	}
}

// A run that never concludes exhausts the wait window and fails.
func TestWatch_WindowExpiry(t *testing.T) {
	runs := &fakeRuns{runs: []*gh.Run{{ID: 1, Status: "in_progress"}}}
	w, _ := newTestWatcher(runs, &ciFixer{}, &ciPublisher{}, nil, 3)

	res := w.Watch(context.Background(), "b")
	if res.Status != StatusFailed {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(res.Message, "conclude") {
		t.Errorf("message should mention the window: %q", res.Message)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		logs string
		want string
	}{
		{"pkg.go:1:1: syntax error: unexpected }", "compilation"},
		{"--- FAIL: TestThing (0.01s)", "test"},
		{"golangci-lint found 3 issues", "lint"},
		{"something exploded", "unknown"},
	}
	for _, tt := range tests {
		if got := Classify(tt.logs); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.logs, got, tt.want)
		}
	}
}
