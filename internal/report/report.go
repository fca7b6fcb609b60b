// internal/report/report.go
package report

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solatis/busprobe/internal/types"
)

/*
 * Test run reporting.
 *
 * A Run owns the tests of one runner invocation. Scenario code holds the
 * *Test it is working on and passes it to every call, so concurrent
 * scenarios never share reporting state.
 *
 * Every lifecycle event fans out to a Reporter (usually a Multi of the log,
 * store and blob sinks). Sink failures during a test are logged and never
 * fail the scenario; FinishRun returns them so the CLI can exit non-zero.
 *
 * Outcomes are also aggregated per test case id: a case passes only when
 * none of the scenarios carrying its id failed.
 */

// Status is the outcome of one test.
type Status string

const (
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// Level classifies a test log line.
type Level string

const (
	LevelInfo Level = "info"
	LevelPass Level = "pass"
	LevelFail Level = "fail"
)

// Event is one line in a test's log.
type Event struct {
	Seq     int       `json:"seq"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Reporter is a sink for run and test lifecycle events.
type Reporter interface {
	StartRun(ctx context.Context, run *Run) error
	StartTest(ctx context.Context, t *Test) error
	Log(ctx context.Context, t *Test, ev Event) error
	EndTest(ctx context.Context, t *Test) error
	FinishRun(ctx context.Context, s *Summary) error
}

// Test is one scenario being reported.
type Test struct {
	ID         types.ResultID
	RunID      types.RunID
	Name       string
	Tags       []string
	TestCaseID string
	StartedAt  time.Time

	mu         sync.Mutex
	events     []Event
	failed     bool
	finishedAt time.Time
}

// Status returns running until EndTest, then passed or failed.
func (t *Test) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Test) statusLocked() Status {
	switch {
	case t.finishedAt.IsZero():
		return StatusRunning
	case t.failed:
		return StatusFailed
	default:
		return StatusPassed
	}
}

// Failed reports whether any failure was logged.
func (t *Test) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// FinishedAt is zero while the test runs.
func (t *Test) FinishedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishedAt
}

// Events returns a copy of the test log.
func (t *Test) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.events)
}

// Run collects the tests of one runner invocation.
type Run struct {
	ID        types.RunID
	StartedAt time.Time

	reporter Reporter
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	tests []*Test
}

// NewRun starts a run and notifies the reporter. A nil reporter records
// results in memory only.
func NewRun(ctx context.Context, reporter Reporter, logger *zap.Logger) *Run {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Run{
		ID:       types.NewRunID(),
		reporter: reporter,
		logger:   logger,
		now:      time.Now,
	}
	r.StartedAt = r.now().UTC()
	r.notify("start run", func() error { return r.reporter.StartRun(ctx, r) })
	return r
}

// StartTest registers a new running test.
func (r *Run) StartTest(ctx context.Context, name string, tags []string, testCaseID string) *Test {
	t := &Test{
		ID:         types.NewResultID(),
		RunID:      r.ID,
		Name:       name,
		Tags:       slices.Clone(tags),
		TestCaseID: testCaseID,
		StartedAt:  r.now().UTC(),
	}
	r.mu.Lock()
	r.tests = append(r.tests, t)
	r.mu.Unlock()

	r.notify("start test", func() error { return r.reporter.StartTest(ctx, t) })
	return t
}

// Info logs a progress line.
func (r *Run) Info(ctx context.Context, t *Test, msg string) {
	r.log(ctx, t, LevelInfo, msg)
}

// Pass logs a passed check.
func (r *Run) Pass(ctx context.Context, t *Test, msg string) {
	r.log(ctx, t, LevelPass, msg)
}

// Fail logs a failed check and marks the test failed.
func (r *Run) Fail(ctx context.Context, t *Test, msg string) {
	r.log(ctx, t, LevelFail, msg)
}

// Error is Fail with an error's message.
func (r *Run) Error(ctx context.Context, t *Test, err error) {
	r.log(ctx, t, LevelFail, err.Error())
}

func (r *Run) log(ctx context.Context, t *Test, level Level, msg string) {
	t.mu.Lock()
	ev := Event{Seq: len(t.events) + 1, Level: level, Message: msg, At: r.now().UTC()}
	t.events = append(t.events, ev)
	if level == LevelFail {
		t.failed = true
	}
	t.mu.Unlock()

	r.notify("log", func() error { return r.reporter.Log(ctx, t, ev) })
}

// EndTest finishes a test. Calling it twice is a no-op.
func (r *Run) EndTest(ctx context.Context, t *Test) {
	t.mu.Lock()
	if !t.finishedAt.IsZero() {
		t.mu.Unlock()
		return
	}
	t.finishedAt = r.now().UTC()
	t.mu.Unlock()

	r.notify("end test", func() error { return r.reporter.EndTest(ctx, t) })
}

// Summary snapshots the run.
func (r *Run) Summary() *Summary {
	r.mu.Lock()
	tests := slices.Clone(r.tests)
	r.mu.Unlock()

	s := &Summary{RunID: r.ID, StartedAt: r.StartedAt}
	for _, t := range tests {
		t.mu.Lock()
		ts := TestSummary{
			ID:         t.ID,
			Name:       t.Name,
			Tags:       t.Tags,
			TestCaseID: t.TestCaseID,
			Status:     t.statusLocked(),
			StartedAt:  t.StartedAt,
			FinishedAt: t.finishedAt,
			Events:     slices.Clone(t.events),
		}
		t.mu.Unlock()

		switch ts.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		}
		s.Tests = append(s.Tests, ts)
	}
	s.Cases = AggregateCases(s.Tests)
	return s
}

// Finish ends any test still running, stamps the summary and notifies the
// reporter. Reporter errors are returned.
func (r *Run) Finish(ctx context.Context) (*Summary, error) {
	r.mu.Lock()
	tests := slices.Clone(r.tests)
	r.mu.Unlock()
	for _, t := range tests {
		r.EndTest(ctx, t)
	}

	s := r.Summary()
	s.FinishedAt = r.now().UTC()
	if r.reporter == nil {
		return s, nil
	}
	return s, r.reporter.FinishRun(ctx, s)
}

func (r *Run) notify(op string, fn func() error) {
	if r.reporter == nil {
		return
	}
	if err := fn(); err != nil {
		r.logger.Warn("Reporter failed", zap.String("op", op), zap.Error(err))
	}
}

// Summary is the serialized outcome of a run.
type Summary struct {
	RunID      types.RunID   `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Tests      []TestSummary `json:"tests"`
	Cases      []CaseOutcome `json:"test_cases,omitempty"`
}

// OK reports whether every test passed.
func (s *Summary) OK() bool {
	return s.Failed == 0
}

// TestSummary is one test in a Summary.
type TestSummary struct {
	ID         types.ResultID `json:"id"`
	Name       string         `json:"name"`
	Tags       []string       `json:"tags,omitempty"`
	TestCaseID string         `json:"test_case_id,omitempty"`
	Status     Status         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Events     []Event        `json:"events,omitempty"`
}

// Case outcomes.
const (
	OutcomePassed = "Passed"
	OutcomeFailed = "Failed"
)

// CaseOutcome aggregates every scenario sharing a test case id.
type CaseOutcome struct {
	TestCaseID string `json:"test_case_id"`
	Outcome    string `json:"outcome"`
	Scenarios  int    `json:"scenarios"`
	Failures   int    `json:"failures"`
}

// AggregateCases groups finished tests by test case id, sorted by id.
// Tests without an id and tests still running are skipped.
func AggregateCases(tests []TestSummary) []CaseOutcome {
	byID := make(map[string]*CaseOutcome)
	for _, t := range tests {
		if t.TestCaseID == "" || t.Status == StatusRunning {
			continue
		}
		c, ok := byID[t.TestCaseID]
		if !ok {
			c = &CaseOutcome{TestCaseID: t.TestCaseID}
			byID[t.TestCaseID] = c
		}
		c.Scenarios++
		if t.Status == StatusFailed {
			c.Failures++
		}
	}

	out := make([]CaseOutcome, 0, len(byID))
	for _, c := range byID {
		c.Outcome = OutcomePassed
		if c.Failures > 0 {
			c.Outcome = OutcomeFailed
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestCaseID < out[j].TestCaseID })
	return out
}

// Multi fans every event out to all reporters and joins their errors.
type Multi []Reporter

func (m Multi) each(fn func(Reporter) error) error {
	var errs []error
	for _, r := range m {
		if err := fn(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) StartRun(ctx context.Context, run *Run) error {
	return m.each(func(r Reporter) error { return r.StartRun(ctx, run) })
}

func (m Multi) StartTest(ctx context.Context, t *Test) error {
	return m.each(func(r Reporter) error { return r.StartTest(ctx, t) })
}

func (m Multi) Log(ctx context.Context, t *Test, ev Event) error {
	return m.each(func(r Reporter) error { return r.Log(ctx, t, ev) })
}

func (m Multi) EndTest(ctx context.Context, t *Test) error {
	return m.each(func(r Reporter) error { return r.EndTest(ctx, t) })
}

func (m Multi) FinishRun(ctx context.Context, s *Summary) error {
	return m.each(func(r Reporter) error { return r.FinishRun(ctx, s) })
}
