package report

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/solatis/busprobe/internal/types"
)

// Queries is the subset of *db.Queries the store needs.
type Queries interface {
	Exec(ctx context.Context, name string, args ...any) (sql.Result, error)
	Get(ctx context.Context, name string, dest any, args ...any) error
	Select(ctx context.Context, name string, dest any, args ...any) error
}

// StoreReporter persists runs, tests and test events through named queries.
// Timestamps are stored as RFC3339 UTC text on both drivers.
type StoreReporter struct {
	q Queries
}

// NewStoreReporter creates a store sink. Migrations must already be applied.
func NewStoreReporter(q Queries) (*StoreReporter, error) {
	if q == nil {
		return nil, fmt.Errorf("queries cannot be nil")
	}
	return &StoreReporter{q: q}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Tags are stored comma-joined; tag names never contain commas.
func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func (s *StoreReporter) StartRun(ctx context.Context, run *Run) error {
	if _, err := s.q.Exec(ctx, "insert-run", string(run.ID), formatTime(run.StartedAt)); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (s *StoreReporter) StartTest(ctx context.Context, t *Test) error {
	_, err := s.q.Exec(ctx, "insert-test-result",
		string(t.ID), string(t.RunID), t.Name, nullable(t.TestCaseID), joinTags(t.Tags), formatTime(t.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to insert test result: %w", err)
	}
	return nil
}

func (s *StoreReporter) Log(ctx context.Context, t *Test, ev Event) error {
	_, err := s.q.Exec(ctx, "insert-test-event",
		string(t.ID), ev.Seq, string(ev.Level), ev.Message, formatTime(ev.At))
	if err != nil {
		return fmt.Errorf("failed to insert test event: %w", err)
	}
	return nil
}

func (s *StoreReporter) EndTest(ctx context.Context, t *Test) error {
	_, err := s.q.Exec(ctx, "finish-test-result", string(t.Status()), formatTime(t.FinishedAt()), string(t.ID))
	if err != nil {
		return fmt.Errorf("failed to finish test result: %w", err)
	}
	return nil
}

func (s *StoreReporter) FinishRun(ctx context.Context, sum *Summary) error {
	_, err := s.q.Exec(ctx, "finish-run", formatTime(sum.FinishedAt), sum.Passed, sum.Failed, string(sum.RunID))
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// RunRecord is a stored run row.
type RunRecord struct {
	RunID      string         `db:"run_id"`
	StartedAt  string         `db:"started_at"`
	FinishedAt sql.NullString `db:"finished_at"`
	Passed     int            `db:"passed"`
	Failed     int            `db:"failed"`
}

type resultRow struct {
	ResultID   string         `db:"result_id"`
	RunID      string         `db:"run_id"`
	Name       string         `db:"name"`
	TestCaseID sql.NullString `db:"test_case_id"`
	Tags       string         `db:"tags"`
	Status     string         `db:"status"`
	StartedAt  string         `db:"started_at"`
	FinishedAt sql.NullString `db:"finished_at"`
}

type eventRow struct {
	ResultID string `db:"result_id"`
	Seq      int    `db:"seq"`
	Level    string `db:"level"`
	Message  string `db:"message"`
	LoggedAt string `db:"logged_at"`
}

// Runs lists the most recent runs, newest first.
func (s *StoreReporter) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	if err := s.q.Select(ctx, "list-runs", &runs, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// LoadSummary rebuilds a stored run with its tests, events and case outcomes.
func (s *StoreReporter) LoadSummary(ctx context.Context, runID types.RunID) (*Summary, error) {
	var run RunRecord
	if err := s.q.Get(ctx, "get-run", &run, string(runID)); err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	var rows []resultRow
	if err := s.q.Select(ctx, "list-test-results", &rows, string(runID)); err != nil {
		return nil, fmt.Errorf("failed to list test results: %w", err)
	}

	sum := &Summary{
		RunID:      types.RunID(run.RunID),
		StartedAt:  parseTime(run.StartedAt),
		FinishedAt: parseTime(run.FinishedAt.String),
		Passed:     run.Passed,
		Failed:     run.Failed,
	}
	for _, row := range rows {
		var events []eventRow
		if err := s.q.Select(ctx, "list-test-events", &events, row.ResultID); err != nil {
			return nil, fmt.Errorf("failed to list events for %s: %w", row.ResultID, err)
		}
		ts := TestSummary{
			ID:         types.ResultID(row.ResultID),
			Name:       row.Name,
			Tags:       splitTags(row.Tags),
			TestCaseID: row.TestCaseID.String,
			Status:     Status(row.Status),
			StartedAt:  parseTime(row.StartedAt),
			FinishedAt: parseTime(row.FinishedAt.String),
		}
		for _, e := range events {
			ts.Events = append(ts.Events, Event{Seq: e.Seq, Level: Level(e.Level), Message: e.Message, At: parseTime(e.LoggedAt)})
		}
		sum.Tests = append(sum.Tests, ts)
	}
	sum.Cases = AggregateCases(sum.Tests)
	return sum, nil
}

// parseTime returns zero for empty or malformed values.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
