package report

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	calls  []string
	failOn string
	sum    *Summary
}

func (r *recorder) record(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if call == r.failOn {
		return errors.New(call + " failed")
	}
	return nil
}

func (r *recorder) StartRun(ctx context.Context, run *Run) error { return r.record("start-run") }
func (r *recorder) StartTest(ctx context.Context, t *Test) error { return r.record("start:" + t.Name) }
func (r *recorder) Log(ctx context.Context, t *Test, ev Event) error {
	return r.record(string(ev.Level) + ":" + ev.Message)
}
func (r *recorder) EndTest(ctx context.Context, t *Test) error {
	return r.record("end:" + t.Name + ":" + string(t.Status()))
}
func (r *recorder) FinishRun(ctx context.Context, s *Summary) error {
	r.sum = s
	return r.record("finish-run")
}

func TestRun_Lifecycle(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	run := NewRun(ctx, rec, nil)

	open := run.StartTest(ctx, "order opens", []string{"@smoke"}, "CASE-1")
	run.Info(ctx, open, "published order")
	run.Pass(ctx, open, "order OPEN received")
	assert.Equal(t, StatusRunning, open.Status())
	run.EndTest(ctx, open)

	closed := run.StartTest(ctx, "order closes", nil, "CASE-1")
	run.Fail(ctx, closed, "no CLOSED message")
	run.EndTest(ctx, closed)
	run.EndTest(ctx, closed)

	sum, err := run.Finish(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start-run",
		"start:order opens", "info:published order", "pass:order OPEN received", "end:order opens:passed",
		"start:order closes", "fail:no CLOSED message", "end:order closes:failed",
		"finish-run",
	}, rec.calls)

	assert.Equal(t, run.ID, sum.RunID)
	assert.Equal(t, 1, sum.Passed)
	assert.Equal(t, 1, sum.Failed)
	assert.False(t, sum.OK())
	require.Len(t, sum.Tests, 2)
	assert.Equal(t, []string{"@smoke"}, sum.Tests[0].Tags)
	require.Len(t, sum.Tests[0].Events, 2)
	assert.Equal(t, 2, sum.Tests[0].Events[1].Seq)
	assert.Equal(t, []CaseOutcome{{TestCaseID: "CASE-1", Outcome: OutcomeFailed, Scenarios: 2, Failures: 1}}, sum.Cases)
	assert.Same(t, sum, rec.sum)
}

func TestRun_FinishEndsRunningTests(t *testing.T) {
	ctx := context.Background()
	run := NewRun(ctx, nil, nil)
	test := run.StartTest(ctx, "dangling", nil, "")

	sum, err := run.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, test.Status())
	assert.Equal(t, 1, sum.Passed)
	assert.False(t, sum.FinishedAt.IsZero())
}

func TestRun_SinkErrorsDoNotFailTests(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{failOn: "start:flaky sink"}
	run := NewRun(ctx, rec, nil)

	test := run.StartTest(ctx, "flaky sink", nil, "")
	run.EndTest(ctx, test)
	assert.Equal(t, StatusPassed, test.Status())

	rec.failOn = "finish-run"
	_, err := run.Finish(ctx)
	assert.EqualError(t, err, "finish-run failed")
}

func TestRun_ConcurrentTests(t *testing.T) {
	ctx := context.Background()
	run := NewRun(ctx, NewLogReporter(nil), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(fail bool) {
			defer wg.Done()
			test := run.StartTest(ctx, "parallel", nil, "")
			if fail {
				run.Fail(ctx, test, "boom")
			} else {
				run.Pass(ctx, test, "ok")
			}
			run.EndTest(ctx, test)
		}(i%2 == 0)
	}
	wg.Wait()

	sum, err := run.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Passed)
	assert.Equal(t, 4, sum.Failed)
}

func TestAggregateCases(t *testing.T) {
	tests := []TestSummary{
		{TestCaseID: "B", Status: StatusPassed},
		{TestCaseID: "A", Status: StatusPassed},
		{TestCaseID: "A", Status: StatusPassed},
		{TestCaseID: "B", Status: StatusFailed},
		{TestCaseID: "C", Status: StatusRunning},
		{Status: StatusFailed},
	}

	got := AggregateCases(tests)
	assert.Equal(t, []CaseOutcome{
		{TestCaseID: "A", Outcome: OutcomePassed, Scenarios: 2},
		{TestCaseID: "B", Outcome: OutcomeFailed, Scenarios: 2, Failures: 1},
	}, got)
	assert.Empty(t, AggregateCases(nil))
}

func TestMulti_JoinsErrors(t *testing.T) {
	a := &recorder{failOn: "start-run"}
	b := &recorder{failOn: "start-run"}
	c := &recorder{}

	err := Multi{a, b, c}.StartRun(context.Background(), &Run{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start-run failed")
	assert.Equal(t, []string{"start-run"}, c.calls)
}
