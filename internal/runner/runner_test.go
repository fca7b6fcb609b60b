package runner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/busprobe/internal/await"
	"github.com/solatis/busprobe/internal/buffer"
	"github.com/solatis/busprobe/internal/dsl"
	"github.com/solatis/busprobe/internal/match"
	"github.com/solatis/busprobe/internal/report"
	"github.com/solatis/busprobe/internal/scenario"
	"github.com/solatis/busprobe/internal/types"
)

var fast = await.Config{Timeout: 200 * time.Millisecond, PollInterval: 5 * time.Millisecond}

const orderTemplate = `{"order":{"id":"placeholder","status":"NEW","qty":1}}`

func newRunner(t *testing.T, pub Publisher) (*Runner, *buffer.Buffer) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "order.json"), []byte(orderTemplate), 0o600))

	buf := buffer.New(0)
	r, err := New(Options{
		Buffer:     buf,
		Resolver:   dsl.NewResolver(dsl.Builtins()),
		Publisher:  pub,
		PayloadDir: dir,
		Await:      fast,
	})
	require.NoError(t, err)
	return r, buf
}

func parse(t *testing.T, src string) []*Scenario {
	t.Helper()
	scenarios, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	return scenarios
}

func TestParse_OrderedFieldsAndSteps(t *testing.T) {
	scenarios := parse(t, `
name: order lifecycle
tags: ["@smoke"]
test_case_id: "4711"
steps:
  - payload_values:
      orderId: $SHORT_UUID
  - publish:
      template: order.json
      subject: orders.created
      headers:
        source: busprobe
      fields:
        z.last: "1"
        a.first: "2"
        m.middle: ~
  - expect:
      topic: orders.closed
      timeout: 5s
      fields:
        Message.order.status: CLOSED
  - expect_none:
      fields:
        Message.order.status: ERROR
  - ingest:
      topic: orders.closed
      Message: {qty: 5, price: 2.50}
---
name: second
steps:
  - ingest: {a: 1}
`)
	require.Len(t, scenarios, 2)
	sc := scenarios[0]
	assert.Equal(t, "4711", sc.TestCaseID)
	assert.Equal(t, []string{"@smoke"}, sc.Tags)
	require.Len(t, sc.Steps, 5)

	pub := sc.Steps[1].Publish
	assert.Equal(t, Fields{{Path: "z.last", Value: "1"}, {Path: "a.first", Value: "2"}, {Path: "m.middle", Value: ""}}, pub.Fields)
	assert.Equal(t, map[string]string{"source": "busprobe"}, pub.Headers)

	assert.Equal(t, StepExpect, sc.Steps[2].Kind)
	assert.Equal(t, 5*time.Second, sc.Steps[2].Expect.Timeout)
	assert.Equal(t, StepExpectNone, sc.Steps[3].Kind)

	body := sc.Steps[4].Ingest.(map[string]any)
	msg := body["Message"].(map[string]any)
	assert.Equal(t, json.Number("5"), msg["qty"])
	assert.Equal(t, json.Number("2.5"), msg["price"])
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown step kind":   "name: x\nsteps:\n  - sleep: 1\n",
		"two kinds in a step": "name: x\nsteps:\n  - ingest: {a: 1}\n    expect: {topic: t}\n",
		"missing name":        "steps:\n  - ingest: {a: 1}\n",
		"no steps":            "name: x\n",
		"publish no template": "name: x\nsteps:\n  - publish: {subject: s}\n",
		"empty expect":        "name: x\nsteps:\n  - expect: {timeout: 1s}\n",
		"nested field value":  "name: x\nsteps:\n  - expect:\n      fields:\n        a: {b: c}\n",
		"unknown key":         "name: x\ncolour: red\nsteps:\n  - ingest: {a: 1}\n",
		"bad timeout":         "name: x\nsteps:\n  - expect: {topic: t, timeout: soon}\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestLoadFiles_FiltersByTag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: a
tags: ["@smoke"]
steps: [{ingest: {x: 1}}]
---
name: b
tags: ["@slow"]
steps: [{ingest: {x: 1}}]
`), 0o600))

	all, err := LoadFiles([]string{path}, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, path, all[0].File)

	smoke, err := LoadFiles([]string{path}, []string{"@smoke"})
	require.NoError(t, err)
	require.Len(t, smoke, 1)
	assert.Equal(t, "a", smoke[0].Name)

	_, err = LoadFiles([]string{filepath.Join(dir, "absent.yaml")}, nil)
	assert.Error(t, err)
}

func TestRun_OfflinePublishAndExpect(t *testing.T) {
	r, _ := newRunner(t, nil)
	scenarios := parse(t, `
name: order opens
test_case_id: "100"
steps:
  - payload_values:
      orderId: ORD-1001
      ref: $5_RANDOM_CHARS
  - publish:
      template: order.json
      subject: orders.created
      fields:
        order.id: $PAYLOAD_VALUE(orderId)
        order.status: OPEN
        order.qty: "5"
  - expect:
      topic: orders.created
      fields:
        Message.order.id: $PAYLOAD_VALUE(orderId)
        Message.order.status: OPEN
        Message.order.qty: "5"
  - expect_none:
      timeout: 30ms
      fields:
        Message.order.status: CLOSED
`)

	sum, err := r.Run(context.Background(), scenarios, nil)
	require.NoError(t, err)
	require.Len(t, sum.Tests, 1)
	assert.Equal(t, report.StatusPassed, sum.Tests[0].Status, "events: %+v", sum.Tests[0].Events)
	assert.Equal(t, []report.CaseOutcome{{TestCaseID: "100", Outcome: report.OutcomePassed, Scenarios: 1}}, sum.Cases)
}

func TestRun_ExpectTimeoutFailsScenario(t *testing.T) {
	r, _ := newRunner(t, nil)
	scenarios := parse(t, `
name: never closes
steps:
  - ingest: {topic: orders, Message: {status: OPEN}}
  - expect:
      timeout: 30ms
      fields:
        Message.status: CLOSED
  - ingest: {never: reached}
`)

	sum, err := r.Run(context.Background(), scenarios, nil)
	require.NoError(t, err)
	require.Len(t, sum.Tests, 1)
	test := sum.Tests[0]
	assert.Equal(t, report.StatusFailed, test.Status)

	var failures []string
	for _, ev := range test.Events {
		if ev.Level == report.LevelFail {
			failures = append(failures, ev.Message)
		}
	}
	require.Len(t, failures, 2)
	assert.Contains(t, failures[0], "step 2 (expect)")
	assert.Contains(t, failures[0], "no message found matching")
	assert.Equal(t, "Scenario failed: never closes", failures[1])
}

func TestRun_ClearsBufferBetweenScenarios(t *testing.T) {
	r, buf := newRunner(t, nil)
	scenarios := parse(t, `
name: first
steps:
  - ingest: {topic: orders, Message: {status: OPEN}}
---
name: second
steps:
  - expect:
      timeout: 30ms
      fields:
        Message.status: OPEN
`)

	sum, err := r.Run(context.Background(), scenarios, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Passed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 0, buf.Len())
}

func TestRun_ExpectNoneFailsOnMatch(t *testing.T) {
	r, _ := newRunner(t, nil)
	scenarios := parse(t, `
name: error emitted
steps:
  - ingest: {topic: orders.error, Message: {code: E42}}
  - expect_none:
      topic: orders.error
      timeout: 50ms
`)

	sum, err := r.Run(context.Background(), scenarios, nil)
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, sum.Tests[0].Status)
}

type recordingPublisher struct {
	subject string
	data    []byte
	headers map[string]string
	err     error
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	p.subject, p.data, p.headers = subject, data, headers
	return p.err
}

func TestRunScenario_PublishResolvesFieldsAndHeaders(t *testing.T) {
	pub := &recordingPublisher{}
	r, _ := newRunner(t, pub)
	r.defaultSubject = "orders.default"
	sc := parse(t, `
name: publish
steps:
  - payload_values:
      id: AB-cd
  - publish:
      template: order.json
      headers:
        x-order: $REMOVE_DASHES($PAYLOAD_VALUE(id))
      fields:
        order.id: $PAYLOAD_VALUE(id)
        order.status: $MISSING
        order.qty: "null"
`)[0]

	run := report.NewRun(context.Background(), nil, nil)
	require.NoError(t, r.RunScenario(context.Background(), run, sc))

	assert.Equal(t, "orders.default", pub.subject)
	assert.Equal(t, map[string]string{"x-order": "ABcd"}, pub.headers)
	assert.JSONEq(t, `{"order":{"id":"AB-cd","qty":null}}`, string(pub.data))
}

func TestRunScenario_Errors(t *testing.T) {
	t.Run("publisher failure", func(t *testing.T) {
		r, _ := newRunner(t, &recordingPublisher{err: assert.AnError})
		sc := parse(t, "name: x\nsteps:\n  - publish: {template: order.json, subject: s}\n")[0]
		err := r.RunScenario(context.Background(), report.NewRun(context.Background(), nil, nil), sc)
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("no subject", func(t *testing.T) {
		r, _ := newRunner(t, &recordingPublisher{})
		sc := parse(t, "name: x\nsteps:\n  - publish: {template: order.json}\n")[0]
		err := r.RunScenario(context.Background(), report.NewRun(context.Background(), nil, nil), sc)
		assert.ErrorContains(t, err, "no subject")
	})

	t.Run("unknown DSL function", func(t *testing.T) {
		r, _ := newRunner(t, nil)
		sc := parse(t, "name: x\nsteps:\n  - expect: {fields: {a: $NOPE}}\n")[0]
		err := r.RunScenario(context.Background(), report.NewRun(context.Background(), nil, nil), sc)
		assert.ErrorIs(t, err, types.ErrUnknownFunction)
	})

	t.Run("missing template", func(t *testing.T) {
		r, _ := newRunner(t, nil)
		sc := parse(t, "name: x\nsteps:\n  - publish: {template: absent.json, subject: s}\n")[0]
		err := r.RunScenario(context.Background(), report.NewRun(context.Background(), nil, nil), sc)
		assert.Error(t, err)
	})
}

func TestRun_CancelledContext(t *testing.T) {
	r, _ := newRunner(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := r.Run(ctx, parse(t, "name: x\nsteps: [{ingest: {a: 1}}]\n"), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sum.Tests)
}

func TestLoopback_Envelope(t *testing.T) {
	buf := buffer.New(0)
	lb := &Loopback{Buffer: buf, now: func() time.Time { return time.UnixMilli(1700000000123) }}
	require.NoError(t, lb.Publish(context.Background(), "orders", []byte(`{"id":7}`), map[string]string{"k": "v"}))

	docs := buf.Snapshot()
	require.Len(t, docs, 1)
	assert.Equal(t, ScenarioSource, docs[0].Source)

	for path, want := range map[string]string{
		"topic":      "orders",
		"Timestamp":  "1700000000123",
		"Headers.k":  "v",
		"Message.id": "7",
	} {
		res, err := match.Resolve(docs[0].Body, path)
		require.NoError(t, err)
		assert.Equal(t, want, match.Text(res.Value), path)
	}
}

func TestRun_TestCaseIDInContext(t *testing.T) {
	r, _ := newRunner(t, nil)
	var seen string
	r.resolver = resolverFunc(func(raw string, sc *scenario.Context) (string, error) {
		id, _ := scenario.Get[string](sc, scenario.KeyTestCaseID)
		seen = id
		return raw, nil
	})

	_, err := r.Run(context.Background(), parse(t, "name: x\ntest_case_id: \"77\"\nsteps:\n  - payload_values: {a: b}\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "77", seen)
}

type resolverFunc func(raw string, sc *scenario.Context) (string, error)

func (f resolverFunc) Resolve(raw string, sc *scenario.Context) (string, error) {
	return f(raw, sc)
}
