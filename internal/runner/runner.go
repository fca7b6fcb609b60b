// internal/runner/runner.go
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/solatis/busprobe/internal/await"
	"github.com/solatis/busprobe/internal/match"
	"github.com/solatis/busprobe/internal/payload"
	"github.com/solatis/busprobe/internal/report"
	"github.com/solatis/busprobe/internal/scenario"
	"github.com/solatis/busprobe/internal/transport/natsbus"
	"github.com/solatis/busprobe/internal/types"
)

/*
 * Scenario execution.
 *
 * Scenarios run one at a time against the shared buffer. Before each one
 * the buffer is cleared and a fresh scenario context is created, so a
 * message left over from an earlier scenario can never satisfy a later
 * expectation.
 *
 * Steps run in order and the first failing step ends the scenario. Every
 * step outcome is written to the run's report.
 *
 *   payload_values  DSL-resolved values stored for $PAYLOAD_VALUE
 *   publish         template + fields -> JSON -> Publisher
 *   expect          FilterSet (+ topic filter) -> AwaitMatch
 *   expect_none     FilterSet (+ topic filter) -> AwaitNoMatch
 *   ingest          inline document appended to the buffer
 */

// ScenarioSource marks documents added by ingest steps and loopback publishes.
const ScenarioSource = "scenario"

// Buffer is the message buffer as the runner uses it.
type Buffer interface {
	await.Source
	Append(doc *types.Document) (*types.Document, error)
	Clear()
}

// Publisher sends a rendered payload. *natsbus.Publisher implements it.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, headers map[string]string) error
}

// Resolver resolves DSL expressions. *dsl.Resolver implements it.
type Resolver interface {
	match.ValueResolver
}

// Options configures a Runner.
type Options struct {
	Buffer         Buffer
	Resolver       Resolver
	Publisher      Publisher // nil publishes back into Buffer
	PayloadDir     string
	DefaultSubject string
	Await          await.Config
	Logger         *zap.Logger
}

// Runner executes scenarios.
type Runner struct {
	buf            Buffer
	resolver       Resolver
	publisher      Publisher
	payloadDir     string
	defaultSubject string
	awaitCfg       await.Config
	awaiter        *await.Awaiter
	logger         *zap.Logger
	tracer         trace.Tracer
}

// New creates a runner.
func New(opts Options) (*Runner, error) {
	if opts.Buffer == nil {
		return nil, fmt.Errorf("buffer cannot be nil")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Publisher == nil {
		opts.Publisher = &Loopback{Buffer: opts.Buffer}
	}

	return &Runner{
		buf:            opts.Buffer,
		resolver:       opts.Resolver,
		publisher:      opts.Publisher,
		payloadDir:     opts.PayloadDir,
		defaultSubject: opts.DefaultSubject,
		awaitCfg:       opts.Await,
		awaiter:        await.New(opts.Buffer, opts.Await, opts.Logger),
		logger:         opts.Logger,
		tracer:         otel.Tracer("github.com/solatis/busprobe/internal/runner"),
	}, nil
}

// Run executes scenarios in order, reporting to reporter, and returns the
// run summary. The error is non-nil only when finishing the report failed
// or ctx was cancelled; failed scenarios are in the summary.
func (r *Runner) Run(ctx context.Context, scenarios []*Scenario, reporter report.Reporter) (*report.Summary, error) {
	run := report.NewRun(ctx, reporter, r.logger)

	var ctxErr error
	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}
		r.RunScenario(ctx, run, sc)
	}

	// report with a fresh context so a cancelled run is still recorded
	summary, err := run.Finish(context.WithoutCancel(ctx))
	return summary, errors.Join(ctxErr, err)
}

// RunScenario executes one scenario and records it in run.
// It returns the first step error, which is also reported.
func (r *Runner) RunScenario(ctx context.Context, run *report.Run, sc *Scenario) error {
	ctx, span := r.tracer.Start(ctx, "scenario",
		trace.WithAttributes(
			attribute.String("scenario.name", sc.Name),
			attribute.String("scenario.test_case_id", sc.TestCaseID),
		))
	defer span.End()

	r.buf.Clear()
	state := scenario.New()
	if sc.TestCaseID != "" {
		state.Put(scenario.KeyTestCaseID, sc.TestCaseID)
	}

	test := run.StartTest(ctx, sc.Name, sc.Tags, sc.TestCaseID)
	defer run.EndTest(ctx, test)

	for i, step := range sc.Steps {
		msg, err := r.runStep(ctx, state, step)
		if err != nil {
			err = fmt.Errorf("step %d (%s): %w", i+1, step.Kind, err)
			run.Error(ctx, test, err)
			run.Fail(ctx, test, "Scenario failed: "+sc.Name)
			span.RecordError(err)
			span.SetStatus(codes.Error, "scenario failed")
			return err
		}
		run.Pass(ctx, test, msg)
	}

	run.Pass(ctx, test, "Scenario passed: "+sc.Name)
	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *Runner) runStep(ctx context.Context, state *scenario.Context, step Step) (string, error) {
	ctx, span := r.tracer.Start(ctx, "step."+step.Kind)
	defer span.End()

	switch step.Kind {
	case StepPayloadValues:
		return r.payloadValues(state, step.PayloadValues)
	case StepPublish:
		return r.publish(ctx, state, step.Publish)
	case StepExpect:
		return r.expect(ctx, state, step.Expect)
	case StepExpectNone:
		return r.expectNone(ctx, state, step.Expect)
	case StepIngest:
		doc, err := r.buf.Append(&types.Document{Source: ScenarioSource, Body: step.Ingest})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Ingested document seq=%d", doc.Seq), nil
	default:
		return "", fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

func (r *Runner) payloadValues(state *scenario.Context, fields Fields) (string, error) {
	for _, f := range fields {
		value, err := r.resolver.Resolve(f.Value, state)
		if err != nil {
			return "", fmt.Errorf("payload value %s: %w", f.Path, err)
		}
		state.SetPayloadValue(f.Path, value)
		r.logger.Debug("Payload value set", zap.String("name", f.Path), zap.String("value", value))
	}
	return fmt.Sprintf("Set %d payload value(s)", len(fields)), nil
}

func (r *Runner) publish(ctx context.Context, state *scenario.Context, step *PublishStep) (string, error) {
	tpl, err := payload.Load(r.payloadDir, step.Template)
	if err != nil {
		return "", err
	}
	if err := tpl.Apply(step.Fields, r.resolver, state); err != nil {
		return "", err
	}

	headers := make(map[string]string, len(step.Headers))
	for k, v := range step.Headers {
		resolved, err := r.resolver.Resolve(v, state)
		if err != nil {
			return "", fmt.Errorf("header %s: %w", k, err)
		}
		headers[k] = resolved
	}

	subject := step.Subject
	if subject == "" {
		subject = r.defaultSubject
	}
	if subject == "" {
		return "", errors.New("no subject given and no default publish subject configured")
	}

	data := tpl.JSON()
	state.SetLastPayload(string(data))
	if err := r.publisher.Publish(ctx, subject, data, headers); err != nil {
		return "", err
	}
	return fmt.Sprintf("Published %s to %s", tpl.Name(), subject), nil
}

func (r *Runner) filterSet(state *scenario.Context, step *ExpectStep) (*match.FilterSet, error) {
	fs, err := match.BuildFilterSet(step.Fields, r.resolver, state)
	if err != nil {
		return nil, err
	}
	if step.Topic != "" {
		if err := fs.Add(types.EnvelopeTopic, step.Topic); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

// awaiterFor honours a per-step timeout override.
func (r *Runner) awaiterFor(step *ExpectStep) *await.Awaiter {
	if step.Timeout <= 0 {
		return r.awaiter
	}
	cfg := r.awaitCfg
	cfg.Timeout = step.Timeout
	if cfg.PollInterval <= 0 || cfg.PollInterval > step.Timeout {
		cfg.PollInterval = min(await.DefaultPollInterval, step.Timeout)
	}
	return await.New(r.buf, cfg, r.logger)
}

func (r *Runner) expect(ctx context.Context, state *scenario.Context, step *ExpectStep) (string, error) {
	fs, err := r.filterSet(state, step)
	if err != nil {
		return "", err
	}
	doc, err := r.awaiterFor(step).AwaitMatch(ctx, fs, state)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Found message seq=%d matching:\n%s", doc.Seq, fs), nil
}

func (r *Runner) expectNone(ctx context.Context, state *scenario.Context, step *ExpectStep) (string, error) {
	fs, err := r.filterSet(state, step)
	if err != nil {
		return "", err
	}
	a := r.awaiterFor(step)
	if err := a.AwaitNoMatch(ctx, fs); err != nil {
		return "", err
	}
	return fmt.Sprintf("No message within %s matching:\n%s", a.Config().Timeout, fs), nil
}

// Loopback publishes into the buffer instead of a bus, wrapping the payload
// in the same envelope the NATS listener produces. Offline runs use it.
type Loopback struct {
	Buffer interface {
		Append(doc *types.Document) (*types.Document, error)
	}
	now func() time.Time
}

// Publish appends the enveloped payload.
func (l *Loopback) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	_, err := l.Buffer.Append(&types.Document{Source: ScenarioSource, Body: natsbus.Envelope(msg, now())})
	return err
}
