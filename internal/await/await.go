// internal/await/await.go
package await

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/solatis/busprobe/internal/match"
	"github.com/solatis/busprobe/internal/scenario"
	"github.com/solatis/busprobe/internal/types"
)

/*
 * Bounded polling for messages in the shared buffer.
 *
 * AwaitMatch checks immediately, then every PollInterval, and once more
 * when Timeout expires. Each check takes a fresh snapshot and runs
 * match.FindFullMatch; the first claimed document ends the wait.
 *
 * AwaitNoMatch uses the same cadence with match.AssertNoFullMatch: any
 * full match is a terminal failure, reaching the deadline is success.
 *
 * State transitions:
 *
 *   Polling -> Succeeded   match claimed (AwaitMatch) or deadline reached (AwaitNoMatch)
 *   Polling -> TimedOut    deadline reached without a match (AwaitMatch)
 *   Polling -> Failed      ambiguous match, unexpected match, or ctx cancelled
 *
 * The caller's goroutine blocks for the whole wait; no goroutines are
 * started. Errors are returned once and never retried.
 */

// Default timing used when Config leaves a field zero.
const (
	DefaultTimeout      = 90 * time.Second
	DefaultPollInterval = time.Second
)

// State is the awaiter's position in a single wait.
type State int

const (
	StatePolling State = iota
	StateSucceeded
	StateTimedOut
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source is the buffer as seen by an awaiter.
type Source interface {
	Snapshot() []*types.Document
	match.Store
}

// Config controls wait timing.
type Config struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// NotFoundError is returned by AwaitMatch when Timeout expires.
type NotFoundError struct {
	Timeout  time.Duration
	Filters  string              // rendered FilterSet
	Partials []match.MatchResult // ranked closest first
}

// Error renders the filters and every partial match, closest first.
func (e *NotFoundError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "no message found matching the given filters after %s:\n%s", e.Timeout, e.Filters)
	if len(e.Partials) == 0 {
		sb.WriteString("no message matched any filter")
		return sb.String()
	}
	fmt.Fprintf(&sb, "%d partial matches, closest first:\n", len(e.Partials))
	for i, p := range e.Partials {
		fmt.Fprintf(&sb, "%d. %s", i+1, p)
	}
	return sb.String()
}

func (e *NotFoundError) Unwrap() error {
	return types.ErrNotFound
}

// Awaiter polls a Source for messages matching a FilterSet.
// One Awaiter can serve concurrent waits; each wait owns its FilterSet.
type Awaiter struct {
	src    Source
	cfg    Config
	logger *zap.Logger
	tracer trace.Tracer
}

// New creates an awaiter over src. A nil logger discards logs.
func New(src Source, cfg Config, logger *zap.Logger) *Awaiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Awaiter{
		src:    src,
		cfg:    cfg.withDefaults(),
		logger: logger,
		tracer: otel.Tracer("github.com/solatis/busprobe/internal/await"),
	}
}

// Config returns the effective timing.
func (a *Awaiter) Config() Config {
	return a.cfg
}

// AwaitMatch waits for exactly one buffered message to satisfy fs, claims
// it from the buffer and records it as sc's last matched message.
func (a *Awaiter) AwaitMatch(ctx context.Context, fs *match.FilterSet, sc *scenario.Context) (*types.Document, error) {
	ctx, span := a.tracer.Start(ctx, "await.match", trace.WithAttributes(
		attribute.Int("busprobe.filters", fs.Len()),
		attribute.String("busprobe.timeout", a.cfg.Timeout.String()),
	))
	defer span.End()

	a.logger.Info("Waiting for message matching filters",
		zap.String("filters", fs.String()),
		zap.Duration("timeout", a.cfg.Timeout))

	var found *types.Document
	state, attempts, err := a.poll(ctx, func() (bool, error) {
		doc, err := match.FindFullMatch(a.src.Snapshot(), fs, a.src)
		if err != nil {
			return false, err
		}
		found = doc
		return doc != nil, nil
	})
	span.SetAttributes(
		attribute.String("busprobe.outcome", state.String()),
		attribute.Int("busprobe.attempts", attempts),
	)

	switch state {
	case StateSucceeded:
		if sc != nil {
			sc.SetLastMatched(found)
		}
		a.logger.Info("Found matching message",
			zap.Uint64("seq", found.Seq),
			zap.String("source", found.Source),
			zap.Int("attempts", attempts))
		span.SetStatus(codes.Ok, "")
		return found, nil

	case StateTimedOut:
		partials := fs.BestPartialMatches()
		a.logPartialMatches(partials)
		nf := &NotFoundError{Timeout: a.cfg.Timeout, Filters: fs.String(), Partials: partials}
		span.RecordError(nf)
		span.SetStatus(codes.Error, "not found")
		return nil, nf

	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
}

// AwaitNoMatch succeeds when Timeout passes without any buffered message
// satisfying fs, and fails as soon as one does.
func (a *Awaiter) AwaitNoMatch(ctx context.Context, fs *match.FilterSet) error {
	ctx, span := a.tracer.Start(ctx, "await.no_match", trace.WithAttributes(
		attribute.Int("busprobe.filters", fs.Len()),
		attribute.String("busprobe.timeout", a.cfg.Timeout.String()),
	))
	defer span.End()

	a.logger.Info("Verifying no message matches filters",
		zap.String("filters", fs.String()),
		zap.Duration("timeout", a.cfg.Timeout))

	state, attempts, err := a.poll(ctx, func() (bool, error) {
		return false, match.AssertNoFullMatch(a.src.Snapshot(), fs)
	})
	if state == StateTimedOut {
		state = StateSucceeded
	}
	span.SetAttributes(
		attribute.String("busprobe.outcome", state.String()),
		attribute.Int("busprobe.attempts", attempts),
	)

	if state != StateSucceeded {
		if errors.Is(err, types.ErrUnexpectedMatch) {
			a.logger.Error("A matching message was found when none was expected", zap.Error(err))
		} else {
			a.logger.Warn("Await stopped", zap.Error(err))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	a.logger.Info("Confirmed: no matching message found (as expected)", zap.Int("attempts", attempts))
	span.SetStatus(codes.Ok, "")
	return nil
}

// poll runs check until it reports done, returns an error, the deadline
// passes or ctx is cancelled.
func (a *Awaiter) poll(ctx context.Context, check func() (bool, error)) (State, int, error) {
	deadline := time.NewTimer(a.cfg.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	attempts := 0
	run := func() (State, bool, error) {
		attempts++
		done, err := check()
		switch {
		case err != nil:
			return StateFailed, true, err
		case done:
			return StateSucceeded, true, nil
		default:
			return StatePolling, false, nil
		}
	}

	for {
		if state, stop, err := run(); stop {
			return state, attempts, err
		}

		select {
		case <-ctx.Done():
			return StateFailed, attempts, ctx.Err()
		case <-deadline.C:
			if state, stop, err := run(); stop {
				return state, attempts, err
			}
			return StateTimedOut, attempts, nil
		case <-ticker.C:
		}
	}
}

func (a *Awaiter) logPartialMatches(partials []match.MatchResult) {
	if len(partials) == 0 {
		a.logger.Error("No messages matched any filters")
		return
	}
	for _, p := range partials {
		a.logger.Warn(fmt.Sprintf("Partial match (%d/%d filters)", p.MatchedCount(), p.TotalFilterCount()),
			zap.Uint64("seq", p.Document.Seq),
			zap.Any("details", p.Describe()))
	}
}
