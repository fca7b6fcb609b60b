package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/solatis/busprobe/internal/types"
)

// SourceName tags documents produced by the listener.
const SourceName = "nats"

// Sink receives decoded envelopes (the message buffer).
type Sink interface {
	Append(doc *types.Document) (*types.Document, error)
}

// Listener subscribes to subjects and appends every message to a Sink as
// an envelope {"topic", "Timestamp", "Headers", "Message"}.
type Listener struct {
	conn     Conn
	subjects []string
	sink     Sink
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	subs    []Subscription
	ready   chan struct{}
	stopped bool

	received atomic.Uint64
	dropped  atomic.Uint64
}

// NewListener creates a listener. Call Start to subscribe.
func NewListener(conn Conn, subjects []string, sink Sink, logger *zap.Logger) (*Listener, error) {
	if conn == nil {
		return nil, fmt.Errorf("NATS connection cannot be nil")
	}
	if len(subjects) == 0 {
		return nil, fmt.Errorf("at least one subject is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		conn:     conn,
		subjects: subjects,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
		ready:    make(chan struct{}),
	}, nil
}

// ErrListenerStopped is returned by Start once Stop has been called.
var ErrListenerStopped = errors.New("listener stopped")

// Start subscribes to every subject and flushes so the server has
// registered the interest before Ready reports true. A stopped listener
// cannot be restarted.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return ErrListenerStopped
	}
	if len(l.subs) > 0 {
		return fmt.Errorf("listener already started")
	}

	for _, subject := range l.subjects {
		sub, err := l.conn.Subscribe(subject, l.handle)
		if err != nil {
			l.unsubscribeLocked()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		l.subs = append(l.subs, sub)
	}

	if err := l.conn.FlushWithContext(ctx); err != nil {
		l.unsubscribeLocked()
		return fmt.Errorf("flush subscriptions: %w", err)
	}

	close(l.ready)
	l.logger.Info("NATS listener subscribed", zap.Strings("subjects", l.subjects))
	return nil
}

// Ready blocks until Start has completed, timeout passes or ctx is done.
func (l *Listener) Ready(ctx context.Context, timeout time.Duration) error {
	l.logger.Info("Waiting for NATS listener to be ready", zap.Duration("timeout", timeout))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.ready:
		l.logger.Info("NATS listener is ready")
		return nil
	case <-timer.C:
		return fmt.Errorf("NATS listener not ready after %s", timeout)
	case <-ctx.Done():
		return fmt.Errorf("listener wait cancelled: %w", ctx.Err())
	}
}

// Stop drains every subscription.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, sub := range l.subs {
		if sub.IsValid() {
			if err := sub.Drain(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	l.subs = nil
	l.stopped = true
	return errors.Join(errs...)
}

// Received returns how many messages reached the sink.
func (l *Listener) Received() uint64 {
	return l.received.Load()
}

// Dropped returns how many messages the sink refused.
func (l *Listener) Dropped() uint64 {
	return l.dropped.Load()
}

func (l *Listener) unsubscribeLocked() {
	for _, sub := range l.subs {
		_ = sub.Unsubscribe()
	}
	l.subs = nil
}

func (l *Listener) handle(msg *nats.Msg) {
	if len(msg.Data) > types.MaxDocumentSize {
		l.dropped.Add(1)
		l.logger.Warn("Dropping oversized message",
			zap.String("subject", msg.Subject),
			zap.Int("size", len(msg.Data)))
		return
	}

	doc := &types.Document{Source: SourceName, Body: Envelope(msg, l.now())}
	if _, err := l.sink.Append(doc); err != nil {
		l.dropped.Add(1)
		l.logger.Error("Failed to store message", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	l.received.Add(1)
	l.logger.Debug("Stored message", zap.String("subject", msg.Subject), zap.Uint64("seq", doc.Seq))
}

// Envelope wraps msg in the envelope shape filter files address.
// Timestamp is epoch milliseconds. Message is the decoded JSON payload,
// or the raw text when the payload is not JSON.
func Envelope(msg *nats.Msg, receivedAt time.Time) map[string]any {
	headers := make(map[string]any, len(msg.Header))
	for key := range msg.Header {
		headers[key] = msg.Header.Get(key)
	}

	var message any = string(msg.Data)
	if len(msg.Data) > 0 {
		if decoded, err := types.DecodeJSON(msg.Data); err == nil {
			message = decoded
		}
	}

	return map[string]any{
		types.EnvelopeTopic:     msg.Subject,
		types.EnvelopeTimestamp: json.Number(strconv.FormatInt(receivedAt.UnixMilli(), 10)),
		types.EnvelopeHeaders:   headers,
		types.EnvelopeMessage:   message,
	}
}
