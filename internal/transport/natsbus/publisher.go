package natsbus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Publisher sends scenario payloads to NATS subjects.
type Publisher struct {
	conn   Conn
	logger *zap.Logger
}

// NewPublisher creates a publisher over conn.
func NewPublisher(conn Conn, logger *zap.Logger) (*Publisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("NATS connection cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, logger: logger}, nil
}

// Publish sends payload with headers to subject and waits for the server
// to acknowledge the flush.
func (p *Publisher) Publish(ctx context.Context, subject string, payload []byte, headers map[string]string) error {
	if subject == "" {
		return fmt.Errorf("subject cannot be empty")
	}

	msg := nats.NewMsg(subject)
	msg.Data = payload
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	// Propagate the caller's span so consumers can join the scenario trace.
	otel.GetTextMapPropagator().Inject(ctx, HeaderCarrier(msg.Header))

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush publish to %s: %w", subject, err)
	}

	p.logger.Info("Published message", zap.String("subject", subject), zap.Int("size", len(payload)))
	return nil
}

// HeaderCarrier adapts nats.Header to a propagation.TextMapCarrier.
// NATS header keys are case-sensitive, so keys are stored as given.
type HeaderCarrier nats.Header

func (c HeaderCarrier) Get(key string) string {
	return nats.Header(c).Get(key)
}

func (c HeaderCarrier) Set(key, value string) {
	nats.Header(c).Set(key, value)
}

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
