package natsbus

import (
	"context"

	"github.com/nats-io/nats.go"
)

// Conn is the subset of *nats.Conn the listener and publisher depend on.
// Tests provide an in-memory implementation instead of a running server.
type Conn interface {
	Subscribe(subj string, cb nats.MsgHandler) (Subscription, error)
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// Subscription abstracts the operations used on a *nats.Subscription.
type Subscription interface {
	Unsubscribe() error
	Drain() error
	IsValid() bool
}

// WrapConn adapts a *nats.Conn to the Conn interface.
func WrapConn(nc *nats.Conn) Conn {
	return &natsConnAdapter{nc: nc}
}

type natsConnAdapter struct {
	nc *nats.Conn
}

func (a *natsConnAdapter) Subscribe(subj string, cb nats.MsgHandler) (Subscription, error) {
	sub, err := a.nc.Subscribe(subj, cb)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (a *natsConnAdapter) PublishMsg(msg *nats.Msg) error {
	return a.nc.PublishMsg(msg)
}

func (a *natsConnAdapter) FlushWithContext(ctx context.Context) error {
	return a.nc.FlushWithContext(ctx)
}
