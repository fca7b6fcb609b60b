package natsbus

import (
	"context"
	"errors"
	"sync"

	"github.com/nats-io/nats.go"
)

// mockConn is an in-memory Conn delivering published messages to
// subscribers synchronously.
type mockConn struct {
	mu        sync.Mutex
	subs      map[string][]*mockSub
	published []*nats.Msg
	failSub   string
	flushErr  error
}

type mockSub struct {
	conn    *mockConn
	subject string
	cb      nats.MsgHandler
	active  bool
	drained bool
}

func newMockConn() *mockConn {
	return &mockConn{subs: make(map[string][]*mockSub)}
}

func (m *mockConn) Subscribe(subj string, cb nats.MsgHandler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subj == m.failSub {
		return nil, errors.New("subscribe refused")
	}
	s := &mockSub{conn: m, subject: subj, cb: cb, active: true}
	m.subs[subj] = append(m.subs[subj], s)
	return s, nil
}

func (m *mockConn) PublishMsg(msg *nats.Msg) error {
	m.mu.Lock()
	m.published = append(m.published, msg)
	var callbacks []nats.MsgHandler
	for _, s := range m.subs[msg.Subject] {
		if s.active {
			callbacks = append(callbacks, s.cb)
		}
	}
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(msg)
	}
	return nil
}

func (m *mockConn) FlushWithContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.flushErr
}

func (m *mockConn) activeSubs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, subs := range m.subs {
		for _, s := range subs {
			if s.active {
				n++
			}
		}
	}
	return n
}

func (s *mockSub) Unsubscribe() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	s.active = false
	return nil
}

func (s *mockSub) Drain() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	s.active = false
	s.drained = true
	return nil
}

func (s *mockSub) IsValid() bool {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.active
}
