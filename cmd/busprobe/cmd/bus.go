package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/solatis/busprobe/internal/core/config"
	"github.com/solatis/busprobe/internal/transport/natsbus"
)

// connectBus dials NATS and subscribes the buffer to the configured subjects.
// The returned listener is already ready; callers Stop it and Close the conn.
func connectBus(ctx context.Context, cfg *config.Config, sink natsbus.Sink, logger *zap.Logger) (*nats.Conn, *natsbus.Listener, error) {
	connCfg := natsbus.DefaultConnectionConfig(cfg.NATS.URL)
	connCfg.Name = cfg.NATS.Name
	connCfg.MaxReconnects = cfg.NATS.MaxReconnects
	connCfg.ReconnectWait = cfg.NATS.ReconnectWait
	connCfg.Timeout = cfg.NATS.Timeout
	connCfg.Token = cfg.NATS.Token

	nc, err := natsbus.Connect(ctx, connCfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	listener, err := natsbus.NewListener(natsbus.WrapConn(nc), cfg.NATS.Subjects, sink, logger)
	if err != nil {
		natsbus.Close(nc)
		return nil, nil, err
	}
	if err := startListener(ctx, listener, cfg.Await.ListenerTimeout); err != nil {
		listener.Stop()
		natsbus.Close(nc)
		return nil, nil, err
	}
	return nc, listener, nil
}

func startListener(ctx context.Context, listener *natsbus.Listener, timeout time.Duration) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- listener.Start(ctx)
	}()

	readyChan := make(chan error, 1)
	go func() {
		readyChan <- listener.Ready(ctx, timeout)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("failed to start listener: %w", err)
		}
		return <-readyChan
	case err := <-readyChan:
		return err
	}
}
