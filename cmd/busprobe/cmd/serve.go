package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/busprobe/internal/buffer"
	"github.com/solatis/busprobe/internal/core/api"
	"github.com/solatis/busprobe/internal/core/auth"
	"github.com/solatis/busprobe/internal/core/config"
	"github.com/solatis/busprobe/internal/core/server"
	"github.com/solatis/busprobe/internal/tracing"
	"github.com/solatis/busprobe/internal/transport/natsbus"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingest gRPC service and NATS listener",
	Long: `Serve buffers documents pushed through the ingest gRPC service and,
when nats.subjects is configured, messages received on those subjects.
Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50061, "gRPC server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		cfg.Ingest.Host = host
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Ingest.Port = port
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, Version, logger)
	if err != nil {
		return err
	}
	defer tracing.Close(shutdownTracing, logger)

	secrets, err := config.IngestSecrets()
	if err != nil {
		return fmt.Errorf("failed to load ingest secrets: %w", err)
	}
	var authenticator *auth.Authenticator
	if len(secrets) > 0 {
		authenticator = auth.NewAuthenticator(secrets, logger)
	} else {
		logger.Warn("No ingest secrets configured, ingest API is unauthenticated",
			zap.String("env", config.EnvIngestSecret))
	}

	buf := buffer.New(cfg.Buffer.MaxSize)
	defer buf.Close()

	if len(cfg.NATS.Subjects) > 0 {
		nc, listener, err := connectBus(ctx, cfg, buf, logger)
		if err != nil {
			return err
		}
		defer natsbus.Close(nc)
		defer listener.Stop()
	}

	service, err := api.NewIngestService(buf, &cfg.Ingest, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(&cfg.Ingest, service, authenticator, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("Starting busprobe ingest service",
		zap.String("version", Version),
		zap.String("host", cfg.Ingest.Host),
		zap.Int("port", cfg.Ingest.Port),
		zap.Strings("subjects", cfg.NATS.Subjects))

	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		logger.Info("Shutting down gracefully",
			zap.Int("buffered", buf.Len()),
			zap.Uint64("evicted", buf.Evicted()))
		return grpcServer.Shutdown(ctx)
	}
}
