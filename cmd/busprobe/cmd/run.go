package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/busprobe/internal/await"
	"github.com/solatis/busprobe/internal/buffer"
	"github.com/solatis/busprobe/internal/core/config"
	"github.com/solatis/busprobe/internal/core/db"
	"github.com/solatis/busprobe/internal/dsl"
	"github.com/solatis/busprobe/internal/report"
	"github.com/solatis/busprobe/internal/runner"
	"github.com/solatis/busprobe/internal/tracing"
	"github.com/solatis/busprobe/internal/transport/natsbus"
)

var (
	runTags    []string
	runOffline bool
	runNoStore bool
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>...",
	Short: "Run scenario files against the message bus",
	Long: `Run executes every scenario in the given YAML files. Each scenario
publishes payloads and asserts on messages arriving on the subscribed NATS
subjects. With --offline, publishes are looped back into the local buffer
and no NATS connection is made.

Exits non-zero when any scenario fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScenarios,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVar(&runTags, "tags", nil, "only run scenarios carrying one of these tags")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "loop publishes back into the buffer instead of using NATS")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "do not record results in the report database")
}

func runScenarios(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, Version, logger)
	if err != nil {
		return err
	}
	defer tracing.Close(shutdownTracing, logger)

	scenarios, err := runner.LoadFiles(args, runTags)
	if err != nil {
		return err
	}
	if len(scenarios) == 0 {
		logger.Warn("No scenarios selected", zap.Strings("tags", runTags))
		return nil
	}

	buf := buffer.New(cfg.Buffer.MaxSize)
	defer buf.Close()

	var publisher runner.Publisher
	if !runOffline {
		nc, listener, err := connectBus(ctx, cfg, buf, logger)
		if err != nil {
			return err
		}
		defer natsbus.Close(nc)
		defer listener.Stop()

		publisher, err = natsbus.NewPublisher(natsbus.WrapConn(nc), logger)
		if err != nil {
			return err
		}
	}

	reporter, closeReporters, err := buildReporters(cfg, logger)
	if err != nil {
		return err
	}
	defer closeReporters()

	r, err := runner.New(runner.Options{
		Buffer:         buf,
		Resolver:       dsl.NewResolver(dsl.Builtins()),
		Publisher:      publisher,
		PayloadDir:     cfg.Payload.Dir,
		DefaultSubject: cfg.NATS.PublishSubject,
		Await: await.Config{
			Timeout:      cfg.Await.Timeout,
			PollInterval: cfg.Await.PollInterval,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	summary, err := r.Run(ctx, scenarios, reporter)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d passed, %d failed\n", summary.RunID, summary.Passed, summary.Failed)
	if !summary.OK() {
		return fmt.Errorf("%d of %d scenarios failed", summary.Failed, len(summary.Tests))
	}
	return nil
}

// buildReporters assembles the report sinks the configuration enables.
// The log sink is always present.
func buildReporters(cfg *config.Config, logger *zap.Logger) (report.Reporter, func(), error) {
	sinks := report.Multi{report.NewLogReporter(logger)}
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if !runNoStore && cfg.Report.DBURL != "" {
		database, err := db.Open(cfg.Report.DBURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open report database: %w", err)
		}
		closers = append(closers, func() { database.Close() })

		if err := db.MigrateUp(database); err != nil {
			closeAll()
			return nil, nil, err
		}
		queries, err := db.LoadQueries(database)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		store, err := report.NewStoreReporter(queries)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, store)
	}

	if cfg.Report.BlobContainer != "" && cfg.Report.BlobConnectionString != "" {
		client, err := report.NewAzureBlobClient(cfg.Report.BlobConnectionString, cfg.Report.BlobContainer, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		blob, err := report.NewBlobPublisher(client, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, blob)
	}

	return sinks, closeAll, nil
}
