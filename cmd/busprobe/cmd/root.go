package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/busprobe/internal/core/config"
	"github.com/solatis/busprobe/internal/logging"
)

// Version is reported to tracing and by the serve banner.
const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "busprobe",
	Short: "Message bus scenario tester",
	Long: `busprobe publishes templated payloads to a message bus and asserts that
messages matching declared field filters arrive (or do not arrive) in time.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "report database URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration, applies persistent flags and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.Report.DBURL = dbURL
	}

	logger, err := logging.New(logLevel, logFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
