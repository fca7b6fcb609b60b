package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration using viper.
// CLI flags > environment > config file > defaults precedence; flags are
// applied by the caller on the returned Config.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	d := Default()

	v.SetDefault("await.timeout", d.Await.Timeout.String())
	v.SetDefault("await.poll_interval", d.Await.PollInterval.String())
	v.SetDefault("await.listener_timeout", d.Await.ListenerTimeout.String())
	v.SetDefault("buffer.max_size", d.Buffer.MaxSize)
	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.name", d.NATS.Name)
	v.SetDefault("nats.subjects", []string{})
	v.SetDefault("nats.publish_subject", "")
	v.SetDefault("nats.reconnect_wait", d.NATS.ReconnectWait.String())
	v.SetDefault("nats.max_reconnects", d.NATS.MaxReconnects)
	v.SetDefault("nats.timeout", d.NATS.Timeout.String())
	v.SetDefault("ingest.host", d.Ingest.Host)
	v.SetDefault("ingest.port", d.Ingest.Port)
	v.SetDefault("ingest.max_document_size", d.Ingest.MaxDocumentSize)
	v.SetDefault("ingest.request_timeout", d.Ingest.RequestTimeout.String())
	v.SetDefault("report.db_url", d.Report.DBURL)
	v.SetDefault("report.blob_container", "")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
	v.SetDefault("tracing.environment", d.Tracing.Environment)
	v.SetDefault("payload.dir", d.Payload.Dir)

	// Bind environment variables with BP_ prefix
	v.SetEnvPrefix("BP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Await: AwaitConfig{
			Timeout:         v.GetDuration("await.timeout"),
			PollInterval:    v.GetDuration("await.poll_interval"),
			ListenerTimeout: v.GetDuration("await.listener_timeout"),
		},
		Buffer: BufferConfig{MaxSize: v.GetInt("buffer.max_size")},
		NATS: NATSConfig{
			URL:            v.GetString("nats.url"),
			Name:           v.GetString("nats.name"),
			Subjects:       subjects(v),
			PublishSubject: v.GetString("nats.publish_subject"),
			ReconnectWait:  v.GetDuration("nats.reconnect_wait"),
			MaxReconnects:  v.GetInt("nats.max_reconnects"),
			Timeout:        v.GetDuration("nats.timeout"),
			Token:          os.Getenv(EnvNATSToken),
		},
		Ingest: IngestConfig{
			Host:            v.GetString("ingest.host"),
			Port:            v.GetInt("ingest.port"),
			MaxDocumentSize: v.GetInt("ingest.max_document_size"),
			RequestTimeout:  v.GetDuration("ingest.request_timeout"),
		},
		Report: ReportConfig{
			DBURL:                v.GetString("report.db_url"),
			BlobContainer:        v.GetString("report.blob_container"),
			BlobConnectionString: os.Getenv(EnvBlobConnectionString),
		},
		Tracing: TracingConfig{
			Endpoint:    v.GetString("tracing.endpoint"),
			SampleRatio: v.GetFloat64("tracing.sample_ratio"),
			Environment: v.GetString("tracing.environment"),
		},
		Payload: PayloadConfig{Dir: v.GetString("payload.dir")},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// subjects accepts a YAML list or a comma-separated env value.
func subjects(v *viper.Viper) []string {
	var out []string
	for _, s := range v.GetStringSlice("nats.subjects") {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateConfig checks ranges and positive durations.
func validateConfig(cfg *Config) error {
	if cfg.Await.Timeout <= 0 {
		return fmt.Errorf("await.timeout must be positive, got %v", cfg.Await.Timeout)
	}
	if cfg.Await.PollInterval <= 0 {
		return fmt.Errorf("await.poll_interval must be positive, got %v", cfg.Await.PollInterval)
	}
	if cfg.Await.PollInterval > cfg.Await.Timeout {
		return fmt.Errorf("await.poll_interval (%v) must not exceed await.timeout (%v)", cfg.Await.PollInterval, cfg.Await.Timeout)
	}
	if cfg.Await.ListenerTimeout <= 0 {
		return fmt.Errorf("await.listener_timeout must be positive, got %v", cfg.Await.ListenerTimeout)
	}
	if cfg.Buffer.MaxSize < 0 {
		return fmt.Errorf("buffer.max_size must not be negative, got %d", cfg.Buffer.MaxSize)
	}
	if cfg.Ingest.Port <= 0 || cfg.Ingest.Port > 65535 {
		return fmt.Errorf("ingest.port must be between 1 and 65535, got %d", cfg.Ingest.Port)
	}
	if cfg.Ingest.MaxDocumentSize <= 0 {
		return fmt.Errorf("ingest.max_document_size must be positive, got %d", cfg.Ingest.MaxDocumentSize)
	}
	if cfg.Ingest.RequestTimeout <= 0 {
		return fmt.Errorf("ingest.request_timeout must be positive, got %v", cfg.Ingest.RequestTimeout)
	}
	if cfg.NATS.MaxReconnects < -1 {
		return fmt.Errorf("nats.max_reconnects must be -1 or greater, got %d", cfg.NATS.MaxReconnects)
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %v", cfg.Tracing.SampleRatio)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("nats.token") {
		return fmt.Errorf("NATS token not allowed in config files (use %s environment variable)", EnvNATSToken)
	}
	if v.InConfig("report.blob_connection_string") {
		return fmt.Errorf("blob connection string not allowed in config files (use %s environment variable)", EnvBlobConnectionString)
	}
	if v.InConfig("ingest.secret") || v.InConfig("ingest_secret") {
		return fmt.Errorf("ingest secrets not allowed in config files (use %s environment variable)", EnvIngestSecret)
	}
	return nil
}
