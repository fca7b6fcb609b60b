// Package config provides configuration management for busprobe.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// Environment-only secrets. Present in a config file is an error.
const (
	EnvNATSToken            = "BP_NATS_TOKEN"
	EnvBlobConnectionString = "BP_REPORT_BLOB_CONNECTION_STRING"
	EnvIngestSecret         = "BP_INGEST_SECRET"
)

// Config is the full busprobe configuration.
type Config struct {
	Await   AwaitConfig
	Buffer  BufferConfig
	NATS    NATSConfig
	Ingest  IngestConfig
	Report  ReportConfig
	Tracing TracingConfig
	Payload PayloadConfig
}

// AwaitConfig controls message polling.
type AwaitConfig struct {
	Timeout         time.Duration
	PollInterval    time.Duration
	ListenerTimeout time.Duration
}

// BufferConfig bounds the shared message buffer.
type BufferConfig struct {
	MaxSize int // 0 means unbounded
}

// NATSConfig holds the message bus connection and subjects.
type NATSConfig struct {
	URL            string
	Name           string
	Subjects       []string
	PublishSubject string
	ReconnectWait  time.Duration
	MaxReconnects  int
	Timeout        time.Duration
	Token          string // from BP_NATS_TOKEN only
}

// IngestConfig holds configuration for the gRPC ingest service.
type IngestConfig struct {
	Host            string
	Port            int
	MaxDocumentSize int
	RequestTimeout  time.Duration
}

// ReportConfig holds result persistence and publishing settings.
type ReportConfig struct {
	DBURL                string
	BlobContainer        string
	BlobConnectionString string // from BP_REPORT_BLOB_CONNECTION_STRING only
}

// TracingConfig holds OTLP exporter settings. Empty Endpoint disables export.
type TracingConfig struct {
	Endpoint    string
	SampleRatio float64
	Environment string
}

// PayloadConfig locates payload templates.
type PayloadConfig struct {
	Dir string
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Await: AwaitConfig{
			Timeout:         90 * time.Second,
			PollInterval:    time.Second,
			ListenerTimeout: 60 * time.Second,
		},
		Buffer: BufferConfig{MaxSize: 10000},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Name:          "busprobe",
			ReconnectWait: 2 * time.Second,
			MaxReconnects: 10,
			Timeout:       5 * time.Second,
		},
		Ingest: IngestConfig{
			Host:            "0.0.0.0",
			Port:            50061,
			MaxDocumentSize: 1024 * 1024,
			RequestTimeout:  30 * time.Second,
		},
		Report: ReportConfig{
			DBURL: "sqlite://busprobe.db",
		},
		Tracing: TracingConfig{
			SampleRatio: 1.0,
			Environment: "development",
		},
		Payload: PayloadConfig{Dir: "./payload"},
	}
}

// IngestSecrets extracts ingest HMAC secrets from environment variables.
// Supports BP_INGEST_SECRET (single) and BP_INGEST_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are UUIDv7 (32 hex chars without hyphens) matching API key format.
func IngestSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check %s and %s_* for conflicts)", secretID, EnvIngestSecret, EnvIngestSecret)
		}
		secrets[secretID] = decoded
		return nil
	}

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv(EnvIngestSecret); val != "" {
		if err := add(EnvIngestSecret, val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets keep old and new keys valid during rotation
	for i := 1; ; i++ {
		key := fmt.Sprintf("%s_%d", EnvIngestSecret, i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecret decodes a base64-encoded HMAC secret.
func ParseHMACSecret(envValue string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envValue))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = ParseHMACSecret(parts[1])
	if err != nil {
		return "", nil, err
	}
	return secretID, secret, nil
}
