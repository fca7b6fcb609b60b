package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "busprobe.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestSecrets(t *testing.T) {
	t.Run("no secrets", func(t *testing.T) {
		secrets, err := IngestSecrets()
		if err != nil {
			t.Fatalf("IngestSecrets failed: %v", err)
		}
		if len(secrets) != 0 {
			t.Errorf("expected no secrets, got %d", len(secrets))
		}
	})

	t.Run("single secret", func(t *testing.T) {
		t.Setenv("BP_INGEST_SECRET", testSecret)

		secrets, err := IngestSecrets()
		if err != nil {
			t.Fatalf("IngestSecrets failed: %v", err)
		}
		if _, ok := secrets["0123456789abcdef0123456789abcdef"]; !ok {
			t.Errorf("secret_id not found in map")
		}
	})

	t.Run("multiple numbered secrets", func(t *testing.T) {
		t.Setenv("BP_INGEST_SECRET_1", testSecret)
		t.Setenv("BP_INGEST_SECRET_2", "fedcba9876543210fedcba9876543210:YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w")

		secrets, err := IngestSecrets()
		if err != nil {
			t.Fatalf("IngestSecrets failed: %v", err)
		}
		if len(secrets) != 2 {
			t.Errorf("expected 2 secrets, got %d", len(secrets))
		}
	})

	t.Run("numbering stops at first gap", func(t *testing.T) {
		t.Setenv("BP_INGEST_SECRET_1", testSecret)
		t.Setenv("BP_INGEST_SECRET_3", "fedcba9876543210fedcba9876543210:YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w")

		secrets, err := IngestSecrets()
		if err != nil {
			t.Fatalf("IngestSecrets failed: %v", err)
		}
		if len(secrets) != 1 {
			t.Errorf("expected 1 secret, got %d", len(secrets))
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		t.Setenv("BP_INGEST_SECRET", "invalid_format")
		if _, err := IngestSecrets(); err == nil {
			t.Error("expected error for invalid format")
		}
	})

	t.Run("duplicate secret_id between single and numbered", func(t *testing.T) {
		t.Setenv("BP_INGEST_SECRET", testSecret)
		t.Setenv("BP_INGEST_SECRET_1", testSecret)
		_, err := IngestSecrets()
		if err == nil || !strings.Contains(err.Error(), "duplicate secret_id") {
			t.Errorf("expected duplicate error, got %v", err)
		}
	})
}

func TestParseHMACSecretWithID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "valid format", value: testSecret},
		{name: "missing colon", value: "0123456789abcdef0123456789abcdef", wantErr: true},
		{name: "short secret_id", value: "tooshort:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w", wantErr: true},
		{name: "non-hex secret_id", value: "0123456789abcdefGHIJKLMNOPQRSTUV:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w", wantErr: true},
		{name: "invalid base64", value: "0123456789abcdef0123456789abcdef:not-valid-base64!!!", wantErr: true},
		{name: "secret too short", value: "0123456789abcdef0123456789abcdef:c2hvcnQ=", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, secret, err := ParseHMACSecretWithID(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHMACSecretWithID failed: %v", err)
			}
			if id != "0123456789abcdef0123456789abcdef" || len(secret) < 32 {
				t.Errorf("unexpected result: %s, %d bytes", id, len(secret))
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		want := Default()
		want.NATS.Subjects = nil
		if cfg.Await != want.Await {
			t.Errorf("await = %+v, want %+v", cfg.Await, want.Await)
		}
		if cfg.Ingest != want.Ingest {
			t.Errorf("ingest = %+v, want %+v", cfg.Ingest, want.Ingest)
		}
		if cfg.Payload.Dir != "./payload" {
			t.Errorf("payload dir = %s, want ./payload", cfg.Payload.Dir)
		}
		if cfg.Report.DBURL != "sqlite://busprobe.db" {
			t.Errorf("db url = %s", cfg.Report.DBURL)
		}
	})

	t.Run("config file", func(t *testing.T) {
		path := writeConfig(t, `await:
  timeout: 30s
  poll_interval: 250ms
nats:
  url: nats://bus:4222
  subjects:
    - orders.>
    - payments
ingest:
  port: 6000
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Await.Timeout != 30*time.Second || cfg.Await.PollInterval != 250*time.Millisecond {
			t.Errorf("await = %+v", cfg.Await)
		}
		if !reflect.DeepEqual(cfg.NATS.Subjects, []string{"orders.>", "payments"}) {
			t.Errorf("subjects = %v", cfg.NATS.Subjects)
		}
		if cfg.Ingest.Port != 6000 {
			t.Errorf("port = %d, want 6000", cfg.Ingest.Port)
		}
	})

	t.Run("environment overrides config file", func(t *testing.T) {
		t.Setenv("BP_INGEST_PORT", "8080")
		t.Setenv("BP_NATS_SUBJECTS", "a, b")
		path := writeConfig(t, "ingest:\n  port: 9090\n")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Ingest.Port != 8080 {
			t.Errorf("environment should override config file, got port %d", cfg.Ingest.Port)
		}
		if !reflect.DeepEqual(cfg.NATS.Subjects, []string{"a", "b"}) {
			t.Errorf("subjects = %v", cfg.NATS.Subjects)
		}
	})

	t.Run("secrets come from environment", func(t *testing.T) {
		t.Setenv("BP_NATS_TOKEN", "tok")
		t.Setenv("BP_REPORT_BLOB_CONNECTION_STRING", "AccountName=x")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.NATS.Token != "tok" || cfg.Report.BlobConnectionString != "AccountName=x" {
			t.Errorf("secrets not loaded: %+v %+v", cfg.NATS, cfg.Report)
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		tests := map[string]string{
			"BP_INGEST_PORT":          "70000",
			"BP_AWAIT_TIMEOUT":        "0s",
			"BP_AWAIT_POLL_INTERVAL":  "2m",
			"BP_BUFFER_MAX_SIZE":      "-1",
			"BP_TRACING_SAMPLE_RATIO": "1.5",
			"BP_NATS_MAX_RECONNECTS":  "-2",
		}
		for key, val := range tests {
			t.Run(key, func(t *testing.T) {
				t.Setenv(key, val)
				if _, err := LoadConfig(""); err == nil {
					t.Errorf("expected error for %s=%s", key, val)
				}
			})
		}
	})

	t.Run("missing config file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestLoadConfig_RejectsSecretsInFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "nats token",
			content: "nats:\n  token: \"should_be_rejected\"\n",
			wantMsg: "NATS token not allowed in config files (use BP_NATS_TOKEN environment variable)",
		},
		{
			name:    "blob connection string",
			content: "report:\n  blob_connection_string: \"AccountKey=x\"\n",
			wantMsg: "blob connection string not allowed in config files (use BP_REPORT_BLOB_CONNECTION_STRING environment variable)",
		},
		{
			name:    "ingest secret",
			content: "ingest:\n  secret: \"x\"\n",
			wantMsg: "ingest secrets not allowed in config files (use BP_INGEST_SECRET environment variable)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error for secret in config file")
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}
