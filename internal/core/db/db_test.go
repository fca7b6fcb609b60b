package db

import (
	"path/filepath"
	"testing"
)

func TestDataSourceFor(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantDriver string
		wantDSN    string
		wantErr    bool
	}{
		{name: "relative sqlite", url: "sqlite://busprobe.db", wantDriver: "sqlite3", wantDSN: "busprobe.db?_foreign_keys=on"},
		{name: "absolute sqlite", url: "sqlite:///var/lib/busprobe.db", wantDriver: "sqlite3", wantDSN: "/var/lib/busprobe.db?_foreign_keys=on"},
		{name: "sqlite with params", url: "sqlite://x.db?_busy_timeout=5000", wantDriver: "sqlite3", wantDSN: "x.db?_busy_timeout=5000&_foreign_keys=on"},
		{name: "memory", url: MemoryURL, wantDriver: "sqlite3", wantDSN: sqliteMemory},
		{name: "postgres", url: "postgres://u:p@localhost:5432/bp?sslmode=disable", wantDriver: "postgres", wantDSN: "postgres://u:p@localhost:5432/bp?sslmode=disable"},
		{name: "unsupported scheme", url: "mysql://localhost/bp", wantErr: true},
		{name: "empty sqlite path", url: "sqlite://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn, err := dataSourceFor(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %s", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("dataSourceFor(%q) failed: %v", tt.url, err)
			}
			if driver != tt.wantDriver || dsn != tt.wantDSN {
				t.Errorf("got (%s, %s), want (%s, %s)", driver, dsn, tt.wantDriver, tt.wantDSN)
			}
		})
	}
}

func TestMigrateUp_SQLite(t *testing.T) {
	db, err := Open("sqlite://" + filepath.Join(t.TempDir(), "report.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	// second run is a no-op with matching checksums
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp (again) failed: %v", err)
	}

	statuses, err := MigrateStatus(db)
	if err != nil {
		t.Fatalf("MigrateStatus failed: %v", err)
	}
	if len(statuses) == 0 {
		t.Fatal("expected at least one migration")
	}
	for _, s := range statuses {
		if !s.Applied || s.AppliedAt == nil {
			t.Errorf("migration %s not applied: %+v", s.ID, s)
		}
	}

	for _, table := range []string{"runs", "test_results", "test_events"} {
		var n int
		if err := db.Get(&n, "SELECT COUNT(*) FROM "+table); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrateUp_ChecksumMismatch(t *testing.T) {
	db, err := Open(MemoryURL)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if _, err := db.Exec("UPDATE migrations SET checksum = 'tampered'"); err != nil {
		t.Fatal(err)
	}
	if err := MigrateUp(db); err == nil {
		t.Error("expected checksum validation error")
	}
}

func TestSplitStatements(t *testing.T) {
	sql := "-- header\n-- more\nCREATE TABLE a (x INT);\n\n-- note\nCREATE INDEX i ON a(x);\n"
	got := splitStatements(sql)
	if len(got) != 2 {
		t.Fatalf("got %d statements, want 2: %q", len(got), got)
	}
	if got[0] != "CREATE TABLE a (x INT)" || got[1] != "CREATE INDEX i ON a(x)" {
		t.Errorf("unexpected statements: %q", got)
	}
}

func TestLoadQueries(t *testing.T) {
	db, err := Open(MemoryURL)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	q, err := LoadQueries(db)
	if err != nil {
		t.Fatalf("LoadQueries failed: %v", err)
	}
	for _, name := range []string{"insert-run", "finish-run", "insert-test-result", "finish-test-result", "insert-test-event", "list-test-results"} {
		if _, err := q.query(name); err != nil {
			t.Errorf("query %s: %v", name, err)
		}
	}
	if _, err := q.query("nope"); err == nil {
		t.Error("expected error for unknown query")
	}
}
