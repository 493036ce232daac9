package migrate

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"thermalguard/internal/db"
)

func TestRun_Idempotent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	conn, err := db.Open(filepath.Join(t.TempDir(), "m.db"), logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close(conn) }()

	for i := 0; i < 2; i++ {
		if err := Run(conn, logger); err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
	}

	var n int
	if err := conn.QueryRow(`SELECT count(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Errorf("schema_migrations rows = %d, want 1", n)
	}
	if _, err := conn.Exec(`SELECT id, kind, detail, outcome, error, ts FROM actions`); err != nil {
		t.Errorf("actions table not usable: %v", err)
	}
}

func TestMigrationFileRe(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"0001_actions.sql", true},
		{"1_actions.sql", false},
		{"0002_x.txt", false},
	}
	for _, tt := range tests {
		if got := migrationFileRe.MatchString(tt.in); got != tt.ok {
			t.Errorf("match(%q) = %v, want %v", tt.in, got, tt.ok)
		}
	}
}
