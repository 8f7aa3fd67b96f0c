package database

import (
	"strings"
	"testing"
)

func TestBuildSQLiteDSNDefaultsToSharedMemory(t *testing.T) {
	for _, cfg := range []Config{{}, {Path: ":memory:"}, {Path: "  "}} {
		dsn, err := buildSQLiteDSN(cfg)
		if err != nil {
			t.Fatalf("build dsn: %v", err)
		}
		if dsn != "file::memory:?cache=shared&_foreign_keys=1" {
			t.Fatalf("unexpected memory dsn: %q", dsn)
		}
	}
}

func TestBuildSQLiteDSNForFilePath(t *testing.T) {
	path := t.TempDir() + "/data/readings.db"

	dsn, err := buildSQLiteDSN(Config{Path: path})
	if err != nil {
		t.Fatalf("build dsn: %v", err)
	}

	if !containsAll(
		dsn,
		"file:",
		"readings.db",
		"_foreign_keys=1",
		"_journal_mode=WAL",
		"_busy_timeout=5000",
		"_auto_vacuum=incremental",
	) {
		t.Fatalf("dsn missing expected components: %q", dsn)
	}
}

func TestBuildSQLiteDSNHonoursOverride(t *testing.T) {
	dsn, err := buildSQLiteDSN(Config{DSN: "file:custom.db?mode=ro", Path: "ignored.db"})
	if err != nil {
		t.Fatalf("build dsn: %v", err)
	}
	if dsn != "file:custom.db?mode=ro" {
		t.Fatalf("expected override to win, got %q", dsn)
	}
}

func containsAll(value string, parts ...string) bool {
	for _, part := range parts {
		if !strings.Contains(value, part) {
			return false
		}
	}
	return true
}
