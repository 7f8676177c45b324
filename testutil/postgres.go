package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/onnwee/streamwatch/db"
)

// SetupTestDB opens an in-memory SQLite database with the schema applied.
func SetupTestDB(t *testing.T) (*sql.DB, db.Dialect) {
	t.Helper()
	database, dialect, err := db.Connect("sqlite::memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(context.Background(), database, dialect); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database, dialect
}

// SetupPostgresDB connects to TEST_PG_DSN and runs migrations.
// It skips the test if TEST_PG_DSN is not set.
func SetupPostgresDB(t *testing.T) (*sql.DB, db.Dialect) {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, dialect, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(context.Background(), database, dialect); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	for _, table := range []string{"streamers", "clip_sources", "social_accounts"} {
		if _, err := database.Exec(`DELETE FROM ` + table); err != nil {
			database.Close()
			t.Fatalf("failed to reset %s: %v", table, err)
		}
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database, dialect
}
