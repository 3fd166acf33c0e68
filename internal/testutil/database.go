package testutil

import (
	"path/filepath"
	"testing"

	"ecorpus-go/internal/database"
	"ecorpus-go/internal/vfs"
)

// NewTestDatabase creates a migrated SQLite database in a temporary directory.
// clock and idgen may be nil. The database is closed when the test completes.
func NewTestDatabase(t *testing.T, clock vfs.Clock, idgen vfs.IDGenerator, opts ...database.Option) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "test.db"), clock, idgen, opts...)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	return db
}
