package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"

	"ecorpus-go/internal/database"
	"ecorpus-go/internal/errs"
	"ecorpus-go/internal/model"
	"ecorpus-go/internal/testutil"
	"ecorpus-go/internal/vfs"
)

var errBoom = errors.New("boom")

func sceneExists(t *testing.T, db vfs.Database, name string) bool {
	t.Helper()
	_, err := db.GetScene(context.Background(), model.ByName(name), 0)
	if err == nil {
		return true
	}
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("GetScene(%q) error = %v", name, err)
	}
	return false
}

func TestNewSQLiteDatabase(t *testing.T) {
	t.Run("refuses in-memory databases", func(t *testing.T) {
		if _, err := database.NewSQLiteDatabase(":memory:", nil, nil); err == nil {
			t.Fatal("NewSQLiteDatabase(:memory:) expected error")
		}
	})

	t.Run("reports pending migrations", func(t *testing.T) {
		db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "fresh.db"), nil, nil)
		if err != nil {
			t.Fatalf("NewSQLiteDatabase() error = %v", err)
		}
		defer db.Close()

		if err := db.CheckMigrations(); err == nil {
			t.Fatal("CheckMigrations() expected error before MigrateUp")
		}
		if err := db.MigrateUp(); err != nil {
			t.Fatalf("MigrateUp() error = %v", err)
		}
		if err := db.CheckMigrations(); err != nil {
			t.Fatalf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("reopens persisted data", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "persist.db")
		db, err := database.NewSQLiteDatabase(path, nil, nil)
		if err != nil {
			t.Fatalf("NewSQLiteDatabase() error = %v", err)
		}
		if err := db.MigrateUp(); err != nil {
			t.Fatalf("MigrateUp() error = %v", err)
		}
		if _, err := db.CreateScene(context.Background(), "kept", 0); err != nil {
			t.Fatalf("CreateScene() error = %v", err)
		}
		if err := db.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		reopened, err := database.NewSQLiteDatabase(path, nil, nil)
		if err != nil {
			t.Fatalf("NewSQLiteDatabase() error = %v", err)
		}
		defer reopened.Close()
		if !sceneExists(t, reopened, "kept") {
			t.Error("scene not found after reopening")
		}
	})
}

func TestSQLiteDatabase_Transaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db := testutil.NewTestDatabase(t, nil, nil)

		err := db.Transaction(ctx, func(tx vfs.Database) error {
			_, err := tx.CreateScene(ctx, "committed", 0)
			return err
		})
		if err != nil {
			t.Fatalf("Transaction() error = %v", err)
		}
		if !sceneExists(t, db, "committed") {
			t.Error("scene not committed")
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db := testutil.NewTestDatabase(t, nil, nil)

		err := db.Transaction(ctx, func(tx vfs.Database) error {
			if _, err := tx.CreateScene(ctx, "discarded", 0); err != nil {
				return err
			}
			return errBoom
		})
		if !errors.Is(err, errBoom) {
			t.Fatalf("Transaction() error = %v, want %v", err, errBoom)
		}
		if sceneExists(t, db, "discarded") {
			t.Error("scene should have been rolled back")
		}
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		db := testutil.NewTestDatabase(t, nil, nil)

		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Fatal("expected panic to propagate")
				}
			}()
			db.Transaction(ctx, func(tx vfs.Database) error {
				if _, err := tx.CreateScene(ctx, "panicked", 0); err != nil {
					return err
				}
				panic("boom")
			})
		}()

		if sceneExists(t, db, "panicked") {
			t.Error("scene should have been rolled back")
		}
	})

	t.Run("nested transactions are flattened", func(t *testing.T) {
		db := testutil.NewTestDatabase(t, nil, nil)

		err := db.Transaction(ctx, func(tx vfs.Database) error {
			if _, err := tx.CreateScene(ctx, "outer", 0); err != nil {
				return err
			}
			inner := tx.Transaction(ctx, func(tx vfs.Database) error {
				// The outer write is visible: both run in the same transaction.
				if _, err := tx.GetScene(ctx, model.ByName("outer"), 0); err != nil {
					return err
				}
				_, err := tx.CreateScene(ctx, "inner", 0)
				return err
			})
			if inner != nil {
				return inner
			}
			return errBoom
		})
		if !errors.Is(err, errBoom) {
			t.Fatalf("Transaction() error = %v, want %v", err, errBoom)
		}
		if sceneExists(t, db, "outer") || sceneExists(t, db, "inner") {
			t.Error("flattened transaction should have rolled back both scenes")
		}
	})

	t.Run("scoped handle cannot be closed", func(t *testing.T) {
		db := testutil.NewTestDatabase(t, nil, nil)

		err := db.Transaction(ctx, func(tx vfs.Database) error {
			return tx.Close()
		})
		if err == nil {
			t.Fatal("Close() on a transaction handle expected error")
		}
	})
}

func TestSQLiteDatabase_Isolate(t *testing.T) {
	ctx := context.Background()

	t.Run("inner failure only rolls back the inner scope", func(t *testing.T) {
		db := testutil.NewTestDatabase(t, nil, nil)

		err := db.Isolate(ctx, func(outer vfs.Database) error {
			inner := outer.Isolate(ctx, func(tx vfs.Database) error {
				if _, err := tx.CreateScene(ctx, "inner", 0); err != nil {
					return err
				}
				return errBoom
			})
			if !errors.Is(inner, errBoom) {
				t.Errorf("inner Isolate() error = %v, want %v", inner, errBoom)
			}
			_, err := outer.CreateScene(ctx, "outer", 0)
			return err
		})
		if err != nil {
			t.Fatalf("Isolate() error = %v", err)
		}
		if sceneExists(t, db, "inner") {
			t.Error("inner scene should have been rolled back")
		}
		if !sceneExists(t, db, "outer") {
			t.Error("outer scene should have been committed")
		}
	})

	t.Run("inner commit survives outer rollback", func(t *testing.T) {
		db := testutil.NewTestDatabase(t, nil, nil)

		err := db.Isolate(ctx, func(outer vfs.Database) error {
			if err := outer.Isolate(ctx, func(tx vfs.Database) error {
				_, err := tx.CreateScene(ctx, "inner", 0)
				return err
			}); err != nil {
				return err
			}
			return errBoom
		})
		if !errors.Is(err, errBoom) {
			t.Fatalf("Isolate() error = %v, want %v", err, errBoom)
		}
		if !sceneExists(t, db, "inner") {
			t.Error("inner scene should have been committed")
		}
	})

	t.Run("inner scope does not see uncommitted parent writes", func(t *testing.T) {
		db := testutil.NewTestDatabase(t, nil, nil)

		err := db.Isolate(ctx, func(outer vfs.Database) error {
			if _, err := outer.CreateScene(ctx, "pending", 0); err != nil {
				return err
			}
			return outer.Isolate(ctx, func(tx vfs.Database) error {
				_, err := tx.GetScene(ctx, model.ByName("pending"), 0)
				if !errors.Is(err, errs.ErrNotFound) {
					t.Errorf("inner GetScene() error = %v, want not found", err)
				}
				return nil
			})
		})
		if err != nil {
			t.Fatalf("Isolate() error = %v", err)
		}
		if !sceneExists(t, db, "pending") {
			t.Error("outer scene should have been committed")
		}
	})

	t.Run("nested write after a parent write is busy", func(t *testing.T) {
		db := testutil.NewTestDatabase(t, nil, nil, database.WithBusyTimeout(50*time.Millisecond))

		err := db.Isolate(ctx, func(outer vfs.Database) error {
			if _, err := outer.CreateScene(ctx, "outer", 0); err != nil {
				return err
			}
			inner := outer.Isolate(ctx, func(tx vfs.Database) error {
				_, err := tx.CreateScene(ctx, "inner", 0)
				return err
			})
			var sqliteErr sqlite3.Error
			if !errors.As(inner, &sqliteErr) || sqliteErr.Code != sqlite3.ErrBusy {
				t.Errorf("inner Isolate() error = %v, want SQLITE_BUSY", inner)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Isolate() error = %v", err)
		}
		if !sceneExists(t, db, "outer") {
			t.Error("outer scene should have been committed")
		}
		if sceneExists(t, db, "inner") {
			t.Error("inner scene should not exist")
		}
	})

	t.Run("root handle is unaffected by a failed scope", func(t *testing.T) {
		db := testutil.NewTestDatabase(t, nil, nil)

		_ = db.Isolate(ctx, func(tx vfs.Database) error { return errBoom })

		if _, err := db.CreateScene(ctx, "after", 0); err != nil {
			t.Fatalf("CreateScene() after failed Isolate error = %v", err)
		}
	})
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t, nil, nil)
	if _, err := db.CreateScene(ctx, "backed-up", 0); err != nil {
		t.Fatalf("CreateScene() error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := db.BackupTo(ctx, dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	copied, err := database.NewSQLiteDatabase(dest, nil, nil)
	if err != nil {
		t.Fatalf("NewSQLiteDatabase(backup) error = %v", err)
	}
	defer copied.Close()
	if err := copied.CheckMigrations(); err != nil {
		t.Errorf("backup CheckMigrations() error = %v", err)
	}
	if !sceneExists(t, copied, "backed-up") {
		t.Error("backup is missing the scene")
	}
}
