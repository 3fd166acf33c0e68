package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ecorpus-go/internal/database/migrations"
	"ecorpus-go/internal/vfs"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DefaultBusyTimeout is how long a connection waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteDatabase implements the vfs.Database interface using SQLite.
//
// The root handle runs every statement in autocommit mode on the connection
// pool. Handles passed to Transaction and Isolate callbacks are bound to a
// single transaction and must not be used once the callback returns.
type SQLiteDatabase struct {
	db    *sql.DB
	q     querier
	tx    *sql.Tx
	path  string
	clock vfs.Clock
	idgen vfs.IDGenerator

	public         bool
	busyTimeout    time.Duration
	migrationsPath string
}

// Option configures a SQLiteDatabase.
type Option func(*SQLiteDatabase)

// WithPublic makes new scenes readable by anonymous users.
func WithPublic(public bool) Option {
	return func(s *SQLiteDatabase) { s.public = public }
}

// WithBusyTimeout overrides DefaultBusyTimeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *SQLiteDatabase) { s.busyTimeout = d }
}

// WithMigrationsPath reads migrations from a directory instead of the
// embedded set.
func WithMigrationsPath(path string) Option {
	return func(s *SQLiteDatabase) { s.migrationsPath = path }
}

// NewSQLiteDatabase opens the SQLite database at path.
// clock and idgen may be nil, in which case real time and random ids are used.
func NewSQLiteDatabase(path string, clock vfs.Clock, idgen vfs.IDGenerator, opts ...Option) (*SQLiteDatabase, error) {
	if clock == nil {
		clock = vfs.RealClock{}
	}
	if idgen == nil {
		idgen = vfs.RandomIDGenerator{}
	}

	s := &SQLiteDatabase{
		path:        path,
		clock:       clock,
		idgen:       idgen,
		busyTimeout: DefaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := OpenConnection(path, s.busyTimeout)
	if err != nil {
		return nil, err
	}
	s.db = db
	s.q = db
	return s, nil
}

// OpenConnection opens a SQLite connection pool.
//
// Pragmas are passed through the DSN so that every pooled connection gets
// them, not only the first one: foreign keys, a busy timeout, WAL journaling
// and NORMAL synchronous mode. An in-memory path is refused because each
// pooled connection would see its own empty database.
func OpenConnection(path string, busyTimeout time.Duration) (*sql.DB, error) {
	if path == "" || path == ":memory:" {
		return nil, fmt.Errorf("sqlite database requires a file path, got %q", path)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// Transaction runs work in a transaction. A transaction-bound handle runs
// work directly inside its own transaction.
func (s *SQLiteDatabase) Transaction(ctx context.Context, work func(tx vfs.Database) error) error {
	return s.transaction(ctx, func(tx *SQLiteDatabase) error { return work(tx) })
}

// Isolate runs work in a new transaction on its own connection, even when
// called from inside another transaction. A nested scope cannot write after
// its parent has: the write fails with SQLITE_BUSY once the busy timeout
// expires.
func (s *SQLiteDatabase) Isolate(ctx context.Context, work func(tx vfs.Database) error) error {
	return s.isolate(ctx, func(tx *SQLiteDatabase) error { return work(tx) })
}

func (s *SQLiteDatabase) transaction(ctx context.Context, work func(tx *SQLiteDatabase) error) error {
	if s.tx != nil {
		return work(s)
	}
	return s.isolate(ctx, work)
}

func (s *SQLiteDatabase) isolate(ctx context.Context, work func(tx *SQLiteDatabase) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	// Rolls back on error and on panic; a no-op after Commit.
	defer tx.Rollback()

	scoped := *s
	scoped.q = tx
	scoped.tx = tx

	if err := work(&scoped); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", translateError(err))
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// DB returns the underlying connection pool.
func (s *SQLiteDatabase) DB() *sql.DB {
	return s.db
}

func (s *SQLiteDatabase) migrator() *migrations.Migrator {
	return migrations.New(s.db, s.migrationsPath)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error { return s.migrator().Check() }

// MigrationStatus reports the applied and the newest schema version.
func (s *SQLiteDatabase) MigrationStatus() (migrations.Status, error) { return s.migrator().Status() }

// MigrateUp applies pending migrations.
func (s *SQLiteDatabase) MigrateUp() error { return s.migrator().Up() }

// MigrateDown reverts every migration.
func (s *SQLiteDatabase) MigrateDown() error { return s.migrator().Down() }

// BackupTo writes a consistent copy of the database to destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(ctx context.Context, destPath string) error {
	if _, err := s.q.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the connection pool. Transaction-bound handles cannot be closed.
func (s *SQLiteDatabase) Close() error {
	if s.tx != nil {
		return errors.New("cannot close a transaction-bound database handle")
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements vfs.Database interface
var _ vfs.Database = (*SQLiteDatabase)(nil)
