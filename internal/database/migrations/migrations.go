// Package migrations applies the embedded schema migrations, or those of a
// directory chosen in the configuration, to a SQLite database.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var embedded embed.FS

var (
	ErrNoSchema = errors.New("database has no schema version (needs migration)")
	ErrDirty    = errors.New("database is in a dirty state (a migration failed previously)")
	ErrBehind   = errors.New("database schema is behind")
	ErrAhead    = errors.New("database schema is ahead of this binary")
)

// Status describes the applied schema against the available migrations.
type Status struct {
	Version uint
	Latest  uint
	Dirty   bool
}

// Err reports why the schema cannot be used, or nil when it is current.
func (s Status) Err() error {
	switch {
	case s.Version == 0:
		return ErrNoSchema
	case s.Dirty:
		return fmt.Errorf("%w: version %d", ErrDirty, s.Version)
	case s.Version < s.Latest:
		return fmt.Errorf("%w: at version %d of %d", ErrBehind, s.Version, s.Latest)
	case s.Version > s.Latest:
		return fmt.Errorf("%w: at version %d, binary knows %d", ErrAhead, s.Version, s.Latest)
	}
	return nil
}

// Migrator runs migrations against db. An empty dir selects the embedded files.
type Migrator struct {
	db  *sql.DB
	dir string
}

func New(db *sql.DB, dir string) *Migrator {
	return &Migrator{db: db, dir: dir}
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	return m.apply("up", (*migrate.Migrate).Up)
}

// Down reverts every applied migration.
func (m *Migrator) Down() error {
	return m.apply("down", (*migrate.Migrate).Down)
}

// Status reads the applied version and the newest available one.
func (m *Migrator) Status() (Status, error) {
	mg, err := m.open()
	if err != nil {
		return Status{}, err
	}
	// mg is not closed: that would close db, which the caller owns.
	var st Status
	st.Version, st.Dirty, err = mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, fmt.Errorf("reading schema version: %w", err)
	}

	src, err := m.source()
	if err != nil {
		return Status{}, err
	}
	defer src.Close()
	if st.Latest, err = latest(src); err != nil {
		return Status{}, err
	}
	return st, nil
}

// Check returns nil when the schema is at the newest version.
func (m *Migrator) Check() error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	return st.Err()
}

func (m *Migrator) apply(direction string, step func(*migrate.Migrate) error) error {
	mg, err := m.open()
	if err != nil {
		return err
	}
	if err := step(mg); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating %s: %w", direction, err)
	}
	return nil
}

func (m *Migrator) source() (source.Driver, error) {
	var (
		src source.Driver
		err error
	)
	if m.dir == "" {
		src, err = iofs.New(embedded, "files")
	} else {
		src, err = (&file.File{}).Open("file://" + m.dir)
	}
	if err != nil {
		return nil, fmt.Errorf("reading migration files: %w", err)
	}
	return src, nil
}

func (m *Migrator) open() (*migrate.Migrate, error) {
	src, err := m.source()
	if err != nil {
		return nil, err
	}
	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("opening migration driver: %w", err)
	}
	mg, err := migrate.NewWithInstance("source", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("opening migrations: %w", err)
	}
	return mg, nil
}

// latest walks the source to its last version. Next fails past the end.
func latest(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no migrations found: %w", err)
	}
	for next, err := src.Next(v); err == nil; next, err = src.Next(v) {
		v = next
	}
	return v, nil
}
