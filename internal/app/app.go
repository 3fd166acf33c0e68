package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ecorpus-go/internal/config"
	"ecorpus-go/internal/database"
	"ecorpus-go/internal/objects"
	"ecorpus-go/internal/vfs"
)

// Options tune NewApp.
type Options struct {
	// Operation names the CLI command being run (e.g. "scene.import").
	Operation string
	// LogLevel is the minimum level written to the log.
	LogLevel slog.Level
}

// App is the application layer between the CLI and the storage engine.
// It constructs all dependencies from config and manages their lifecycle.
type App struct {
	cfg      *config.Config
	db       *database.SQLiteDatabase
	objects  vfs.ObjectStore
	vfs      *vfs.Vfs
	op       *Operation
	logger   *slog.Logger
	logFile  *os.File
	registry *prometheus.Registry
}

// NewApp creates a fully wired App from the given config.
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	op := NewOperation(opts.Operation, time.Now())
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.Public)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	store, err := objects.NewObjectStoreFromConfig(ctx, cfg.Objects, adapter)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating object store: %w", err)
	}
	if err := store.ValidateSetup(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("object store not usable: %w", err)
	}

	engine, err := vfs.New(db, store, adapter, cfg.Cache.Documents)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(objects.Collectors()...)
	registry.MustRegister(vfs.Collectors()...)

	logger.Debug("operation started", "operation", op.Name)
	return &App{
		cfg:      cfg,
		db:       db,
		objects:  store,
		vfs:      engine,
		op:       op,
		logger:   logger,
		logFile:  logFile,
		registry: registry,
	}, nil
}

// Vfs returns the storage engine.
func (a *App) Vfs() *vfs.Vfs { return a.vfs }

// DB returns the database session.
func (a *App) DB() *database.SQLiteDatabase { return a.db }

func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the operation's logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Registry holds the engine metrics of this process.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Fail records that the operation failed. The error is logged on Close.
func (a *App) Fail(err error) { a.op.Fail(err) }

// Close logs the outcome of the operation and closes all resources.
func (a *App) Close() error {
	elapsed := time.Since(a.op.Started).Round(time.Millisecond)
	if a.op.Failed() {
		a.logger.Error("operation failed", "operation", a.op.Name, "elapsed", elapsed, "error", a.op.Err)
	} else {
		a.logger.Debug("operation finished", "operation", a.op.Name, "elapsed", elapsed)
	}

	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// OpenDatabase opens the configured database without checking its schema,
// for the migrate commands.
func OpenDatabase(cfg *config.Config) (*database.SQLiteDatabase, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.Public)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	return db, nil
}
