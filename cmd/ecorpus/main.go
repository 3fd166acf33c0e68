package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"ecorpus-go/internal/access"
	"ecorpus-go/internal/app"
	"ecorpus-go/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// run creates an App for operation, resolves the acting user and calls fn.
// A failure of fn is recorded on the operation before the App is closed.
func run(cmd *cobra.Command, operation string, fn func(ctx context.Context, a *app.App, uid int64) error) (err error) {
	cfg, err := readConfig()
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}

	ctx := cmd.Context()
	a, err := app.NewApp(ctx, cfg, app.Options{Operation: operation, LogLevel: level})
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}
	defer func() {
		if err != nil {
			a.Fail(err)
		}
		if showMetrics {
			printMetrics(a)
		}
		a.Close()
	}()

	uid := access.DefaultUserID
	if actingUser != "" {
		u, err := a.DB().GetUserByName(ctx, actingUser)
		if err != nil {
			return fmt.Errorf("resolving --as: %w", err)
		}
		uid = u.UID
	}
	return fn(ctx, a, uid)
}

var (
	actingUser  string
	logLevel    string
	showMetrics bool
)

var rootCmd = &cobra.Command{
	Use:          "ecorpus",
	Short:        "Versioned storage for 3D scenes",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		fmt.Println("Run 'ecorpus migrate up' to create the database.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Public:   %t\n", cfg.Public)
		fmt.Printf("Database: %s\n", cfg.Database.Path)
		switch cfg.Objects.Type {
		case "s3":
			fmt.Printf("Objects:  s3://%s/%s (%s)\n", cfg.Objects.S3Bucket, cfg.Objects.S3Prefix, cfg.Objects.S3Region)
		default:
			fmt.Printf("Objects:  %s %s\n", cfg.Objects.Type, cfg.Objects.Root)
		}
		fmt.Printf("Document cache: %d\n", cfg.Cache.Documents)
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

func migrateRunE(apply func(cfg *config.Config) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		return apply(cfg)
	}
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: migrateRunE(func(cfg *config.Config) error {
		db, err := app.OpenDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.MigrateUp(); err != nil {
			return err
		}
		fmt.Println("Database is up to date.")
		return nil
	}),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert all migrations, dropping every scene",
	RunE: migrateRunE(func(cfg *config.Config) error {
		db, err := app.OpenDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.MigrateDown(); err != nil {
			return err
		}
		fmt.Println("All migrations reverted.")
		return nil
	}),
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether migrations are pending",
	RunE: migrateRunE(func(cfg *config.Config) error {
		db, err := app.OpenDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		st, err := db.MigrationStatus()
		if err != nil {
			return err
		}
		fmt.Printf("Schema version %d of %d", st.Version, st.Latest)
		if st.Dirty {
			fmt.Print(" (dirty)")
		}
		fmt.Println()
		return st.Err()
	}),
}

var migrateBackupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a consistent copy of the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "db.backup", func(ctx context.Context, a *app.App, _ int64) error {
			if err := a.DB().BackupTo(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Database copied to %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&actingUser, "as", "", "Act as this user (default: anonymous)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Minimum log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print engine counters after the command")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateBackupCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sceneCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(docCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(accessCmd)
}
