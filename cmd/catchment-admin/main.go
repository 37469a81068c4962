// Command catchment-admin provides operator tooling for the catchment
// pipeline: migrations, queue inspection, and stuck-job recovery.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/locushq/catchment-api/config"
	"github.com/locushq/catchment-api/internal/bootstrap"
	"github.com/locushq/catchment-api/internal/data"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultMigrationTimeout = 5 * time.Minute

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrate,
		},
		"stats": {
			name:        "stats",
			description: "Show job counts per status and the oldest processing age",
			run:         runStats,
		},
		"requeue-stuck": {
			name:        "requeue-stuck",
			description: "Reset processing jobs older than a threshold back to pending",
			run:         runRequeueStuck,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: catchment-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	for _, c := range commands() {
		if err := writef(os.Stdout, "  %-16s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

func runMigrate(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultMigrationTimeout, "maximum time to wait for migrations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(db, cmdCtx.Logger)

	return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
}

func runStats(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(db, cmdCtx.Logger)

	repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	stats, err := repo.Stats(ctx)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	oldest, err := repo.OldestProcessingAge(ctx)
	if err != nil {
		return fmt.Errorf("load oldest processing age: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	rows := []struct {
		label string
		count int
	}{
		{"pending", stats.Pending},
		{"processing", stats.Processing},
		{"done", stats.Done},
		{"partial", stats.Partial},
		{"failed", stats.Failed},
	}
	for _, row := range rows {
		if err := writef(w, "%s\t%d\n", row.label, row.count); err != nil {
			return err
		}
	}
	if err := writef(w, "oldest processing\t%s\n", oldest.Round(time.Second)); err != nil {
		return err
	}
	return w.Flush()
}

func runRequeueStuck(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("requeue-stuck", flag.ContinueOnError)
	olderThan := fs.Duration("older-than", 30*time.Minute, "minimum processing age before a job is considered stuck")
	dryRun := fs.Bool("dry-run", false, "report what would be requeued without changing anything")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *olderThan <= 0 {
		return errors.New("-older-than must be positive")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(db, cmdCtx.Logger)

	repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})

	if *dryRun {
		stats, statsErr := repo.Stats(ctx)
		if statsErr != nil {
			return fmt.Errorf("load stats: %w", statsErr)
		}
		oldest, ageErr := repo.OldestProcessingAge(ctx)
		if ageErr != nil {
			return fmt.Errorf("load oldest processing age: %w", ageErr)
		}
		cmdCtx.Logger.Info("dry run",
			"processing", stats.Processing,
			"oldest_processing", oldest.Round(time.Second).String(),
			"threshold", olderThan.String(),
		)
		return nil
	}

	requeued, err := repo.RequeueStuck(ctx, *olderThan)
	if err != nil {
		return fmt.Errorf("requeue stuck jobs: %w", err)
	}
	cmdCtx.Logger.Info("requeue complete", "jobs_requeued", requeued, "threshold", olderThan.String())
	return nil
}

func connectDB(cmdCtx *commandContext) (*sql.DB, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig:    cmdCtx.Config.Postgres,
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("db close failed", "error", err)
	}
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
