// Command healthctl is the operator CLI for the health sync service.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthsync/internal/config"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/logging"
	persistence "example.com/healthsync/internal/persistence/postgres"
	"example.com/healthsync/internal/persistence/sqlite"
)

var CLI struct {
	Store    string `help:"PostgreSQL URL or SQLite file path. Defaults to POSTGRES_URL." env:"HEALTHSYNC_STORE"`
	LogLevel string `help:"Log level." default:"warn" env:"LOG_LEVEL"`

	Migrate   MigrateCmd   `cmd:"" help:"Apply database migrations."`
	Sync      SyncCmd      `cmd:"" help:"Run a Google Fit sync for one user."`
	Score     ScoreCmd     `cmd:"" help:"Print a user's health score."`
	LogWeight LogWeightCmd `cmd:"" name:"log-weight" help:"Record a manual weight entry."`
	Token     TokenCmd     `cmd:"" help:"Issue a bearer token for local testing."`
}

// appContext is passed to every command's Run method.
type appContext struct {
	Ctx    context.Context
	Config config.Config
	Store  domain.Repository
	Pool   *pgxpool.Pool
	Logger *log.Logger
	Out    io.Writer
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("healthsync"),
		kong.Description("Operator tooling for the health sync service"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Config{Level: CLI.LogLevel, File: cfg.Log.File, Prefix: "healthctl"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	app := &appContext{Ctx: context.Background(), Config: cfg, Logger: logger, Out: os.Stdout}

	// token only signs, it never touches storage.
	if kctx.Selected() == nil || kctx.Selected().Name != "token" {
		target := CLI.Store
		if target == "" {
			target = cfg.PostgresURL
		}
		closeStore, err := openStore(app, target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer closeStore()
	}

	if err := kctx.Run(app); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func isPostgresURL(target string) bool {
	return strings.HasPrefix(target, "postgres://") || strings.HasPrefix(target, "postgresql://")
}

// openStore connects app to Postgres or SQLite depending on target.
func openStore(app *appContext, target string) (func(), error) {
	if isPostgresURL(target) {
		pool, err := pgxpool.New(app.Ctx, target)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		app.Pool = pool
		app.Store = persistence.NewRepository(pool)
		return pool.Close, nil
	}

	store, err := sqlite.Open(target)
	if err != nil {
		return nil, err
	}
	app.Store = store
	return func() { _ = store.Close() }, nil
}
