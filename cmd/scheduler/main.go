package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthsync/internal/config"
	"example.com/healthsync/internal/fitsync"
	"example.com/healthsync/internal/googlefit"
	"example.com/healthsync/internal/logging"
	persistence "example.com/healthsync/internal/persistence/postgres"
	"example.com/healthsync/internal/tokens"
	httptransport "example.com/healthsync/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File, Prefix: "scheduler"})
	if err != nil {
		log.Fatal("failed to build logger", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", "err", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	oauth := tokens.NewOAuth2Config(tokens.OAuthConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
		TokenURL:     cfg.Google.TokenURL,
	})
	syncer := fitsync.NewSyncer(repo,
		tokens.NewRefresher(oauth, repo, tokens.WithLogger(logger)),
		googlefit.NewClient(cfg.Google.AggregateURL),
		fitsync.WithLogger(logger),
	)
	scheduler := fitsync.NewScheduler(syncer, repo, fitsync.SchedulerConfig{
		Concurrency: cfg.Sync.SchedulerConcurrent,
		SyncTimeout: cfg.Sync.Timeout,
	}, logger)

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
	go func() {
		logger.Info("scheduler metrics listening", "addr", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "err", err)
		}
	}()

	logger.Info("scheduler started", "interval", cfg.Sync.SchedulerInterval, "concurrency", cfg.Sync.SchedulerConcurrent)
	if err := scheduler.Run(ctx, cfg.Sync.SchedulerInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped with error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "err", err)
	}
}
