package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"example.com/healthsync/internal/api"
	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/config"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/fitsync"
	"example.com/healthsync/internal/googlefit"
	"example.com/healthsync/internal/logging"
	"example.com/healthsync/internal/outbox"
	persistence "example.com/healthsync/internal/persistence/postgres"
	"example.com/healthsync/internal/ratelimit"
	"example.com/healthsync/internal/tokens"
	httptransport "example.com/healthsync/internal/transport/http"
)

const oauthStateTTL = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File, Prefix: "api"})
	if err != nil {
		log.Fatal("failed to build logger", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", "err", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
		outbox.WithLogger(logger.WithPrefix("outbox")))

	go dispatcher.Start(ctx)

	oauth := tokens.NewOAuth2Config(tokens.OAuthConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
		TokenURL:     cfg.Google.TokenURL,
	})
	refresher := tokens.NewRefresher(oauth, repo, tokens.WithLogger(logger))
	fetcher := googlefit.NewClient(cfg.Google.AggregateURL)
	syncer := fitsync.NewSyncer(repo, refresher, fetcher, fitsync.WithLogger(logger))

	opts := []api.Option{api.WithLogger(logger), api.WithSyncTimeout(cfg.Sync.Timeout)}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		limiter := ratelimit.NewRedisLimiter(rdb, "healthsync:sync", ratelimit.Policy{
			Limit:  cfg.Redis.RateLimit,
			Window: cfg.Redis.RateWindow,
		})
		opts = append(opts, api.WithSyncMiddleware(ratelimit.Middleware(limiter, logger)))
		logger.Info("sync rate limiting enabled", "limit", cfg.Redis.RateLimit, "window", cfg.Redis.RateWindow)
	}

	handler := api.NewHandler(
		domain.NewService(repo),
		syncer,
		tokens.NewConnector(oauth, repo, nil),
		tokens.NewStateSigner(cfg.JWTSecret, cfg.JWTIssuer, oauthStateTTL),
		opts...,
	)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.PublicPaths(api.PublicPaths()...))

	server := httptransport.NewServer(
		httptransport.DefaultServerConfig(cfg.HTTPAddress, cfg.Sync.Timeout),
		httptransport.Chain(mux,
			httptransport.CORS(cfg.CORSOrigin),
			httptransport.RequestLogger(logger),
			authMiddleware.Wrap,
		),
	)
	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("metrics listening", "addr", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "err", err)
		}
	}()
	go func() {
		logger.Info("healthsync api listening", "addr", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", "err", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "err", err)
	}

	dispatcher.Wait()
}
