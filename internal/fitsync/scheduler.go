package fitsync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"example.com/healthsync/internal/domain"
)

// Runner syncs a single user.
type Runner interface {
	Sync(ctx context.Context, userID string) (Result, error)
}

// Summary describes one scheduler pass.
type Summary struct {
	Users     int
	Succeeded int
	Failed    int
}

// SchedulerConfig bounds a scheduler pass.
type SchedulerConfig struct {
	Concurrency int
	// SyncTimeout caps each user's sync. Zero means no per-user deadline.
	SyncTimeout time.Duration
}

// Scheduler re-syncs every connected user with a bounded worker pool.
// Per-user failures are logged and counted, never retried within a pass.
type Scheduler struct {
	runner Runner
	users  domain.CredentialStore
	cfg    SchedulerConfig
	logger *log.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(runner Runner, users domain.CredentialStore, cfg SchedulerConfig, logger *log.Logger) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{runner: runner, users: users, cfg: cfg, logger: logger}
}

// RunOnce syncs every user holding a Google Fit credential.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	userIDs, err := s.users.ListCredentialUsers(ctx, domain.ProviderGoogleFit)
	if err != nil {
		return Summary{}, fmt.Errorf("list connected users: %w", err)
	}

	var succeeded, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		userID := userID
		g.Go(func() error {
			syncCtx := ctx
			if s.cfg.SyncTimeout > 0 {
				var cancel context.CancelFunc
				syncCtx, cancel = context.WithTimeout(ctx, s.cfg.SyncTimeout)
				defer cancel()
			}
			if _, err := s.runner.Sync(syncCtx, userID); err != nil {
				failed.Add(1)
				s.logger.Warn("scheduled sync failed", "user_id", userID, "outcome", Outcome(err))
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{
		Users:     len(userIDs),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}
	return summary, ctx.Err()
}

// Run calls RunOnce immediately and then on every interval tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		summary, err := s.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler pass failed", "err", err)
		} else {
			s.logger.Info("scheduler pass finished", "users", summary.Users, "succeeded", summary.Succeeded, "failed", summary.Failed)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
