// Package fitsync runs the Google Fit synchronisation pipeline for a user and
// schedules periodic re-syncs for every connected user.
package fitsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/googlefit"
	"example.com/healthsync/internal/observability"
)

const (
	storeActivity = "activity"
	storeWeight   = "weight"
)

// TokenRefresher returns a credential whose access token is usable.
type TokenRefresher interface {
	EnsureValid(ctx context.Context, cred domain.Credential) (domain.Credential, error)
}

// Fetcher downloads the aggregate window for an access token.
type Fetcher interface {
	FetchWindow(ctx context.Context, accessToken string) (*googlefit.AggregateResponse, error)
}

// Store is the persistence the pipeline reads credentials from and writes
// reconciled rows to.
type Store interface {
	domain.CredentialStore
	domain.ActivityStore
	domain.WeightStore
}

// Result reports how many rows a sync wrote.
type Result struct {
	ActivityCount int
	WeightCount   int
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// Syncer wires credential lookup, refresh, fetch, reconcile and store writes.
type Syncer struct {
	store     Store
	refresher TokenRefresher
	fetcher   Fetcher
	logger    *log.Logger
}

// NewSyncer constructs a Syncer.
func NewSyncer(store Store, refresher TokenRefresher, fetcher Fetcher, opts ...Option) *Syncer {
	s := &Syncer{
		store:     store,
		refresher: refresher,
		fetcher:   fetcher,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync pulls the trailing window for userID and upserts the reconciled rows.
// Nothing is written unless the fetch succeeded. Activity and weight writes are
// attempted independently; when either fails the returned error joins both
// failures and Result still reports what was written.
func (s *Syncer) Sync(ctx context.Context, userID string) (result Result, err error) {
	started := time.Now()
	logger := s.logger.With("user_id", userID, "run_id", uuid.NewString())
	defer func() {
		observability.RecordSync(Outcome(err), started)
		if err != nil {
			logger.Warn("fit sync failed", "outcome", Outcome(err), "err", err, "elapsed", time.Since(started))
			return
		}
		logger.Info("fit sync completed", "activity", result.ActivityCount, "weight", result.WeightCount, "elapsed", time.Since(started))
	}()

	cred, err := s.store.GetCredential(ctx, userID, domain.ProviderGoogleFit)
	if err != nil {
		return Result{}, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return Result{}, domain.ErrNotConnected
	}

	valid, err := s.refresher.EnsureValid(ctx, *cred)
	if err != nil {
		return Result{}, err
	}

	resp, err := s.fetcher.FetchWindow(ctx, valid.AccessToken)
	if err != nil {
		return Result{}, err
	}

	activities, weights := googlefit.Reconcile(userID, resp)
	logger.Debug("reconciled buckets", "buckets", len(resp.Buckets), "activity", len(activities), "weight", len(weights))

	var errs []error
	if len(activities) > 0 {
		if werr := s.store.UpsertActivities(ctx, activities); werr != nil {
			errs = append(errs, &domain.StoreError{Store: storeActivity, Err: werr})
		} else {
			result.ActivityCount = len(activities)
			observability.RecordRowsUpserted(storeActivity, len(activities))
		}
	}
	if len(weights) > 0 {
		if werr := s.store.UpsertWeights(ctx, weights); werr != nil {
			errs = append(errs, &domain.StoreError{Store: storeWeight, Err: werr})
		} else {
			result.WeightCount = len(weights)
			observability.RecordRowsUpserted(storeWeight, len(weights))
		}
	}
	return result, errors.Join(errs...)
}

// Outcome labels err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, domain.ErrReauthRequired):
		return "reauth_required"
	case errors.Is(err, domain.ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(err, domain.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, domain.ErrUpstream):
		return "upstream_error"
	case errors.Is(err, domain.ErrStore):
		return "store_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
