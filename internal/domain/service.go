// Package domain defines the health records, the scoring rules, and the
// read-side workflows of the health sync service.
package domain

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	defaultActivityDays = 30
	maxActivityDays     = 90
)

// Service orchestrates score computation and the user-facing record workflows.
type Service struct {
	repo Repository
	now  func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score reads the trailing week of activity and log counts and runs the scorer.
// It only reads, so it may run alongside an in-flight sync.
func (s *Service) Score(ctx context.Context, userID string) (HealthScoreResult, error) {
	to := DayOf(s.now())
	from := to.AddDate(0, 0, -ScoreWindowDays)

	activity, err := s.repo.ListActivities(ctx, userID, from, to)
	if err != nil {
		return HealthScoreResult{}, fmt.Errorf("list activity: %w", err)
	}
	weightLogs, err := s.repo.CountWeights(ctx, userID, from, to)
	if err != nil {
		return HealthScoreResult{}, fmt.Errorf("count weight logs: %w", err)
	}
	photoLogs, err := s.repo.CountPhotos(ctx, userID, from, to)
	if err != nil {
		return HealthScoreResult{}, fmt.Errorf("count photo logs: %w", err)
	}

	return ComputeHealthScore(activity, weightLogs, photoLogs), nil
}

// LogWeight records a manual weight entry. An empty date means today (UTC).
// A synced entry for the same day is overwritten, and vice versa.
func (s *Service) LogWeight(ctx context.Context, userID string, weight float64, date string) (WeightLog, error) {
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight <= 0 {
		return WeightLog{}, fmt.Errorf("%w: weight must be a positive number", ErrInvalidInput)
	}

	day := DayOf(s.now())
	if strings.TrimSpace(date) != "" {
		parsed, err := ParseDate(date)
		if err != nil {
			return WeightLog{}, fmt.Errorf("%w: date must use YYYY-MM-DD", ErrInvalidInput)
		}
		day = parsed
	}

	entry := WeightLog{UserID: userID, Date: day, Weight: weight, Source: WeightSourceManual}
	if err := s.repo.UpsertWeights(ctx, []WeightLog{entry}); err != nil {
		return WeightLog{}, err
	}
	return entry, nil
}

// ListWeights returns the user's weight history, newest first.
func (s *Service) ListWeights(ctx context.Context, userID string) ([]WeightLog, error) {
	return s.repo.ListWeights(ctx, userID)
}

// ListActivity returns the last `days` calendar days of stored activity.
func (s *Service) ListActivity(ctx context.Context, userID string, days int) ([]DailyActivity, error) {
	if days <= 0 {
		days = defaultActivityDays
	}
	if days > maxActivityDays {
		days = maxActivityDays
	}
	to := DayOf(s.now())
	return s.repo.ListActivities(ctx, userID, to.AddDate(0, 0, -days), to)
}

// DeleteAccountData erases every record for the user, including the OAuth credential.
func (s *Service) DeleteAccountData(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidInput)
	}
	return s.repo.DeleteUserData(ctx, userID)
}
