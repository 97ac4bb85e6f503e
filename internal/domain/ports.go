package domain

import (
	"context"
	"time"
)

// CredentialStore persists one OAuth credential per (user, provider).
type CredentialStore interface {
	// GetCredential returns nil, nil when no credential exists.
	GetCredential(ctx context.Context, userID, provider string) (*Credential, error)
	UpsertCredential(ctx context.Context, cred Credential) error
	ListCredentialUsers(ctx context.Context, provider string) ([]string, error)
}

// ActivityStore upserts and reads daily activity rows keyed by (user_id, date).
type ActivityStore interface {
	UpsertActivities(ctx context.Context, rows []DailyActivity) error
	// ListActivities returns rows with from <= date <= to, oldest first.
	ListActivities(ctx context.Context, userID string, from, to time.Time) ([]DailyActivity, error)
}

// WeightStore upserts and reads weight logs keyed by (user_id, date).
type WeightStore interface {
	UpsertWeights(ctx context.Context, rows []WeightLog) error
	CountWeights(ctx context.Context, userID string, from, to time.Time) (int, error)
	// ListWeights returns every log for the user, newest first.
	ListWeights(ctx context.Context, userID string) ([]WeightLog, error)
}

// PhotoLogCounter counts progress photo entries. Photo storage itself lives elsewhere.
type PhotoLogCounter interface {
	CountPhotos(ctx context.Context, userID string, from, to time.Time) (int, error)
}

// AccountEraser removes every row owned by a user, credentials included.
type AccountEraser interface {
	DeleteUserData(ctx context.Context, userID string) error
}

// Repository is the full persistence surface implemented by the SQL backends.
type Repository interface {
	CredentialStore
	ActivityStore
	WeightStore
	PhotoLogCounter
	AccountEraser
}
