package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestActivityUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	day := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	rows := []domain.DailyActivity{
		{UserID: "u1", Date: day, Steps: 2000, Calories: 50.5},
		{UserID: "u1", Date: day.AddDate(0, 0, 1), Steps: 100, ActiveMinutes: 4},
	}
	require.NoError(t, store.UpsertActivities(ctx, rows))
	require.NoError(t, store.UpsertActivities(ctx, rows))

	stored, err := store.ListActivities(ctx, "u1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, rows, stored)

	rows[0].Steps = 2500
	require.NoError(t, store.UpsertActivities(ctx, rows[:1]))
	stored, err = store.ListActivities(ctx, "u1", day, day)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, int64(2500), stored[0].Steps)
}

func TestWeightLaterWriteWins(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	day := time.Date(2024, 8, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.UpsertWeights(ctx, []domain.WeightLog{{UserID: "u1", Date: day, Weight: 81.5, Source: domain.WeightSourceGoogleFit}}))
	require.NoError(t, store.UpsertWeights(ctx, []domain.WeightLog{{UserID: "u1", Date: day, Weight: 80.9, Source: domain.WeightSourceManual}}))
	require.NoError(t, store.UpsertWeights(ctx, []domain.WeightLog{{UserID: "u1", Date: day.AddDate(0, 0, -3), Weight: 82, Source: domain.WeightSourceManual}}))

	logs, err := store.ListWeights(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, day, logs[0].Date)
	require.Equal(t, 80.9, logs[0].Weight)
	require.Equal(t, domain.WeightSourceManual, logs[0].Source)

	count, err := store.CountWeights(ctx, "u1", day.AddDate(0, 0, -1), day)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCredentialRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	missing, err := store.GetCredential(ctx, "u1", domain.ProviderGoogleFit)
	require.NoError(t, err)
	require.Nil(t, missing)

	expires := time.Date(2024, 8, 3, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertCredential(ctx, domain.Credential{
		UserID: "u1", Provider: domain.ProviderGoogleFit, AccessToken: "a1", RefreshToken: "r1", ExpiresAt: expires,
	}))
	require.NoError(t, store.UpsertCredential(ctx, domain.Credential{
		UserID: "u1", Provider: domain.ProviderGoogleFit, AccessToken: "a2", ExpiresAt: expires.Add(time.Hour),
	}))

	cred, err := store.GetCredential(ctx, "u1", domain.ProviderGoogleFit)
	require.NoError(t, err)
	require.Equal(t, "a2", cred.AccessToken)
	require.Equal(t, "r1", cred.RefreshToken)
	require.True(t, cred.ExpiresAt.Equal(expires.Add(time.Hour)))

	users, err := store.ListCredentialUsers(ctx, domain.ProviderGoogleFit)
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, users)
}

func TestDeleteUserDataScopedToUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	day := time.Date(2024, 8, 4, 0, 0, 0, 0, time.UTC)

	for _, user := range []string{"u1", "u2"} {
		require.NoError(t, store.UpsertActivities(ctx, []domain.DailyActivity{{UserID: user, Date: day, Steps: 10}}))
		require.NoError(t, store.UpsertWeights(ctx, []domain.WeightLog{{UserID: user, Date: day, Weight: 70, Source: domain.WeightSourceManual}}))
		require.NoError(t, store.AddPhoto(ctx, user, day, "photos/"+user+".jpg"))
		require.NoError(t, store.UpsertCredential(ctx, domain.Credential{UserID: user, Provider: domain.ProviderGoogleFit, AccessToken: "a", ExpiresAt: day}))
	}

	photos, err := store.CountPhotos(ctx, "u1", day, day)
	require.NoError(t, err)
	require.Equal(t, 1, photos)

	require.NoError(t, store.DeleteUserData(ctx, "u1"))

	activity, err := store.ListActivities(ctx, "u1", day, day)
	require.NoError(t, err)
	require.Empty(t, activity)
	photos, err = store.CountPhotos(ctx, "u1", day, day)
	require.NoError(t, err)
	require.Zero(t, photos)
	cred, err := store.GetCredential(ctx, "u1", domain.ProviderGoogleFit)
	require.NoError(t, err)
	require.Nil(t, cred)

	remaining, err := store.ListActivities(ctx, "u2", day, day)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

func TestScoreServiceOverSQLite(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	today := time.Date(2024, 8, 10, 0, 0, 0, 0, time.UTC)

	var rows []domain.DailyActivity
	for i := 0; i < 7; i++ {
		rows = append(rows, domain.DailyActivity{UserID: "u1", Date: today.AddDate(0, 0, -i), Steps: 10000, HeartMinutes: 25})
	}
	require.NoError(t, store.UpsertActivities(ctx, rows))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.UpsertWeights(ctx, []domain.WeightLog{{UserID: "u1", Date: today.AddDate(0, 0, -i), Weight: 75, Source: domain.WeightSourceManual}}))
	}
	require.NoError(t, store.AddPhoto(ctx, "u1", today, "p.jpg"))

	svc := domain.NewService(store, domain.WithClock(func() time.Time { return today.Add(15 * time.Hour) }))
	result, err := svc.Score(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 100, result.Score)
	require.Equal(t, domain.ScoreBreakdown{Activity: 60, Consistency: 20, Trend: 20}, result.Breakdown)
}
