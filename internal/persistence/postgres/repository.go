// Package postgres implements the health record stores on Postgres with pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/events"
)

// Repository provides Postgres-backed persistence for credentials, daily
// activity, weight logs and outbox events.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ domain.Repository = (*Repository)(nil)

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// withUser runs fn in a transaction scoped to userID for row level security.
func (r *Repository) withUser(ctx context.Context, userID string, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.user_id', $1, true)", userID); err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetCredential returns the stored credential or nil when the user never connected.
func (r *Repository) GetCredential(ctx context.Context, userID, provider string) (*domain.Credential, error) {
	const query = `SELECT user_id, provider, access_token, COALESCE(refresh_token, ''), expires_at, updated_at
        FROM integrations WHERE user_id=$1 AND provider=$2`

	var cred domain.Credential
	err := r.pool.QueryRow(ctx, query, userID, provider).Scan(
		&cred.UserID, &cred.Provider, &cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt, &cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

// UpsertCredential writes the credential. An empty refresh token never clears a
// stored one.
func (r *Repository) UpsertCredential(ctx context.Context, cred domain.Credential) error {
	const stmt = `INSERT INTO integrations (user_id, provider, access_token, refresh_token, expires_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (user_id, provider) DO UPDATE SET
            access_token = EXCLUDED.access_token,
            refresh_token = COALESCE(EXCLUDED.refresh_token, integrations.refresh_token),
            expires_at = EXCLUDED.expires_at,
            updated_at = EXCLUDED.updated_at`

	updatedAt := cred.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}
	_, err := r.pool.Exec(ctx, stmt,
		cred.UserID,
		cred.Provider,
		cred.AccessToken,
		nullIfEmpty(cred.RefreshToken),
		cred.ExpiresAt.UTC(),
		updatedAt.UTC(),
	)
	return err
}

// ListCredentialUsers returns every user holding a credential for provider.
func (r *Repository) ListCredentialUsers(ctx context.Context, provider string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM integrations WHERE provider=$1 ORDER BY user_id`, provider)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

const upsertActivitySQL = `INSERT INTO daily_activity (user_id, date, steps, calories, active_minutes, heart_minutes, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,NOW())
    ON CONFLICT (user_id, date) DO UPDATE SET
        steps = EXCLUDED.steps,
        calories = EXCLUDED.calories,
        active_minutes = EXCLUDED.active_minutes,
        heart_minutes = EXCLUDED.heart_minutes,
        updated_at = EXCLUDED.updated_at`

// UpsertActivities overwrites each (user_id, date) row and records one
// fit.activity_synced event per user in the same transaction.
func (r *Repository) UpsertActivities(ctx context.Context, rows []domain.DailyActivity) error {
	order, groups := groupByUser(rows, func(a domain.DailyActivity) string { return a.UserID })
	for _, userID := range order {
		userRows := groups[userID]
		err := r.withUser(ctx, userID, func(tx pgx.Tx) error {
			batch := &pgx.Batch{}
			for _, a := range userRows {
				batch.Queue(upsertActivitySQL, a.UserID, a.Date, a.Steps, a.Calories, a.ActiveMinutes, a.HeartMinutes)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return err
			}

			event := events.ActivitySynced{
				EventID:    uuid.NewString(),
				UserID:     userID,
				OccurredAt: r.now().UTC(),
			}
			for _, a := range userRows {
				event.Dates = append(event.Dates, domain.FormatDate(a.Date))
				event.TotalSteps += a.Steps
			}
			return insertOutbox(ctx, tx, userID, "daily_activity", events.TypeActivitySynced, event.EventID, event)
		})
		if err != nil {
			return fmt.Errorf("upsert activity for %s: %w", userID, err)
		}
	}
	return nil
}

// ListActivities returns rows with from <= date <= to, oldest first.
func (r *Repository) ListActivities(ctx context.Context, userID string, from, to time.Time) ([]domain.DailyActivity, error) {
	const query = `SELECT user_id, date, steps, calories, active_minutes, heart_minutes
        FROM daily_activity WHERE user_id=$1 AND date >= $2 AND date <= $3
        ORDER BY date`

	var results []domain.DailyActivity
	err := r.withUser(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, userID, from, to)
		if err != nil {
			return err
		}
		results, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.DailyActivity, error) {
			var a domain.DailyActivity
			err := row.Scan(&a.UserID, &a.Date, &a.Steps, &a.Calories, &a.ActiveMinutes, &a.HeartMinutes)
			a.Date = domain.DayOf(a.Date)
			return a, err
		})
		return err
	})
	return results, err
}

const upsertWeightSQL = `INSERT INTO weight_logs (user_id, date, weight, source, updated_at)
    VALUES ($1,$2,$3,$4,NOW())
    ON CONFLICT (user_id, date) DO UPDATE SET
        weight = EXCLUDED.weight,
        source = EXCLUDED.source,
        updated_at = EXCLUDED.updated_at`

// UpsertWeights overwrites each (user_id, date) log. Synced rows produce one
// fit.weight_synced event per user; manual rows produce a weight.logged event each.
func (r *Repository) UpsertWeights(ctx context.Context, rows []domain.WeightLog) error {
	order, groups := groupByUser(rows, func(w domain.WeightLog) string { return w.UserID })
	for _, userID := range order {
		userRows := groups[userID]
		err := r.withUser(ctx, userID, func(tx pgx.Tx) error {
			batch := &pgx.Batch{}
			for _, w := range userRows {
				batch.Queue(upsertWeightSQL, w.UserID, w.Date, w.Weight, string(w.Source))
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return err
			}
			return r.recordWeightEvents(ctx, tx, userID, userRows)
		})
		if err != nil {
			return fmt.Errorf("upsert weight for %s: %w", userID, err)
		}
	}
	return nil
}

func (r *Repository) recordWeightEvents(ctx context.Context, tx pgx.Tx, userID string, rows []domain.WeightLog) error {
	now := r.now().UTC()
	synced := events.WeightSynced{EventID: uuid.NewString(), UserID: userID, OccurredAt: now}
	for _, w := range rows {
		if w.Source == domain.WeightSourceManual {
			logged := events.WeightLogged{
				EventID:    uuid.NewString(),
				UserID:     userID,
				Date:       domain.FormatDate(w.Date),
				Weight:     w.Weight,
				OccurredAt: now,
			}
			if err := insertOutbox(ctx, tx, userID, "weight_log", events.TypeWeightLogged, logged.EventID, logged); err != nil {
				return err
			}
			continue
		}
		synced.Dates = append(synced.Dates, domain.FormatDate(w.Date))
		synced.Latest = w.Weight
	}
	if len(synced.Dates) == 0 {
		return nil
	}
	return insertOutbox(ctx, tx, userID, "weight_log", events.TypeWeightSynced, synced.EventID, synced)
}

// CountWeights counts logs with from <= date <= to.
func (r *Repository) CountWeights(ctx context.Context, userID string, from, to time.Time) (int, error) {
	return r.countInRange(ctx, "weight_logs", userID, from, to)
}

// CountPhotos counts progress photo entries with from <= date <= to.
func (r *Repository) CountPhotos(ctx context.Context, userID string, from, to time.Time) (int, error) {
	return r.countInRange(ctx, "progress_photos", userID, from, to)
}

func (r *Repository) countInRange(ctx context.Context, table, userID string, from, to time.Time) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE user_id=$1 AND date >= $2 AND date <= $3`, table)
	var count int
	err := r.withUser(ctx, userID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query, userID, from, to).Scan(&count)
	})
	return count, err
}

// ListWeights returns every log for the user, newest first.
func (r *Repository) ListWeights(ctx context.Context, userID string) ([]domain.WeightLog, error) {
	const query = `SELECT user_id, date, weight, source FROM weight_logs WHERE user_id=$1 ORDER BY date DESC`

	var results []domain.WeightLog
	err := r.withUser(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, userID)
		if err != nil {
			return err
		}
		results, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.WeightLog, error) {
			var (
				w      domain.WeightLog
				source string
			)
			err := row.Scan(&w.UserID, &w.Date, &w.Weight, &source)
			w.Date = domain.DayOf(w.Date)
			w.Source = domain.WeightSource(source)
			return w, err
		})
		return err
	})
	return results, err
}

// DeleteUserData removes the user's records and credentials in one transaction.
func (r *Repository) DeleteUserData(ctx context.Context, userID string) error {
	return r.withUser(ctx, userID, func(tx pgx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM daily_activity WHERE user_id=$1`,
			`DELETE FROM weight_logs WHERE user_id=$1`,
			`DELETE FROM progress_photos WHERE user_id=$1`,
			`DELETE FROM integrations WHERE user_id=$1`,
		} {
			if _, err := tx.Exec(ctx, stmt, userID); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertOutbox(ctx context.Context, tx pgx.Tx, userID, aggregateType, eventType, eventID string, payload any) error {
	route, ok := events.Routes[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		userID,
		aggregateType,
		userID,
		eventType,
		route.Topic,
		route.SchemaSubject,
		userID,
		body,
		fmt.Sprintf("%s:%s", eventID, eventType),
	)
	return err
}

func groupByUser[T any](rows []T, userOf func(T) string) ([]string, map[string][]T) {
	var order []string
	groups := make(map[string][]T)
	for _, row := range rows {
		id := userOf(row)
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], row)
	}
	return order, groups
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
