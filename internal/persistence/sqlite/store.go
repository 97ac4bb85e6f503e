// Package sqlite implements the health record stores on an embedded SQLite
// database for local runs and the operator CLI.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"example.com/healthsync/db"
	"example.com/healthsync/internal/domain"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is a single-file implementation of domain.Repository.
type Store struct {
	db *sql.DB
}

var _ domain.Repository = (*Store)(nil)

// Open creates the database file if needed and applies the schema.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers; one connection also keeps :memory: databases shared.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(db.SQLiteSchema()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: conn}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetCredential(ctx context.Context, userID, provider string) (*domain.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, provider, access_token, refresh_token, expires_at, updated_at
		FROM integrations WHERE user_id = ? AND provider = ?`, userID, provider)

	var (
		cred                 domain.Credential
		refresh              sql.NullString
		expiresAt, updatedAt int64
	)
	if err := row.Scan(&cred.UserID, &cred.Provider, &cred.AccessToken, &refresh, &expiresAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cred.RefreshToken = refresh.String
	cred.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	cred.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &cred, nil
}

func (s *Store) UpsertCredential(ctx context.Context, cred domain.Credential) error {
	updatedAt := cred.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	var refresh sql.NullString
	if cred.RefreshToken != "" {
		refresh = sql.NullString{String: cred.RefreshToken, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO integrations (user_id, provider, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = COALESCE(excluded.refresh_token, integrations.refresh_token),
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		cred.UserID, cred.Provider, cred.AccessToken, refresh, cred.ExpiresAt.UnixMilli(), updatedAt.UnixMilli())
	return err
}

func (s *Store) ListCredentialUsers(ctx context.Context, provider string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM integrations WHERE provider = ? ORDER BY user_id`, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (s *Store) UpsertActivities(ctx context.Context, rows []domain.DailyActivity) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO daily_activity (user_id, date, steps, calories, active_minutes, heart_minutes)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, date) DO UPDATE SET
				steps = excluded.steps,
				calories = excluded.calories,
				active_minutes = excluded.active_minutes,
				heart_minutes = excluded.heart_minutes`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range rows {
			if _, err := stmt.ExecContext(ctx, a.UserID, domain.FormatDate(a.Date), a.Steps, a.Calories, a.ActiveMinutes, a.HeartMinutes); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListActivities(ctx context.Context, userID string, from, to time.Time) ([]domain.DailyActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, date, steps, calories, active_minutes, heart_minutes
		FROM daily_activity WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date`, userID, domain.FormatDate(from), domain.FormatDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.DailyActivity
	for rows.Next() {
		var (
			a    domain.DailyActivity
			date string
		)
		if err := rows.Scan(&a.UserID, &date, &a.Steps, &a.Calories, &a.ActiveMinutes, &a.HeartMinutes); err != nil {
			return nil, err
		}
		if a.Date, err = domain.ParseDate(date); err != nil {
			return nil, fmt.Errorf("failed to parse date %q: %w", date, err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

func (s *Store) UpsertWeights(ctx context.Context, rows []domain.WeightLog) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO weight_logs (user_id, date, weight, source)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, date) DO UPDATE SET
				weight = excluded.weight,
				source = excluded.source`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, w := range rows {
			if _, err := stmt.ExecContext(ctx, w.UserID, domain.FormatDate(w.Date), w.Weight, string(w.Source)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) CountWeights(ctx context.Context, userID string, from, to time.Time) (int, error) {
	return s.countInRange(ctx, `SELECT COUNT(*) FROM weight_logs WHERE user_id = ? AND date >= ? AND date <= ?`, userID, from, to)
}

func (s *Store) CountPhotos(ctx context.Context, userID string, from, to time.Time) (int, error) {
	return s.countInRange(ctx, `SELECT COUNT(*) FROM progress_photos WHERE user_id = ? AND date >= ? AND date <= ?`, userID, from, to)
}

func (s *Store) countInRange(ctx context.Context, query, userID string, from, to time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, query, userID, domain.FormatDate(from), domain.FormatDate(to)).Scan(&count)
	return count, err
}

func (s *Store) ListWeights(ctx context.Context, userID string) ([]domain.WeightLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, date, weight, source FROM weight_logs
		WHERE user_id = ? ORDER BY date DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.WeightLog
	for rows.Next() {
		var (
			w            domain.WeightLog
			date, source string
		)
		if err := rows.Scan(&w.UserID, &date, &w.Weight, &source); err != nil {
			return nil, err
		}
		if w.Date, err = domain.ParseDate(date); err != nil {
			return nil, fmt.Errorf("failed to parse date %q: %w", date, err)
		}
		w.Source = domain.WeightSource(source)
		results = append(results, w)
	}
	return results, rows.Err()
}

// AddPhoto records a progress photo entry. The image itself is stored elsewhere.
func (s *Store) AddPhoto(ctx context.Context, userID string, date time.Time, storageKey string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO progress_photos (user_id, date, storage_key) VALUES (?, ?, ?)`,
		userID, domain.FormatDate(date), storageKey)
	return err
}

func (s *Store) DeleteUserData(ctx context.Context, userID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"daily_activity", "weight_logs", "progress_photos", "integrations"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = ?", userID); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", table, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
