package main

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/config"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/persistence/sqlite"
)

func newTestApp(t *testing.T) (*appContext, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	app := &appContext{
		Ctx:    context.Background(),
		Config: config.Config{JWTSecret: "cli-secret", JWTIssuer: "healthsync"},
		Logger: log.New(io.Discard),
		Out:    &out,
	}
	closeStore, err := openStore(app, sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(closeStore)
	return app, &out
}

func TestIsPostgresURL(t *testing.T) {
	require.True(t, isPostgresURL("postgres://u@localhost/db"))
	require.True(t, isPostgresURL("postgresql://u@localhost/db"))
	require.False(t, isPostgresURL("/var/lib/healthsync/health.db"))
}

func TestOpenStoreUsesSQLiteForPaths(t *testing.T) {
	app, out := newTestApp(t)
	require.Nil(t, app.Pool)
	require.IsType(t, &sqlite.Store{}, app.Store)

	require.NoError(t, (&MigrateCmd{}).Run(app))
	require.Contains(t, out.String(), "sqlite schema is up to date")
}

func TestLogWeightThenScore(t *testing.T) {
	app, out := newTestApp(t)
	today := domain.FormatDate(time.Now())

	require.NoError(t, (&LogWeightCmd{User: "user-1", Weight: 72.4, Date: today}).Run(app))
	require.Contains(t, out.String(), "logged 72.4 kg for user-1 on "+today)

	out.Reset()
	require.NoError(t, (&ScoreCmd{User: "user-1"}).Run(app))
	require.Contains(t, out.String(), "score 5 (activity 0, consistency 5, trend 0)")
	require.Contains(t, out.String(), "weight logs 1")
}

func TestLogWeightRejectsInvalid(t *testing.T) {
	app, _ := newTestApp(t)
	err := (&LogWeightCmd{User: "user-1", Weight: 0}).Run(app)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSyncWithoutCredential(t *testing.T) {
	app, _ := newTestApp(t)
	err := (&SyncCmd{User: "user-1", Timeout: time.Second}).Run(app)
	require.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestTokenCommandIssuesParsableToken(t *testing.T) {
	app, out := newTestApp(t)
	require.NoError(t, (&TokenCmd{User: "user-1", Scopes: "health:read, fit:sync", TTL: time.Hour}).Run(app))

	claims, err := auth.Parse(string(bytes.TrimSpace(out.Bytes())), auth.Config{Secret: "cli-secret", Issuer: "healthsync"})
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.True(t, claims.HasScope(auth.ScopeFitSync))
	require.False(t, claims.HasScope(auth.ScopeHealthWrite))
}
