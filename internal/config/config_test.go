package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 45*time.Second, cfg.Sync.Timeout)
	require.Empty(t, cfg.Redis.Addr)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("KAFKA_BROKERS", " k1:9092 , ,k2:9092")
	t.Setenv("SCHEDULER_CONCURRENCY", "8")
	t.Setenv("SYNC_RATE_WINDOW", "30s")
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 8, cfg.Sync.SchedulerConcurrent)
	require.Equal(t, 30*time.Second, cfg.Redis.RateWindow)
	require.Equal(t, 25, cfg.OutboxBatchSize)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GOOGLE_CLIENT_ID=from-dotenv\nJWT_ISSUER=file-issuer\n"), 0o600))
	chdir(t, dir)
	t.Setenv("JWT_ISSUER", "env-issuer")
	os.Unsetenv("GOOGLE_CLIENT_ID")
	t.Cleanup(func() { os.Unsetenv("GOOGLE_CLIENT_ID") })

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.Google.ClientID)
	require.Equal(t, "env-issuer", cfg.JWTIssuer, "process environment wins over .env")
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
