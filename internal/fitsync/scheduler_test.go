package fitsync

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
)

func TestSchedulerRunOnceCountsOutcomes(t *testing.T) {
	store := newFakeStore()
	for _, id := range []string{"a", "b", "c", "d"} {
		store.creds[id] = &domain.Credential{UserID: id, Provider: domain.ProviderGoogleFit}
	}
	runner := &fakeRunner{fail: map[string]error{"c": domain.ErrReauthRequired}}

	scheduler := NewScheduler(runner, store, SchedulerConfig{Concurrency: 2}, log.New(io.Discard))
	summary, err := scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Users: 4, Succeeded: 3, Failed: 1}, summary)
	require.ElementsMatch(t, []string{"a", "b", "c", "d"}, runner.seen())
	require.LessOrEqual(t, runner.maxActive.Load(), int32(2))
}

func TestSchedulerRunOnceAppliesTimeout(t *testing.T) {
	store := newFakeStore()
	store.creds["slow"] = &domain.Credential{UserID: "slow", Provider: domain.ProviderGoogleFit}
	runner := &fakeRunner{block: true}

	scheduler := NewScheduler(runner, store, SchedulerConfig{Concurrency: 1, SyncTimeout: 20 * time.Millisecond}, log.New(io.Discard))
	summary, err := scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
}

func TestSchedulerRunOnceListError(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("db down")

	_, err := NewScheduler(&fakeRunner{}, store, SchedulerConfig{}, nil).RunOnce(context.Background())
	require.ErrorContains(t, err, "db down")
}

type fakeRunner struct {
	mu        sync.Mutex
	users     []string
	fail      map[string]error
	block     bool
	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeRunner) Sync(ctx context.Context, userID string) (Result, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		current := f.maxActive.Load()
		if n <= current || f.maxActive.CompareAndSwap(current, n) {
			break
		}
	}

	f.mu.Lock()
	f.users = append(f.users, userID)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}
	time.Sleep(5 * time.Millisecond)
	if err := f.fail[userID]; err != nil {
		return Result{}, err
	}
	return Result{ActivityCount: 1}, nil
}

func (f *fakeRunner) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.users...)
}
