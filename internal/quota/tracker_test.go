package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker(store CounterStore, cfg Config) (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	tr := NewTracker(store, cfg)
	tr.now = clock.Now
	return tr, clock
}

func TestNewTracker_Defaults(t *testing.T) {
	tr := NewTracker(NewMemoryStore(0), Config{})
	require.Equal(t, DefaultLimit, tr.limit)
	require.Equal(t, DefaultWindow, tr.window)
}

func TestTracker_AllowsUpToLimitThenDenies(t *testing.T) {
	store := NewMemoryStore(0)
	tr, clock := newTestTracker(store, Config{Limit: 5, Window: time.Hour})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d := tr.CheckAndConsume(ctx, "203.0.113.7")
		require.True(t, d.Allowed, "attempt %d", i)
		require.Equal(t, i, d.Count)
		require.Equal(t, clock.Now().Add(time.Hour), d.ResetAt)
	}

	d := tr.CheckAndConsume(ctx, "203.0.113.7")
	require.False(t, d.Allowed)
	require.Equal(t, 5, d.Count)
	require.Equal(t, time.Hour, d.RetryAfter(clock.Now()))
}

func TestTracker_DenialsDoNotIncrement(t *testing.T) {
	store := NewMemoryStore(0)
	tr, _ := newTestTracker(store, Config{Limit: 2, Window: time.Minute})
	ctx := context.Background()

	tr.CheckAndConsume(ctx, "k")
	tr.CheckAndConsume(ctx, "k")
	for i := 0; i < 10; i++ {
		require.False(t, tr.CheckAndConsume(ctx, "k").Allowed)
	}

	w, found := store.windows["k"]
	require.True(t, found)
	require.Equal(t, 2, w.Count)
}

func TestTracker_WindowResetsAfterExpiry(t *testing.T) {
	store := NewMemoryStore(0)
	tr, clock := newTestTracker(store, Config{Limit: 1, Window: time.Hour})
	ctx := context.Background()

	require.True(t, tr.CheckAndConsume(ctx, "k").Allowed)
	require.False(t, tr.CheckAndConsume(ctx, "k").Allowed)

	clock.Advance(59 * time.Minute)
	require.False(t, tr.CheckAndConsume(ctx, "k").Allowed)

	clock.Advance(time.Minute)
	d := tr.CheckAndConsume(ctx, "k")
	require.True(t, d.Allowed)
	require.Equal(t, 1, d.Count)
}

func TestTracker_KeysAreIndependent(t *testing.T) {
	tr, _ := newTestTracker(NewMemoryStore(0), Config{Limit: 1, Window: time.Hour})
	ctx := context.Background()

	require.True(t, tr.CheckAndConsume(ctx, "a").Allowed)
	require.False(t, tr.CheckAndConsume(ctx, "a").Allowed)
	require.True(t, tr.CheckAndConsume(ctx, "b").Allowed)
}

func TestTracker_ConcurrentSameKey(t *testing.T) {
	tr, _ := newTestTracker(NewMemoryStore(0), Config{Limit: 5, Window: time.Hour})
	ctx := context.Background()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.CheckAndConsume(ctx, "same").Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(5), allowed.Load())
}

type failingStore struct{}

func (failingStore) Update(context.Context, string, UpdateFunc) (Window, bool, error) {
	return Window{}, false, errors.New("cache unreachable")
}

func TestTracker_FailsOpen(t *testing.T) {
	tr, _ := newTestTracker(failingStore{}, Config{Limit: 1, Window: time.Hour})

	for i := 0; i < 3; i++ {
		d := tr.CheckAndConsume(context.Background(), "k")
		require.True(t, d.Allowed)
	}
}

func TestDecision_RetryAfter(t *testing.T) {
	now := time.Now()
	require.Zero(t, Decision{}.RetryAfter(now))
	require.Zero(t, Decision{ResetAt: now.Add(-time.Second)}.RetryAfter(now))
	require.Equal(t, 30*time.Second, Decision{ResetAt: now.Add(30 * time.Second)}.RetryAfter(now))
}

func TestMemoryStore_SweepRemovesExpired(t *testing.T) {
	store := NewMemoryStore(0)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.windows["old"] = Window{Count: 3, ExpiresAt: now.Add(-time.Second)}
	store.windows["live"] = Window{Count: 1, ExpiresAt: now.Add(time.Minute)}

	store.sweep()

	require.Equal(t, 1, store.Len())
	_, ok := store.windows["live"]
	require.True(t, ok)
}

func TestMemoryStore_CloseIsIdempotent(t *testing.T) {
	store := NewMemoryStore(time.Millisecond)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}
