// Package quota limits how many contact submissions a single originator can make
// within a fixed window.
package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/portfolio/backend/internal/metrics"
)

const (
	DefaultLimit  = 5
	DefaultWindow = time.Hour
)

// Window is the counter state stored for one originator key.
type Window struct {
	Count     int       `json:"count"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the window has elapsed at now.
func (w Window) Expired(now time.Time) bool {
	return !now.Before(w.ExpiresAt)
}

// UpdateFunc computes the next window from the current one. found is false when
// no window is stored for the key. When allowed is false the store must leave
// the current window untouched.
type UpdateFunc func(current Window, found bool) (next Window, allowed bool)

// CounterStore holds per-key windows. Update must apply fn atomically with
// respect to other Update calls for the same key.
type CounterStore interface {
	Update(ctx context.Context, key string, fn UpdateFunc) (Window, bool, error)
}

// Config configures a Tracker.
type Config struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of CheckAndConsume.
type Decision struct {
	Allowed bool
	Count   int
	Limit   int
	ResetAt time.Time
}

// RetryAfter is how long the caller should wait before the window resets.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Tracker enforces a fixed-window submission quota per key.
type Tracker struct {
	store  CounterStore
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewTracker creates a Tracker over store. Zero config values take the defaults.
func NewTracker(store CounterStore, cfg Config) *Tracker {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Tracker{
		store:  store,
		limit:  cfg.Limit,
		window: cfg.Window,
		now:    time.Now,
	}
}

// CheckAndConsume counts one attempt against key. A fresh or expired window
// starts at 1; a live window below the limit is incremented; a full window is
// denied without being incremented, so denied attempts never extend a lockout.
//
// If the store fails the attempt is allowed and the failure logged.
func (t *Tracker) CheckAndConsume(ctx context.Context, key string) Decision {
	now := t.now()

	w, allowed, err := t.store.Update(ctx, key, func(cur Window, found bool) (Window, bool) {
		if !found || cur.Expired(now) {
			return Window{Count: 1, ExpiresAt: now.Add(t.window)}, true
		}
		if cur.Count < t.limit {
			cur.Count++
			return cur, true
		}
		return cur, false
	})
	if err != nil {
		metrics.QuotaStoreErrors.Inc()
		slog.WarnContext(ctx, "quota store unavailable, failing open",
			"key", key,
			"error", err,
		)
		return Decision{Allowed: true, Limit: t.limit}
	}

	return Decision{
		Allowed: allowed,
		Count:   w.Count,
		Limit:   t.limit,
		ResetAt: w.ExpiresAt,
	}
}
