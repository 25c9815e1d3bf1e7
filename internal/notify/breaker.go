package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/portfolio/backend/internal/metrics"
	"github.com/portfolio/backend/internal/model"
)

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// Timeout is how long the breaker stays open before probing again.
	Timeout     time.Duration
	MaxRequests uint32
	Interval    time.Duration
}

// DefaultBreakerConfig returns the settings used by the server.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Timeout: time.Minute, MaxRequests: 1, Interval: 0}
}

// Breaker wraps a Notifier in a circuit breaker and records its failures.
type Breaker struct {
	name string
	next Notifier
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// NewBreaker wraps next. name labels metrics and log lines.
func NewBreaker(name string, next Notifier, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A missing destination is a configuration state, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotConfigured)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.NotifyBreakerState.WithLabelValues(name).Set(float64(to))
			slog.Warn("notifier breaker state changed", "notifier", name, "from", from.String(), "to", to.String())
		},
	}
	metrics.NotifyBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	return &Breaker{name: name, next: next, cb: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

var _ Notifier = (*Breaker)(nil)

func (b *Breaker) Notify(ctx context.Context, rec *model.SubmissionRecord) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Notify(ctx, rec)
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotConfigured) {
		metrics.NotifyFailures.WithLabelValues(b.name).Inc()
	}
	return fmt.Errorf("%s notifier: %w", b.name, err)
}

// State reports the breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
