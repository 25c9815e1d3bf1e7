package notify_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/portfolio/backend/internal/metrics"
	"github.com/portfolio/backend/internal/model"
	"github.com/portfolio/backend/internal/notify"
	"github.com/portfolio/backend/internal/notify/mock"
)

func TestBreaker_PassesThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mock.NewMockNotifier(ctrl)
	next.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)

	b := notify.NewBreaker("mail", next, notify.DefaultBreakerConfig())
	require.NoError(t, b.Notify(context.Background(), &model.SubmissionRecord{ID: "1"}))
	require.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mock.NewMockNotifier(ctrl)
	boom := errors.New("relay down")
	next.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(boom).Times(3)

	b := notify.NewBreaker("mail", next, notify.BreakerConfig{FailureThreshold: 3, Timeout: time.Hour})
	rec := &model.SubmissionRecord{ID: "1"}
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Notify(context.Background(), rec), boom)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	// Open breaker short-circuits without calling the wrapped notifier.
	err := b.Notify(context.Background(), rec)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestMulti_JoinsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	ok := mock.NewMockNotifier(ctrl)
	failing := mock.NewMockNotifier(ctrl)
	boom := errors.New("kafka down")

	rec := &model.SubmissionRecord{ID: "1"}
	failing.EXPECT().Notify(gomock.Any(), rec).Return(boom)
	ok.EXPECT().Notify(gomock.Any(), rec).Return(nil)

	err := notify.Multi{failing, ok}.Notify(context.Background(), rec)
	require.ErrorIs(t, err, boom)
}

func TestMulti_Empty(t *testing.T) {
	require.NoError(t, notify.Multi(nil).Notify(context.Background(), &model.SubmissionRecord{}))
}

func TestBreaker_NotConfiguredDoesNotTrip(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mock.NewMockNotifier(ctrl)
	next.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(notify.ErrNotConfigured).Times(5)

	failures := metrics.NotifyFailures.WithLabelValues("mail-unconfigured")
	before := testutil.ToFloat64(failures)

	b := notify.NewBreaker("mail-unconfigured", next, notify.BreakerConfig{FailureThreshold: 2, Timeout: time.Hour})
	for i := 0; i < 5; i++ {
		require.ErrorIs(t, b.Notify(context.Background(), &model.SubmissionRecord{ID: "1"}), notify.ErrNotConfigured)
	}
	require.Equal(t, gobreaker.StateClosed, b.State())
	require.Equal(t, before, testutil.ToFloat64(failures), "missing destination must not count as a failure")
}

func TestBreaker_FailuresAreCounted(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mock.NewMockNotifier(ctrl)
	next.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("relay down"))

	failures := metrics.NotifyFailures.WithLabelValues("mail-counted")
	before := testutil.ToFloat64(failures)

	b := notify.NewBreaker("mail-counted", next, notify.DefaultBreakerConfig())
	require.Error(t, b.Notify(context.Background(), &model.SubmissionRecord{ID: "1"}))
	require.Equal(t, before+1, testutil.ToFloat64(failures))
}

func TestMulti_IgnoresUnconfiguredSinks(t *testing.T) {
	ctrl := gomock.NewController(t)
	unconfigured := mock.NewMockNotifier(ctrl)
	ok := mock.NewMockNotifier(ctrl)
	rec := &model.SubmissionRecord{ID: "1"}
	unconfigured.EXPECT().Notify(gomock.Any(), rec).Return(notify.ErrNotConfigured)
	ok.EXPECT().Notify(gomock.Any(), rec).Return(nil)

	require.NoError(t, notify.Multi{unconfigured, ok}.Notify(context.Background(), rec))
}

func TestMulti_AllUnconfigured(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mock.NewMockNotifier(ctrl)
	second := mock.NewMockNotifier(ctrl)
	first.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(notify.ErrNotConfigured)
	second.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(fmt.Errorf("kafka notifier: %w", notify.ErrNotConfigured))

	err := notify.Multi{first, second}.Notify(context.Background(), &model.SubmissionRecord{ID: "1"})
	require.ErrorIs(t, err, notify.ErrNotConfigured)
}

func TestMulti_RealFailureNotMaskedByUnconfigured(t *testing.T) {
	ctrl := gomock.NewController(t)
	unconfigured := mock.NewMockNotifier(ctrl)
	failing := mock.NewMockNotifier(ctrl)
	boom := errors.New("kafka down")
	unconfigured.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(notify.ErrNotConfigured)
	failing.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(boom)

	err := notify.Multi{unconfigured, failing}.Notify(context.Background(), &model.SubmissionRecord{ID: "1"})
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, notify.ErrNotConfigured)
}
