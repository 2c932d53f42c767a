package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartup_CriticalFailureAbortsImmediately(t *testing.T) {
	r := New(nil)
	var ranSecond bool

	err := r.Startup(context.Background(), []Dependency{
		{Name: "encryption_key", Critical: true, Start: func(ctx context.Context) error {
			return errors.New("invalid key")
		}},
		{Name: "never_reached", Critical: false, Start: func(ctx context.Context) error {
			ranSecond = true
			return nil
		}},
	})

	require.Error(t, err)
	require.False(t, ranSecond, "startup must abort before running subsequent dependencies")
}

func TestStartup_CriticalFailureIsDistinguishableFromNonCritical(t *testing.T) {
	r := New(nil)

	err := r.Startup(context.Background(), []Dependency{
		{Name: "encryption_key", Critical: true, Start: func(ctx context.Context) error {
			return errors.New("invalid key")
		}},
	})

	var critErr *CriticalError
	require.ErrorAs(t, err, &critErr, "a critical failure must be identifiable via errors.As, not just a bare non-nil error")
	require.Equal(t, "encryption_key", critErr.Dependency)
}

func TestStartup_NonCriticalFailureIsNotACriticalError(t *testing.T) {
	r := New(nil)

	err := r.Startup(context.Background(), []Dependency{
		{Name: "ratings_ingest", Critical: false, Start: func(ctx context.Context) error {
			return errors.New("ratings_dataset_url not configured")
		}},
	})

	require.Error(t, err)
	var critErr *CriticalError
	require.False(t, errors.As(err, &critErr), "a non-critical degradation must never be mistaken for a critical abort")
}

func TestStartup_NonCriticalFailureDegradesButContinues(t *testing.T) {
	r := New(nil)
	var ranThird bool

	err := r.Startup(context.Background(), []Dependency{
		{Name: "shared_cache", Critical: false, Start: func(ctx context.Context) error {
			return errors.New("unreachable")
		}},
		{Name: "metrics", Critical: false, Start: func(ctx context.Context) error {
			ranThird = true
			return nil
		}},
	})

	require.Error(t, err)
	require.True(t, ranThird)

	degraded := r.Degraded()
	require.True(t, degraded["shared_cache"])
	require.False(t, degraded["metrics"])
}

func TestShutdown_RunsRegisteredStepsAndAggregatesErrors(t *testing.T) {
	r := New(nil)
	var closed []string

	r.RegisterShutdown(func(ctx context.Context) error {
		closed = append(closed, "first")
		return nil
	})
	r.RegisterShutdown(func(ctx context.Context) error {
		closed = append(closed, "second")
		return errors.New("close failed")
	})

	err := r.Shutdown(time.Second)
	require.Error(t, err)
	require.Equal(t, []string{"first", "second"}, closed)
}
