package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenBucket_AcquireRespectsBurst(t *testing.T) {
	b := New(1, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, b.Acquire(ctx))
	require.NoError(t, b.Acquire(ctx))
}

func TestTokenBucket_AcquireCancellation(t *testing.T) {
	b := New(0.1, 1)
	require.NoError(t, b.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := b.Acquire(ctx)
	require.Error(t, err)
}

func TestTokenBucket_DrainUntilBlocksUntilDeadline(t *testing.T) {
	b := New(100, 5)
	require.NoError(t, b.Acquire(context.Background()))

	deadline := time.Now().Add(60 * time.Millisecond)
	b.DrainUntil(deadline, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Acquire(ctx)
	require.Error(t, err, "acquire should still be blocked while the drain deadline hasn't elapsed")

	time.Sleep(80 * time.Millisecond)
	require.NoError(t, b.Acquire(context.Background()))
}

func TestTokenBucket_WaitsCounter(t *testing.T) {
	b := New(0.01, 1)
	require.NoError(t, b.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_ = b.Acquire(ctx)

	require.GreaterOrEqual(t, b.Waits(), uint64(1))
}
