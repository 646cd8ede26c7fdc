package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesUpToMax(t *testing.T) {
	p := Policy{Attempts: 5, Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond}

	require.Equal(t, 10*time.Millisecond, p.Backoff(0))
	require.Equal(t, 20*time.Millisecond, p.Backoff(1))
	require.Equal(t, 40*time.Millisecond, p.Backoff(2))
	require.Equal(t, 50*time.Millisecond, p.Backoff(3))
	require.Equal(t, 50*time.Millisecond, p.Backoff(60))
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	p := Policy{Attempts: 4, Initial: time.Millisecond, Max: 2 * time.Millisecond}

	calls := 0
	var notified []int
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, func(attempt int, _ error, _ time.Duration) {
		notified = append(notified, attempt)
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2}, notified)
}

func TestDo_Exhausted(t *testing.T) {
	p := Policy{Attempts: 3, Initial: time.Millisecond, Max: time.Millisecond}
	cause := errors.New("connection refused")

	calls := 0
	var notified []int
	var waits []time.Duration
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return cause
	}, func(attempt int, err error, wait time.Duration) {
		require.ErrorIs(t, err, cause)
		notified = append(notified, attempt)
		waits = append(waits, wait)
	})

	require.Error(t, err)
	require.ErrorIs(t, err, cause)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2, 3}, notified, "the final failure is reported too")
	require.Equal(t, []time.Duration{time.Millisecond, time.Millisecond, 0}, waits)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	p := Policy{Attempts: 5, Initial: time.Hour, Max: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	err := Do(ctx, p, func(context.Context) error {
		cancel()
		return errors.New("down")
	}, nil)

	require.ErrorIs(t, err, context.Canceled)
}
