package retrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tempErr struct{ temp bool }

func (e tempErr) Error() string   { return "temp" }
func (e tempErr) Temporary() bool { return e.temp }

func TestRunRetriesTemporaryErrors(t *testing.T) {
	r, err := NewRetrier(2, time.Millisecond, 2*time.Millisecond, 2, 0, ExponentialBackoff, nil)
	require.NoError(t, err)

	calls := 0
	err = r.Run(context.Background(), func() error {
		calls++
		if calls == 1 {
			return tempErr{temp: true}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRunStopsAtMaxAttempts(t *testing.T) {
	r, err := NewRetrier(2, time.Millisecond, time.Millisecond, 1, 0, LinearBackoff, nil)
	require.NoError(t, err)

	calls := 0
	err = r.Run(context.Background(), func() error {
		calls++
		return tempErr{temp: true}
	})
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, ErrMaxAttempts)
	assert.True(t, IsTemporary(err))
}

func TestRunDoesNotRetryPermanentErrors(t *testing.T) {
	r, err := NewRetrier(3, time.Millisecond, time.Millisecond, 1, 0, ExponentialBackoff, nil)
	require.NoError(t, err)

	permanent := errors.New("rejected")
	calls := 0
	err = r.Run(context.Background(), func() error {
		calls++
		return permanent
	})
	assert.Equal(t, 1, calls)
	assert.Same(t, permanent, err)
}

func TestRunCustomTempErrorFunc(t *testing.T) {
	flaky := errors.New("flaky")
	r, err := NewRetrier(3, time.Millisecond, time.Millisecond, 1, 0, FibonacciBackoff, func(err error) bool {
		return errors.Is(err, flaky)
	})
	require.NoError(t, err)

	calls := 0
	_ = r.Run(context.Background(), func() error {
		calls++
		return flaky
	})
	assert.Equal(t, 3, calls)
}

func TestRunHonoursContext(t *testing.T) {
	r, err := NewRetrier(5, time.Second, time.Second, 1, 0, ExponentialBackoff, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err = r.Run(ctx, func() error {
		calls++
		cancel()
		return tempErr{temp: true}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNewRetrierValidation(t *testing.T) {
	_, err := NewRetrier(0, time.Millisecond, time.Millisecond, 1, 0, ExponentialBackoff, nil)
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

	_, err = NewRetrier(1, 0, time.Millisecond, 1, 0, ExponentialBackoff, nil)
	assert.ErrorIs(t, err, ErrInvalidBaseDelay)

	_, err = NewRetrier(1, time.Millisecond, time.Millisecond, 0.5, 0, ExponentialBackoff, nil)
	assert.ErrorIs(t, err, ErrInvalidFactor)

	_, err = NewRetrier(1, time.Millisecond, time.Millisecond, 1, 2, ExponentialBackoff, nil)
	assert.ErrorIs(t, err, ErrInvalidJitter)
}

func TestFibonacciDelayCapped(t *testing.T) {
	r, err := NewRetrier(10, 10*time.Millisecond, 50*time.Millisecond, 1, 0, FibonacciBackoff, nil)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Millisecond, r.calculateDelay(0))
	assert.Equal(t, 10*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 20*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 50*time.Millisecond, r.calculateDelay(8))
}

func TestLinearDelay(t *testing.T) {
	r, err := NewRetrier(5, 10*time.Millisecond, 25*time.Millisecond, 1, 0, LinearBackoff, nil)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Millisecond, r.calculateDelay(0))
	assert.Equal(t, 20*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 25*time.Millisecond, r.calculateDelay(2))
}

func TestParseBackoffStrategy(t *testing.T) {
	tests := []struct {
		name string
		want BackoffStrategy
	}{
		{"", ExponentialBackoff},
		{"exponential", ExponentialBackoff},
		{"linear", LinearBackoff},
		{"fibonacci", FibonacciBackoff},
	}
	for _, tt := range tests {
		got, err := ParseBackoffStrategy(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		if tt.name != "" {
			assert.Equal(t, tt.name, got.String())
		}
	}

	_, err := ParseBackoffStrategy("random")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
