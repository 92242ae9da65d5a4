package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	return Options{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		MaxJitter:  time.Millisecond,
	}
}

func TestExecuteReturnsFirstSuccess(t *testing.T) {
	calls := 0
	got, err := Execute(context.Background(), "op", func() (int, error) {
		calls++
		return 42, nil
	}, fastOptions())

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Execute(context.Background(), "op", func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	}, fastOptions())

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestExecuteExhaustsRetries(t *testing.T) {
	calls := 0
	boom := errors.New("still broken")
	_, err := Execute(context.Background(), "op", func() (int, error) {
		calls++
		return 0, boom
	}, fastOptions())

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls, "maxRetries retries after the first attempt")
}

func TestExecuteStopsOnPermanentError(t *testing.T) {
	calls := 0
	notFound := errors.New("resource missing")
	_, err := Execute(context.Background(), "op", func() (int, error) {
		calls++
		return 0, Permanent(notFound)
	}, fastOptions())

	assert.ErrorIs(t, err, notFound)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := fastOptions()
	opts.BaseDelay = time.Hour // would hang without the ctx check
	_, err := Execute(ctx, "op", func() (int, error) {
		return 0, errors.New("transient")
	}, opts)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	opts := Options{BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	assert.Equal(t, 1*time.Second, backoffDelay(opts, 0))
	assert.Equal(t, 2*time.Second, backoffDelay(opts, 1))
	assert.Equal(t, 4*time.Second, backoffDelay(opts, 2))
	assert.Equal(t, 10*time.Second, backoffDelay(opts, 5), "delay must cap at MaxDelay")
}

func TestBackoffDelayJitterStaysBounded(t *testing.T) {
	opts := Options{BaseDelay: time.Second, MaxDelay: 10 * time.Second, MaxJitter: time.Second}

	for i := 0; i < 50; i++ {
		d := backoffDelay(opts, 0)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 2*time.Second)
	}
}

func TestPermanentNilIsNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(nil))
}
