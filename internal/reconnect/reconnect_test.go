package reconnect

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_DelaySequenceNonDecreasingAndBounded(t *testing.T) {
	p := Policy{
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       0,
	}
	rng := rand.New(rand.NewSource(1))
	prev := time.Duration(0)
	for n := 0; n < 8; n++ {
		d := p.Delay(n, rng)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, p.MaxDelay)
		prev = d
	}
}

func TestPolicy_JitterWithinBounds(t *testing.T) {
	p := Policy{
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2,
		Jitter:       0.25,
	}
	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 5; n++ {
		noJitter := p
		noJitter.Jitter = 0
		nominal := noJitter.Delay(n, rand.New(rand.NewSource(0)))
		d := p.Delay(n, rng)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, p.MaxDelay+p.MaxDelay/4)
		assert.InDelta(t, float64(nominal), float64(d), float64(nominal)*p.Jitter)
	}
}

func TestHelper_RunSucceedsEventually(t *testing.T) {
	h := New(Policy{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}, 1)
	attempts := 0
	err := h.Run(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestHelper_RunExceedsMaxAttempts(t *testing.T) {
	h := New(Policy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, MaxAttempts: 2}, 1)
	attempts := 0
	err := h.Run(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("always fails")
	}, nil)
	assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestHelper_RunRespectsCancellation(t *testing.T) {
	h := New(Policy{InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.Run(ctx, func(ctx context.Context) error {
		return errors.New("fails")
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
