// Package reconnect implements the exponential-backoff-with-jitter retry
// primitive shared by the channel runtime's physical reconnect and the store
// writer's publish-reconnect path: one algorithm, two consumers.
package reconnect

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrMaxAttemptsExceeded is returned by Run when Policy.MaxAttempts (if
// nonzero) has been reached without a successful attempt.
var ErrMaxAttemptsExceeded = errors.New("reconnect: max attempts exceeded")

// Policy configures the backoff schedule.
type Policy struct {
	// MaxAttempts bounds retries. Zero means retry forever.
	MaxAttempts int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// Multiplier grows the delay each attempt (delay_n = min(initial*mult^n, max)).
	Multiplier float64
	// Jitter is the fractional jitter applied uniformly, e.g. 0.25 for +/-25%.
	Jitter float64
}

// DefaultPolicy matches the nominal 1s, 2s, 4s, ... sequence named in the
// channel runtime's Recovering state, capped at 60s with +/-25% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  0,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2,
		Jitter:       0.25,
	}
}

// Delay computes the jittered delay for retry attempt n (0-based, the delay
// taken before that attempt), without mutating any state. Useful for tests
// that assert the reconnect delay sequence is non-decreasing and bounded.
func (p Policy) Delay(n int, rng *rand.Rand) time.Duration {
	nominal := float64(p.InitialDelay)
	for i := 0; i < n; i++ {
		nominal *= p.Multiplier
		if nominal > float64(p.MaxDelay) {
			nominal = float64(p.MaxDelay)
			break
		}
	}
	if nominal > float64(p.MaxDelay) {
		nominal = float64(p.MaxDelay)
	}
	if p.Jitter <= 0 {
		return time.Duration(nominal)
	}
	spread := nominal * p.Jitter
	jittered := nominal + (rng.Float64()*2-1)*spread
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}

// Helper runs an attempt function under a Policy until it succeeds, the
// context is cancelled, or MaxAttempts is exceeded.
type Helper struct {
	policy Policy
	rng    *rand.Rand
	sleep  func(context.Context, time.Duration) error
}

// New creates a Helper for the given policy. rngSeed lets tests make the
// jitter sequence deterministic; pass 0 for a time-seeded default.
func New(policy Policy, rngSeed int64) *Helper {
	source := rand.NewSource(rngSeed)
	if rngSeed == 0 {
		source = rand.NewSource(time.Now().UnixNano())
	}
	return &Helper{
		policy: policy,
		rng:    rand.New(source),
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run calls attempt repeatedly with exponentially-backed-off, jittered delay
// between calls, until attempt returns nil, ctx is done, or MaxAttempts (if
// nonzero) is exceeded. onRetry, if non-nil, is invoked before each sleep
// with the attempt index and the error that triggered the retry.
func (h *Helper) Run(ctx context.Context, attempt func(ctx context.Context) error, onRetry func(n int, delay time.Duration, err error)) error {
	n := 0
	for {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if h.policy.MaxAttempts > 0 && n >= h.policy.MaxAttempts {
			return ErrMaxAttemptsExceeded
		}
		delay := h.policy.Delay(n, h.rng)
		if onRetry != nil {
			onRetry(n, delay, err)
		}
		if sleepErr := h.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		n++
	}
}
