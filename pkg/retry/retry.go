// pkg/retry/retry.go
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy is an explicit retry policy applied by the caller around an
// operation. Keeping the policy a plain value (rather than wrapping the
// operation behind a decorator) makes the retry behavior visible at the call
// site and independently testable.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Delay is the wait before the second attempt.
	Delay time.Duration

	// Multiplier grows the delay between attempts. Values of 1 or below
	// keep the delay fixed.
	Multiplier float64

	// MaxDelay caps the grown delay. Zero means uncapped.
	MaxDelay time.Duration
}

// Fixed returns a policy with a constant inter-attempt delay.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: delay}
}

// Exponential returns a policy whose delay doubles per attempt up to max.
func Exponential(attempts int, base, max time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: base, Multiplier: 2, MaxDelay: max}
}

// Do runs op until it succeeds, the attempt budget is exhausted, or the
// context is cancelled while waiting between attempts. The last error is
// returned when all attempts fail.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.Delay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = p.next(delay)
	}

	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}

// next computes the delay for the following attempt.
func (p Policy) next(current time.Duration) time.Duration {
	if p.Multiplier <= 1 {
		return current
	}

	grown := time.Duration(float64(current) * p.Multiplier)
	if p.MaxDelay > 0 && grown > p.MaxDelay {
		return p.MaxDelay
	}
	return grown
}
