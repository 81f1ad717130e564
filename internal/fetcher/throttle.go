package fetcher

import (
	"context"
	"time"
)

// Throttle enforces a fixed pause after every request. The pause is not
// adaptive and does not back off.
type Throttle struct {
	delay time.Duration

	// sleep replaces the timer when set (tests).
	sleep func(time.Duration)
}

// NewThrottle creates a throttle that waits delay after each request.
func NewThrottle(delay time.Duration) *Throttle {
	return &Throttle{delay: delay}
}

// Wait blocks for the configured delay. It returns early with the
// context error if ctx is cancelled first.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.delay <= 0 {
		return ctx.Err()
	}
	if t.sleep != nil {
		t.sleep(t.delay)
		return ctx.Err()
	}

	timer := time.NewTimer(t.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
