package engine

import (
	"context"
	"sync"
	"time"
)

// defaultCooldown applies when a rate limit response carries no
// Retry-After hint.
const defaultCooldown = 60 * time.Second

// cooldown is the pool-wide rate limit gate. Any worker that sees a
// rate limit response arms it; every worker waits out the shared
// deadline before its next attempt.
type cooldown struct {
	mu    sync.Mutex
	until time.Time
}

// Set arms the gate for hint, or for the default when hint is zero.
// A shorter hint never pulls an armed deadline closer.
func (c *cooldown) Set(hint time.Duration) {
	if hint <= 0 {
		hint = defaultCooldown
	}
	deadline := time.Now().Add(hint)

	c.mu.Lock()
	if deadline.After(c.until) {
		c.until = deadline
	}
	c.mu.Unlock()
}

// Wait blocks until the gate expires or ctx is done. An unarmed or
// expired gate returns immediately.
func (c *cooldown) Wait(ctx context.Context) error {
	c.mu.Lock()
	remaining := time.Until(c.until)
	c.mu.Unlock()

	return sleepContext(ctx, remaining)
}

// sleepContext waits for d unless ctx finishes first. Non-positive
// durations only report the context state.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
