package fetch

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum interval between granted slots. Overlapping
// callers are serialized into a strict FIFO of issuance times: each Wait
// reserves the next slot under the lock, so no caller is granted sooner
// than interval after the previously granted slot.
//
// One Limiter per provider; limiters are never shared across providers.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewLimiter returns a limiter with the given minimum interval between
// grants. A non-positive interval disables pacing.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Wait blocks until the caller's reserved slot arrives or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := time.Now()
	grant := l.next
	if grant.Before(now) {
		grant = now
	}
	l.next = grant.Add(l.interval)
	l.mu.Unlock()

	delay := time.Until(grant)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		l.release(grant)
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// release returns an abandoned slot so the next caller is not delayed by
// a grant nobody used. Only the most recent reservation can be rolled
// back; once a later caller has reserved behind it, the slot stays.
func (l *Limiter) release(grant time.Time) {
	l.mu.Lock()
	if l.next.Equal(grant.Add(l.interval)) {
		l.next = grant
	}
	l.mu.Unlock()
}
