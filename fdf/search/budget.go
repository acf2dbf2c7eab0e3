package search

import (
	"errors"
	"sync"
	"time"
)

// ErrBudgetExceeded is returned when a confirm call is requested beyond
// the rolling-window cap. No network call is made.
var ErrBudgetExceeded = errors.New("confirm call budget exceeded")

// Budget caps confirm operations to max calls per rolling window.
// Reservations are atomic, so concurrent confirms cannot exceed the cap.
type Budget struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	calls  []time.Time
	now    func() time.Time
}

// NewBudget returns a budget allowing max calls per window.
func NewBudget(max int, window time.Duration) *Budget {
	return &Budget{max: max, window: window, now: time.Now}
}

// Reserve consumes one slot, or fails with ErrBudgetExceeded when the
// window is full.
func (b *Budget) Reserve() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(b.now())
	if len(b.calls) >= b.max {
		return ErrBudgetExceeded
	}
	b.calls = append(b.calls, b.now())
	return nil
}

// Remaining reports how many confirm calls are left in the current
// window.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(b.now())
	return b.max - len(b.calls)
}

func (b *Budget) prune(now time.Time) {
	cutoff := now.Add(-b.window)
	kept := b.calls[:0]
	for _, t := range b.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.calls = kept
}
