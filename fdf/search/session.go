package search

import (
	"time"

	"github.com/google/uuid"
)

// Session scopes a confirm budget to one logical caller, typically a UI
// session or the process itself.
type Session struct {
	ID      uuid.UUID
	Budget  *Budget
	Started time.Time
}

// NewSession returns a session with a fresh budget of maxConfirm calls
// per window.
func NewSession(maxConfirm int, window time.Duration) *Session {
	return &Session{
		ID:      uuid.New(),
		Budget:  NewBudget(maxConfirm, window),
		Started: time.Now(),
	}
}
