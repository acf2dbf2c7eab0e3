package search

import "github.com/MeguminKami/Flight-Deal-Finder/fdf/deal"

// State tracks a search invocation through its lifecycle.
type State int

const (
	StatePending State = iota
	StateExpanding
	StateFetching
	StateMerging
	StateDone
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExpanding:
		return "expanding"
	case StateFetching:
		return "fetching"
	case StateMerging:
		return "merging"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is the merged outcome of a search. A cancelled or degraded
// search still carries the deals gathered so far.
type Result struct {
	Deals []deal.Deal
	Total int

	// SkippedUnits counts fetch units dropped because of provider
	// errors; Degraded is set when any were skipped.
	SkippedUnits int
	Degraded     bool

	RemainingConfirmCalls int
	State                 State
}

// Page returns the slice of deals at [offset, offset+limit), clamped to
// the available range.
func (r *Result) Page(offset, limit int) []deal.Deal {
	if offset < 0 || offset >= len(r.Deals) || limit <= 0 {
		return nil
	}
	end := offset + limit
	if end > len(r.Deals) {
		end = len(r.Deals)
	}
	return r.Deals[offset:end]
}
