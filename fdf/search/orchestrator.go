// Package search expands a user query into a bounded set of provider
// calls, applies per-operation budgets, and merges the results into a
// deterministic ranked sequence.
package search

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/MeguminKami/Flight-Deal-Finder/fdf/airports"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/deal"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/provider"
)

// Options configures an Orchestrator. Zero values fall back to
// defaults; Tracer may be nil.
type Options struct {
	Explore  provider.ExploreClient
	Confirm  provider.ConfirmClient
	Airports airports.Directory
	Tracer   Tracer
	Logger   zerolog.Logger

	Workers         int
	MaxDestinations int
	DatesPerMonth   int
	MaxDates        int
	MaxResults      int
	Currency        string
}

// Orchestrator drives a search invocation through EXPANDING, FETCHING,
// and MERGING. All state is explicit; there are no process-wide
// singletons.
type Orchestrator struct {
	explore  provider.ExploreClient
	confirm  provider.ConfirmClient
	airports airports.Directory
	tracer   Tracer
	log      zerolog.Logger

	workers         int
	maxDestinations int
	datesPerMonth   int
	maxDates        int
	maxResults      int
	currency        string
}

// NewOrchestrator builds an Orchestrator from opts.
func NewOrchestrator(opts Options) *Orchestrator {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = NopTracer{}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	datesPerMonth := opts.DatesPerMonth
	if datesPerMonth <= 0 {
		datesPerMonth = 3
	}
	maxDates := opts.MaxDates
	if maxDates <= 0 {
		maxDates = 12
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 500
	}
	currency := opts.Currency
	if currency == "" {
		currency = "EUR"
	}
	maxDestinations := opts.MaxDestinations
	if maxDestinations <= 0 {
		maxDestinations = 30
	}
	return &Orchestrator{
		explore:         opts.Explore,
		confirm:         opts.Confirm,
		airports:        opts.Airports,
		tracer:          tracer,
		log:             opts.Logger,
		workers:         workers,
		maxDestinations: maxDestinations,
		datesPerMonth:   datesPerMonth,
		maxDates:        maxDates,
		maxResults:      maxResults,
		currency:        currency,
	}
}

// Search runs one explore invocation. Per-unit provider failures are
// recorded and skipped, never aborting the whole search; cancellation
// is cooperative, returning the partial results gathered so far.
func (o *Orchestrator) Search(ctx context.Context, sess *Session, req Request) (*Result, error) {
	ctx, finish := o.tracer.StartSpan(ctx, "search", map[string]any{
		"session": sess.ID.String(),
		"origin":  req.Origin,
		"scope":   req.Scope.String(),
	})
	defer finish(nil)

	state := StatePending
	advance := func(next State) {
		state = next
		o.tracer.Event(ctx, "state", map[string]any{"state": next.String()})
	}

	advance(StateExpanding)
	dests := expandScope(o.airports, req, o.maxDestinations)
	dates := sampleDates(req.DateStart, req.DateEnd, o.datesPerMonth, o.maxDates)
	o.tracer.Event(ctx, "expanded", map[string]any{
		"destinations": len(dests),
		"dates":        len(dates),
	})

	var (
		mu        sync.Mutex
		skipped   int
		cancelled bool
		batches   = make([][]deal.Deal, len(dates))
	)

	if len(dests) > 0 && len(dates) > 0 {
		advance(StateFetching)
		workers := pool.New().WithMaxGoroutines(o.workers)
		for i, date := range dates {
			// Cooperative cancel: in-flight calls complete, nothing new is
			// dispatched.
			if ctx.Err() != nil {
				cancelled = true
				break
			}

			i, date := i, date
			workers.Go(func() {
				deals, err := o.explore.Explore(ctx, provider.ExploreQuery{
					Origin:     req.Origin,
					DepartDate: date,
					MinDays:    req.MinDays,
					MaxDays:    req.MaxDays,
					Currency:   o.currency,
				})
				if err != nil {
					mu.Lock()
					skipped++
					mu.Unlock()
					o.log.Warn().Err(err).Str("date", date.Format(deal.DateLayout)).Msg("explore unit failed, skipping")
					return
				}
				batches[i] = deals
			})
		}
		workers.Wait()
	}

	// Partial results from a cancelled run still pass through merging;
	// cancellation only changes the terminal state.
	advance(StateMerging)
	var collected []deal.Deal
	for _, batch := range batches {
		collected = append(collected, batch...)
	}
	if cancelled {
		advance(StateCancelled)
	} else {
		advance(StateDone)
	}
	return o.merge(collected, req, dests, sess, state, skipped), nil
}

// Confirm prices one exact itinerary, answering from the cache when
// possible and reserving a budget slot before any network call. A full
// budget fails fast with ErrBudgetExceeded and zero network traffic.
func (o *Orchestrator) Confirm(ctx context.Context, sess *Session, q provider.ConfirmQuery) (*deal.Deal, error) {
	if o.confirm == nil {
		return nil, errors.New("no confirm provider configured")
	}
	if q.Currency == "" {
		q.Currency = o.currency
	}

	ctx, finish := o.tracer.StartSpan(ctx, "confirm", map[string]any{
		"session":     sess.ID.String(),
		"origin":      q.Origin,
		"destination": q.Destination,
	})

	if deals, ok := o.confirm.Cached(ctx, q); ok {
		finish(nil)
		return best(deals), nil
	}

	if err := sess.Budget.Reserve(); err != nil {
		finish(err)
		return nil, err
	}

	deals, err := o.confirm.Confirm(ctx, q)
	finish(err)
	if err != nil {
		return nil, err
	}
	return best(deals), nil
}

// merge applies the MERGING stage: scope and window filters, trip
// length filter, dedupe keeping the lowest price, deterministic sort,
// and the result cap.
func (o *Orchestrator) merge(collected []deal.Deal, req Request, dests []string, sess *Session, state State, skipped int) *Result {
	allowed := make(map[string]struct{}, len(dests))
	for _, code := range dests {
		allowed[code] = struct{}{}
	}

	filtered := collected[:0:0]
	for _, d := range collected {
		if _, ok := allowed[d.Destination]; !ok {
			continue
		}
		if d.DepartDate.Before(midnight(req.DateStart)) || d.DepartDate.After(midnight(req.DateEnd)) {
			continue
		}
		if d.ReturnDate.Before(d.DepartDate) {
			continue
		}
		filtered = append(filtered, d)
	}

	filtered = deal.FilterTripLength(filtered, req.MinDays, req.MaxDays)
	filtered = deal.Dedupe(filtered)
	deal.Sort(filtered)
	if len(filtered) > o.maxResults {
		filtered = filtered[:o.maxResults]
	}

	return &Result{
		Deals:                 filtered,
		Total:                 len(filtered),
		SkippedUnits:          skipped,
		Degraded:              skipped > 0,
		RemainingConfirmCalls: sess.Budget.Remaining(),
		State:                 state,
	}
}

func best(deals []deal.Deal) *deal.Deal {
	if len(deals) == 0 {
		return nil
	}
	sorted := make([]deal.Deal, len(deals))
	copy(sorted, deals)
	deal.Sort(sorted)
	return &sorted[0]
}
