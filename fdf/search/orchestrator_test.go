package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeguminKami/Flight-Deal-Finder/fdf/deal"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/provider"
)

type stubExplore struct {
	mu    sync.Mutex
	calls int
	fn    func(q provider.ExploreQuery) ([]deal.Deal, error)
}

func (s *stubExplore) Explore(_ context.Context, q provider.ExploreQuery) ([]deal.Deal, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(q)
}

func (s *stubExplore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubConfirm struct {
	mu     sync.Mutex
	calls  int
	cached map[string][]deal.Deal
	fn     func(q provider.ConfirmQuery) ([]deal.Deal, error)
}

func (s *stubConfirm) Cached(_ context.Context, q provider.ConfirmQuery) ([]deal.Deal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deals, ok := s.cached[q.Origin+q.Destination]
	return deals, ok
}

func (s *stubConfirm) Confirm(_ context.Context, q provider.ConfirmQuery) ([]deal.Deal, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(q)
}

func (s *stubConfirm) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func indicative(dest, depart, ret string, price float64) deal.Deal {
	return deal.Deal{
		Origin:      "LIS",
		Destination: dest,
		DepartDate:  date(depart),
		ReturnDate:  date(ret),
		Price:       decimal.NewFromFloat(price),
		Currency:    "EUR",
		Transfers:   deal.TransfersUnknown,
		Indicative:  true,
		Source:      deal.SourceExplore,
	}
}

func newTestOrchestrator(explore provider.ExploreClient, confirm provider.ConfirmClient) *Orchestrator {
	return NewOrchestrator(Options{
		Explore:       explore,
		Confirm:       confirm,
		Airports:      testDirectory(),
		Logger:        zerolog.Nop(),
		Workers:       2,
		DatesPerMonth: 3,
		MaxDates:      12,
		MaxResults:    100,
		Currency:      "EUR",
	})
}

func spainRequest() Request {
	return Request{
		Origin:     "LIS",
		Scope:      ScopeCountry,
		ScopeValue: "Spain",
		DateStart:  date("2026-03-01"),
		DateEnd:    date("2026-03-31"),
		MinDays:    3,
		MaxDays:    5,
	}
}

func TestSearchSpainScenario(t *testing.T) {
	explore := &stubExplore{fn: func(q provider.ExploreQuery) ([]deal.Deal, error) {
		d := q.DepartDate.Format(deal.DateLayout)
		r := q.DepartDate.AddDate(0, 0, 4).Format(deal.DateLayout)
		return []deal.Deal{
			indicative("MAD", d, r, 80),
			indicative("MAD", d, r, 60), // duplicate route+dates, cheaper
			indicative("BCN", d, r, 95),
			indicative("JFK", d, r, 300),                   // outside scope
			indicative("AGP", d, q.DepartDate.AddDate(0, 0, 9).Format(deal.DateLayout), 40), // trip too long
		}, nil
	}}

	o := newTestOrchestrator(explore, nil)
	sess := NewSession(3, 10*time.Minute)

	res, err := o.Search(context.Background(), sess, spainRequest())
	require.NoError(t, err)

	// One explore call per sampled date, three for a one-month window.
	assert.LessOrEqual(t, explore.callCount(), 3)
	assert.Equal(t, StateDone, res.State)
	assert.False(t, res.Degraded)
	assert.Equal(t, 3, res.RemainingConfirmCalls)

	require.NotEmpty(t, res.Deals)
	for _, d := range res.Deals {
		assert.Contains(t, []string{"MAD", "BCN", "AGP"}, d.Destination)
		days := d.TripLength()
		assert.GreaterOrEqual(t, days, 3)
		assert.LessOrEqual(t, days, 5)
	}

	// Duplicates collapsed to the cheaper fare, results price-sorted.
	for i := 1; i < len(res.Deals); i++ {
		assert.True(t, res.Deals[i-1].Price.LessThanOrEqual(res.Deals[i].Price))
	}
	for _, d := range res.Deals {
		if d.Destination == "MAD" {
			assert.Equal(t, "60.00", d.Price.StringFixed(2))
			break
		}
	}
}

func TestSearchIsolatesUnitFailures(t *testing.T) {
	var n int
	var mu sync.Mutex
	explore := &stubExplore{fn: func(q provider.ExploreQuery) ([]deal.Deal, error) {
		mu.Lock()
		n++
		failing := n == 2
		mu.Unlock()
		if failing {
			return nil, assert.AnError
		}
		d := q.DepartDate.Format(deal.DateLayout)
		r := q.DepartDate.AddDate(0, 0, 4).Format(deal.DateLayout)
		return []deal.Deal{indicative("MAD", d, r, 50)}, nil
	}}

	o := newTestOrchestrator(explore, nil)
	sess := NewSession(3, 10*time.Minute)

	res, err := o.Search(context.Background(), sess, spainRequest())
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.True(t, res.Degraded)
	assert.Equal(t, 1, res.SkippedUnits)
	assert.NotEmpty(t, res.Deals)
}

type stateTracer struct {
	mu     sync.Mutex
	states []string
}

func (r *stateTracer) StartSpan(ctx context.Context, _ string, _ map[string]any) (context.Context, func(error)) {
	return ctx, func(error) {}
}

func (r *stateTracer) Event(_ context.Context, name string, attrs map[string]any) {
	if name != "state" {
		return
	}
	if s, ok := attrs["state"].(string); ok {
		r.mu.Lock()
		r.states = append(r.states, s)
		r.mu.Unlock()
	}
}

func (r *stateTracer) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func TestSearchAdvancesThroughLifecycleStates(t *testing.T) {
	explore := &stubExplore{fn: func(q provider.ExploreQuery) ([]deal.Deal, error) {
		d := q.DepartDate.Format(deal.DateLayout)
		r := q.DepartDate.AddDate(0, 0, 4).Format(deal.DateLayout)
		return []deal.Deal{indicative("MAD", d, r, 50)}, nil
	}}
	tracer := &stateTracer{}

	o := NewOrchestrator(Options{
		Explore:       explore,
		Airports:      testDirectory(),
		Tracer:        tracer,
		Logger:        zerolog.Nop(),
		Workers:       2,
		DatesPerMonth: 3,
		MaxDates:      12,
	})
	sess := NewSession(3, 10*time.Minute)

	res, err := o.Search(context.Background(), sess, spainRequest())
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []string{"expanding", "fetching", "merging", "done"}, tracer.sequence())
}

func TestSearchCancellationReturnsPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	explore := &stubExplore{fn: func(q provider.ExploreQuery) ([]deal.Deal, error) {
		// First unit completes, then requests cancellation.
		cancel()
		d := q.DepartDate.Format(deal.DateLayout)
		r := q.DepartDate.AddDate(0, 0, 4).Format(deal.DateLayout)
		return []deal.Deal{indicative("MAD", d, r, 70)}, nil
	}}

	tracer := &stateTracer{}
	o := NewOrchestrator(Options{
		Explore:       explore,
		Airports:      testDirectory(),
		Tracer:        tracer,
		Logger:        zerolog.Nop(),
		Workers:       1,
		DatesPerMonth: 3,
		MaxDates:      12,
	})
	sess := NewSession(3, 10*time.Minute)

	res, err := o.Search(ctx, sess, spainRequest())
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, res.State)
	assert.NotEmpty(t, res.Deals)
	// In-flight work finished, later units were never dispatched.
	assert.LessOrEqual(t, explore.callCount(), 2)

	// Partial results still pass through merging before the terminal state.
	states := tracer.sequence()
	require.NotEmpty(t, states)
	assert.Contains(t, states, "merging")
	assert.Equal(t, "cancelled", states[len(states)-1])
}

func TestSearchEmptyScopeYieldsEmptyResult(t *testing.T) {
	explore := &stubExplore{fn: func(provider.ExploreQuery) ([]deal.Deal, error) {
		return nil, nil
	}}

	o := newTestOrchestrator(explore, nil)
	sess := NewSession(3, 10*time.Minute)

	req := spainRequest()
	req.ScopeValue = "Atlantis"
	res, err := o.Search(context.Background(), sess, req)
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Empty(t, res.Deals)
	assert.Zero(t, explore.callCount())
}

func TestConfirmBudgetScenario(t *testing.T) {
	confirm := &stubConfirm{fn: func(q provider.ConfirmQuery) ([]deal.Deal, error) {
		return []deal.Deal{{
			Origin:      q.Origin,
			Destination: q.Destination,
			DepartDate:  q.DepartDate,
			ReturnDate:  q.ReturnDate,
			Price:       decimal.NewFromInt(100),
			Currency:    "EUR",
			Source:      deal.SourceConfirm,
		}}, nil
	}}

	o := newTestOrchestrator(nil, confirm)
	sess := NewSession(3, 10*time.Minute)

	q := provider.ConfirmQuery{
		Origin:      "LIS",
		Destination: "MAD",
		DepartDate:  date("2026-03-10"),
		ReturnDate:  date("2026-03-14"),
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d, err := o.Confirm(ctx, sess, q)
		require.NoError(t, err)
		require.NotNil(t, d)
	}

	// The fourth confirm within the window fails fast, no network call.
	_, err := o.Confirm(ctx, sess, q)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Equal(t, 3, confirm.callCount())
	assert.Equal(t, 0, sess.Budget.Remaining())
}

func TestConfirmCacheHitDoesNotSpendBudget(t *testing.T) {
	cached := []deal.Deal{{
		Origin:      "LIS",
		Destination: "MAD",
		Price:       decimal.NewFromInt(90),
		Source:      deal.SourceConfirm,
	}}
	confirm := &stubConfirm{
		cached: map[string][]deal.Deal{"LISMAD": cached},
		fn: func(provider.ConfirmQuery) ([]deal.Deal, error) {
			return nil, assert.AnError
		},
	}

	o := newTestOrchestrator(nil, confirm)
	sess := NewSession(3, 10*time.Minute)

	d, err := o.Confirm(context.Background(), sess, provider.ConfirmQuery{Origin: "LIS", Destination: "MAD"})
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "90.00", d.Price.StringFixed(2))
	assert.Equal(t, 3, sess.Budget.Remaining())
	assert.Zero(t, confirm.callCount())
}

func TestConfirmPicksCheapestOffer(t *testing.T) {
	confirm := &stubConfirm{fn: func(q provider.ConfirmQuery) ([]deal.Deal, error) {
		return []deal.Deal{
			{Origin: q.Origin, Destination: q.Destination, Price: decimal.NewFromInt(140)},
			{Origin: q.Origin, Destination: q.Destination, Price: decimal.NewFromInt(110)},
		}, nil
	}}

	o := newTestOrchestrator(nil, confirm)
	sess := NewSession(3, 10*time.Minute)

	d, err := o.Confirm(context.Background(), sess, provider.ConfirmQuery{Origin: "LIS", Destination: "MAD"})
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "110.00", d.Price.StringFixed(2))
}

func TestConfirmEmptyOffersReturnsNil(t *testing.T) {
	confirm := &stubConfirm{fn: func(provider.ConfirmQuery) ([]deal.Deal, error) {
		return nil, nil
	}}

	o := newTestOrchestrator(nil, confirm)
	sess := NewSession(3, 10*time.Minute)

	d, err := o.Confirm(context.Background(), sess, provider.ConfirmQuery{Origin: "LIS", Destination: "MAD"})
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestResultPage(t *testing.T) {
	res := &Result{Deals: []deal.Deal{
		indicative("MAD", "2026-03-06", "2026-03-10", 10),
		indicative("BCN", "2026-03-06", "2026-03-10", 20),
		indicative("AGP", "2026-03-06", "2026-03-10", 30),
	}}

	assert.Len(t, res.Page(0, 2), 2)
	assert.Len(t, res.Page(2, 2), 1)
	assert.Nil(t, res.Page(3, 2))
	assert.Nil(t, res.Page(0, 0))
	assert.Equal(t, "BCN", res.Page(1, 1)[0].Destination)
}
