// Package provider defines the ports that flight data providers
// implement. Adapters live in subpackages; the search orchestrator
// depends only on these interfaces.
package provider

import (
	"context"
	"time"

	"github.com/MeguminKami/Flight-Deal-Finder/fdf/deal"
)

// ExploreQuery asks a provider for indicative round-trip prices from
// Origin on a sampled departure date. Destinations are not part of the
// query; they come back in the results.
type ExploreQuery struct {
	Origin     string
	DepartDate time.Time
	MinDays    int
	MaxDays    int
	Currency   string
}

// ConfirmQuery asks a provider for bookable offers on exact dates.
type ConfirmQuery struct {
	Origin      string
	Destination string
	DepartDate  time.Time
	ReturnDate  time.Time
	Currency    string
}

// ExploreClient surveys cheap fares for an origin/destination pair.
// A pair with no fares yields an empty slice and a nil error.
type ExploreClient interface {
	Explore(ctx context.Context, q ExploreQuery) ([]deal.Deal, error)
}

// ConfirmClient prices exact itineraries. Cached lets the caller
// answer from the cache without spending a confirm budget slot; only
// Confirm may reach the network.
type ConfirmClient interface {
	Cached(ctx context.Context, q ConfirmQuery) ([]deal.Deal, bool)
	Confirm(ctx context.Context, q ConfirmQuery) ([]deal.Deal, error)
}

// Cache is the slice of the cache store clients need. Set failures are
// absorbed by the store, so writes carry no error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// FallbackExplore tries Primary and falls back to Secondary when the
// primary fails. A nil Secondary makes it a passthrough.
type FallbackExplore struct {
	Primary   ExploreClient
	Secondary ExploreClient
}

func (f *FallbackExplore) Explore(ctx context.Context, q ExploreQuery) ([]deal.Deal, error) {
	deals, err := f.Primary.Explore(ctx, q)
	if err == nil || f.Secondary == nil {
		return deals, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return f.Secondary.Explore(ctx, q)
}
