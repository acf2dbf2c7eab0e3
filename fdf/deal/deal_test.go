package deal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func mkDeal(origin, dest, depart, ret string, price float64, transfers int) Deal {
	return Deal{
		Origin:      origin,
		Destination: dest,
		DepartDate:  date(depart),
		ReturnDate:  date(ret),
		Price:       decimal.NewFromFloat(price),
		Currency:    "EUR",
		Transfers:   transfers,
	}
}

func TestTripLength(t *testing.T) {
	d := mkDeal("LIS", "BCN", "2026-03-10", "2026-03-14", 89, 0)
	assert.Equal(t, 4, d.TripLength())
}

func TestDedupeKeepsMinimumPrice(t *testing.T) {
	deals := []Deal{
		mkDeal("LIS", "BCN", "2026-03-10", "2026-03-14", 120, 1),
		mkDeal("LIS", "MAD", "2026-03-10", "2026-03-14", 95, 0),
		mkDeal("LIS", "BCN", "2026-03-10", "2026-03-14", 89, 0),
		mkDeal("LIS", "BCN", "2026-03-10", "2026-03-14", 140, 2),
	}

	unique := Dedupe(deals)

	require.Len(t, unique, 2)
	// First occurrence keeps its position but carries the lowest price.
	assert.Equal(t, "BCN", unique[0].Destination)
	assert.True(t, unique[0].Price.Equal(decimal.NewFromInt(89)))
	assert.Equal(t, "MAD", unique[1].Destination)
}

func TestDedupeDistinctDatesAreDistinctDeals(t *testing.T) {
	deals := []Deal{
		mkDeal("LIS", "BCN", "2026-03-10", "2026-03-14", 89, 0),
		mkDeal("LIS", "BCN", "2026-03-11", "2026-03-14", 89, 0),
	}

	assert.Len(t, Dedupe(deals), 2)
}

func TestSortOrder(t *testing.T) {
	deals := []Deal{
		mkDeal("LIS", "BCN", "2026-03-12", "2026-03-16", 120, 0),
		mkDeal("LIS", "MAD", "2026-03-10", "2026-03-14", 89, TransfersUnknown),
		mkDeal("LIS", "FCO", "2026-03-11", "2026-03-15", 89, 1),
		mkDeal("LIS", "AMS", "2026-03-09", "2026-03-13", 89, 0),
		mkDeal("LIS", "CDG", "2026-03-08", "2026-03-12", 89, 0),
	}

	Sort(deals)

	// Sort law: adjacent pairs are ordered by (price, transfers with
	// unknown last, departure date).
	for i := 0; i < len(deals)-1; i++ {
		a, b := deals[i], deals[i+1]
		switch c := a.Price.Cmp(b.Price); {
		case c < 0:
		case c == 0:
			ra, rb := transfersRank(a.Transfers), transfersRank(b.Transfers)
			require.LessOrEqual(t, ra, rb)
			if ra == rb {
				require.False(t, a.DepartDate.After(b.DepartDate))
			}
		default:
			t.Fatalf("price out of order at %d: %s > %s", i, a.Price, b.Price)
		}
	}

	// Unknown transfers sort after known ones at the same price.
	assert.Equal(t, "MAD", deals[3].Destination)
	// Highest price is last.
	assert.Equal(t, "BCN", deals[4].Destination)
}

func TestSortStableForEqualDeals(t *testing.T) {
	a := mkDeal("LIS", "BCN", "2026-03-10", "2026-03-14", 89, 0)
	a.Airline = "TP"
	b := a
	b.Airline = "FR"

	deals := []Deal{a, b}
	Sort(deals)

	assert.Equal(t, "TP", deals[0].Airline)
	assert.Equal(t, "FR", deals[1].Airline)
}

func TestFilterTripLength(t *testing.T) {
	deals := []Deal{
		mkDeal("LIS", "BCN", "2026-03-10", "2026-03-12", 89, 0),  // 2 days
		mkDeal("LIS", "BCN", "2026-03-10", "2026-03-14", 99, 0),  // 4 days
		mkDeal("LIS", "BCN", "2026-03-10", "2026-03-17", 79, 0),  // 7 days
	}

	got := FilterTripLength(deals, 3, 5)

	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].TripLength())
}
