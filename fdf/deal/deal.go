// Package deal defines the normalized round-trip fare record produced by
// every provider client, plus the merge primitives (dedupe, sort) applied
// before results are handed to callers.
package deal

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies which operation produced a deal.
type Source string

const (
	SourceExplore Source = "explore"
	SourceConfirm Source = "confirm"
)

// TransfersUnknown marks a deal whose stop count the provider did not
// report. Unknown transfers sort after any known count.
const TransfersUnknown = -1

// DateLayout is the civil date format used throughout.
const DateLayout = "2006-01-02"

// Deal is a normalized round-trip itinerary with an indicative or
// confirmed price.
type Deal struct {
	Origin      string
	Destination string
	DepartDate  time.Time
	ReturnDate  time.Time

	Price    decimal.Decimal
	Currency string

	Transfers    int
	Airline      string
	FlightNumber string
	DeepLink     string

	// Indicative is true for explore-sourced estimates; confirm-sourced
	// offers carry full detail and are bookable at time of quote.
	Indicative bool
	Source     Source
	FoundAt    time.Time
}

// TripLength returns the trip duration in whole days.
func (d Deal) TripLength() int {
	return int(d.ReturnDate.Sub(d.DepartDate).Hours() / 24)
}

// Key is the identity of a deal for deduplication: same route, same dates.
func (d Deal) Key() string {
	return strings.Join([]string{
		strings.ToUpper(d.Origin),
		strings.ToUpper(d.Destination),
		d.DepartDate.Format(DateLayout),
		d.ReturnDate.Format(DateLayout),
	}, "|")
}

// Dedupe collapses deals sharing a Key, keeping the lowest price. The
// first occurrence of each key keeps its position, so input order is
// preserved for equal-price collisions.
func Dedupe(deals []Deal) []Deal {
	if len(deals) == 0 {
		return deals
	}

	indexByKey := make(map[string]int, len(deals))
	unique := make([]Deal, 0, len(deals))

	for _, d := range deals {
		key := d.Key()
		if at, ok := indexByKey[key]; ok {
			if d.Price.LessThan(unique[at].Price) {
				unique[at] = d
			}
			continue
		}
		indexByKey[key] = len(unique)
		unique = append(unique, d)
	}

	return unique
}

// Sort orders deals by price ascending, then transfers ascending with
// unknown counts last, then departure date ascending. The sort is stable,
// so fully-equal deals keep insertion order.
func Sort(deals []Deal) {
	sort.SliceStable(deals, func(i, j int) bool {
		if c := deals[i].Price.Cmp(deals[j].Price); c != 0 {
			return c < 0
		}
		ti, tj := transfersRank(deals[i].Transfers), transfersRank(deals[j].Transfers)
		if ti != tj {
			return ti < tj
		}
		return deals[i].DepartDate.Before(deals[j].DepartDate)
	})
}

func transfersRank(t int) int {
	if t < 0 {
		// Unknown sorts after every known count.
		return int(^uint(0) >> 1)
	}
	return t
}

// FilterTripLength keeps deals whose duration falls within [minDays, maxDays].
func FilterTripLength(deals []Deal, minDays, maxDays int) []Deal {
	out := deals[:0:0]
	for _, d := range deals {
		if n := d.TripLength(); n >= minDays && n <= maxDays {
			out = append(out, d)
		}
	}
	return out
}
