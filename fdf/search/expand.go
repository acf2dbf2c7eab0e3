package search

import (
	"strings"
	"time"

	"github.com/MeguminKami/Flight-Deal-Finder/fdf/airports"
)

// Scope selects how broadly a search fans out destinations.
type Scope int

const (
	ScopeAirport Scope = iota
	ScopeCountry
	ScopeContinent
	ScopeWorld
)

func (s Scope) String() string {
	switch s {
	case ScopeAirport:
		return "airport"
	case ScopeCountry:
		return "country"
	case ScopeContinent:
		return "continent"
	case ScopeWorld:
		return "world"
	default:
		return "unknown"
	}
}

// Request is one search invocation as received from the caller.
type Request struct {
	Origin     string
	Scope      Scope
	ScopeValue string // IATA code, country, or continent depending on Scope
	DateStart  time.Time
	DateEnd    time.Time
	MinDays    int
	MaxDays    int
}

// expandScope translates the request scope into destination codes in
// dataset order, capped at max. The origin itself is always excluded.
func expandScope(dir airports.Directory, req Request, max int) []string {
	origin := strings.ToUpper(req.Origin)
	var out []string
	seen := map[string]struct{}{}

	add := func(list []airports.Airport) {
		for _, a := range list {
			if a.IATA == origin {
				continue
			}
			if _, ok := seen[a.IATA]; ok {
				continue
			}
			seen[a.IATA] = struct{}{}
			out = append(out, a.IATA)
			if max > 0 && len(out) >= max {
				return
			}
		}
	}

	switch req.Scope {
	case ScopeAirport:
		if code := strings.ToUpper(req.ScopeValue); code != "" && code != origin {
			out = append(out, code)
		}
	case ScopeCountry:
		add(dir.ByCountry(req.ScopeValue))
	case ScopeContinent:
		add(dir.ByContinent(req.ScopeValue))
	case ScopeWorld:
		add(dir.All())
	}

	return out
}

// sampleDates picks up to perMonth representative departure dates from
// each month segment of [start, end], spaced evenly, never exceeding
// max in total. The count stays bounded regardless of window size.
func sampleDates(start, end time.Time, perMonth, max int) []time.Time {
	if end.Before(start) || perMonth <= 0 || max <= 0 {
		return nil
	}

	start = midnight(start)
	end = midnight(end)

	var out []time.Time
	month := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	for !month.After(end) {
		segStart := start
		if month.After(segStart) {
			segStart = month
		}
		segEnd := month.AddDate(0, 1, -1)
		if end.Before(segEnd) {
			segEnd = end
		}

		days := int(segEnd.Sub(segStart).Hours()/24) + 1
		n := perMonth
		if n > days {
			n = days
		}
		for i := 0; i < n; i++ {
			// Midpoint of the i-th of n equal slices of the segment.
			offset := ((2*i + 1) * days) / (2 * n)
			out = append(out, segStart.AddDate(0, 0, offset))
			if len(out) >= max {
				return out
			}
		}

		month = month.AddDate(0, 1, 0)
	}
	return out
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
