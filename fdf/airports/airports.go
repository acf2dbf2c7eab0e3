// Package airports holds the airport reference data used to expand a
// search scope (country, continent, world) into destination codes.
package airports

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Airport is one entry of the reference dataset.
type Airport struct {
	IATA        string `json:"iata"`
	City        string `json:"city"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	Continent   string `json:"continent"`
	Name        string `json:"airport_name"`
}

// Directory answers scope expansion queries over the dataset.
type Directory interface {
	Lookup(iata string) (Airport, bool)
	ByCountry(country string) []Airport
	ByContinent(continent string) []Airport
	All() []Airport
	Countries() []string
	Continents() []string
}

// InMemory is a Directory backed by a slice with an IATA index.
type InMemory struct {
	airports []Airport
	byIATA   map[string]Airport
}

var _ Directory = (*InMemory)(nil)

// NewInMemory indexes the given airports. IATA codes are normalized to
// upper case; later duplicates win.
func NewInMemory(airports []Airport) *InMemory {
	d := &InMemory{
		airports: make([]Airport, 0, len(airports)),
		byIATA:   make(map[string]Airport, len(airports)),
	}
	for _, a := range airports {
		a.IATA = strings.ToUpper(a.IATA)
		d.airports = append(d.airports, a)
		d.byIATA[a.IATA] = a
	}
	return d
}

// LoadFile reads a JSON array of airports from path.
func LoadFile(path string) (*InMemory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read airports file: %w", err)
	}
	var airports []Airport
	if err := json.Unmarshal(raw, &airports); err != nil {
		return nil, fmt.Errorf("parse airports file %s: %w", path, err)
	}
	return NewInMemory(airports), nil
}

// Lookup returns the airport for a IATA code, case-insensitively.
func (d *InMemory) Lookup(iata string) (Airport, bool) {
	a, ok := d.byIATA[strings.ToUpper(iata)]
	return a, ok
}

// ByCountry returns all airports in the named country, matched
// case-insensitively.
func (d *InMemory) ByCountry(country string) []Airport {
	var out []Airport
	for _, a := range d.airports {
		if strings.EqualFold(a.Country, country) {
			out = append(out, a)
		}
	}
	return out
}

// ByContinent returns all airports on the named continent, matched
// case-insensitively.
func (d *InMemory) ByContinent(continent string) []Airport {
	var out []Airport
	for _, a := range d.airports {
		if strings.EqualFold(a.Continent, continent) {
			out = append(out, a)
		}
	}
	return out
}

// All returns every airport in dataset order.
func (d *InMemory) All() []Airport {
	out := make([]Airport, len(d.airports))
	copy(out, d.airports)
	return out
}

// Countries returns the distinct country names, sorted.
func (d *InMemory) Countries() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, a := range d.airports {
		if _, ok := seen[a.Country]; ok {
			continue
		}
		seen[a.Country] = struct{}{}
		out = append(out, a.Country)
	}
	sort.Strings(out)
	return out
}

// Continents returns the distinct continent names, sorted.
func (d *InMemory) Continents() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, a := range d.airports {
		if _, ok := seen[a.Continent]; ok {
			continue
		}
		seen[a.Continent] = struct{}{}
		out = append(out, a.Continent)
	}
	sort.Strings(out)
	return out
}
