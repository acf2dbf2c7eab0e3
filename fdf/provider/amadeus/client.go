// Package amadeus adapts two Amadeus Self-Service endpoints to the
// provider ports: flight-destinations for exploration (indicative
// prices, no destination input) and flight-offers for confirmation
// (bookable prices on exact dates).
package amadeus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/MeguminKami/Flight-Deal-Finder/fdf/cache"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/deal"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/fetch"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/provider"
)

const (
	offersPath       = "/v2/shopping/flight-offers"
	destinationsPath = "/v1/shopping/flight-destinations"
)

// Client calls the Amadeus API and caches normalized results.
type Client struct {
	fetcher    *fetch.Fetcher
	cache      provider.Cache
	baseURL    string
	maxOffers  int
	exploreTTL time.Duration
	confirmTTL time.Duration
	log        zerolog.Logger
}

// Options configures a Client. Cache may be nil to disable caching.
type Options struct {
	BaseURL    string
	Fetcher    *fetch.Fetcher
	Cache      provider.Cache
	MaxOffers  int
	ExploreTTL time.Duration
	ConfirmTTL time.Duration
	Logger     zerolog.Logger
}

// New builds a Client from opts.
func New(opts Options) *Client {
	maxOffers := opts.MaxOffers
	if maxOffers <= 0 {
		maxOffers = 5
	}
	return &Client{
		fetcher:    opts.Fetcher,
		cache:      opts.Cache,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		maxOffers:  maxOffers,
		exploreTTL: opts.ExploreTTL,
		confirmTTL: opts.ConfirmTTL,
		log:        opts.Logger,
	}
}

var (
	_ provider.ExploreClient = (*Client)(nil)
	_ provider.ConfirmClient = (*Client)(nil)
)

// Explore runs a flight inspiration search: cheapest destinations from
// q.Origin departing on q.DepartDate, with trip duration bounded when
// the query carries a day window.
func (c *Client) Explore(ctx context.Context, q provider.ExploreQuery) ([]deal.Deal, error) {
	query := url.Values{
		"origin":        {strings.ToUpper(q.Origin)},
		"departureDate": {q.DepartDate.Format(deal.DateLayout)},
		"oneWay":        {"false"},
	}
	// This endpoint takes "currency", not "currencyCode"; without it the
	// returned amounts would not match the currency stamped on the deals.
	if q.Currency != "" {
		query.Set("currency", strings.ToUpper(q.Currency))
	}
	if q.MinDays > 0 && q.MaxDays >= q.MinDays {
		query.Set("duration", fmt.Sprintf("%d,%d", q.MinDays, q.MaxDays))
	}

	key := cache.Key(destinationsPath, flatten(query))
	if deals, ok := c.lookup(ctx, key); ok {
		return deals, nil
	}

	resp, err := c.fetcher.Do(ctx, fetch.Request{
		Method:       http.MethodGet,
		URL:          c.baseURL + destinationsPath,
		Query:        query,
		Authenticate: true,
	})
	if err != nil {
		return nil, err
	}

	var payload destinationsResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fetch.NewError(fetch.KindUpstream, resp.Status, "decode flight destinations response", err)
	}

	deals := c.normalizeDestinations(q, payload)
	c.store(ctx, key, deals, c.exploreTTL)
	return deals, nil
}

// Cached answers a confirm query from the cache without touching the
// network.
func (c *Client) Cached(ctx context.Context, q provider.ConfirmQuery) ([]deal.Deal, bool) {
	return c.lookup(ctx, c.confirmKey(q))
}

// Confirm prices the exact itinerary in q against the live API.
func (c *Client) Confirm(ctx context.Context, q provider.ConfirmQuery) ([]deal.Deal, error) {
	body := offersRequest{
		CurrencyCode: q.Currency,
		OriginDestinations: []originDestination{
			{
				ID:                      "1",
				OriginLocationCode:      q.Origin,
				DestinationLocationCode: q.Destination,
				DepartureDateTimeRange:  dateRange{Date: q.DepartDate.Format(deal.DateLayout)},
			},
			{
				ID:                      "2",
				OriginLocationCode:      q.Destination,
				DestinationLocationCode: q.Origin,
				DepartureDateTimeRange:  dateRange{Date: q.ReturnDate.Format(deal.DateLayout)},
			},
		},
		Travelers: []traveler{{ID: "1", TravelerType: "ADULT"}},
		Sources:   []string{"GDS"},
		SearchCriteria: searchCriteria{
			MaxFlightOffers: c.maxOffers,
		},
	}

	resp, err := c.fetcher.Do(ctx, fetch.Request{
		Method:       http.MethodPost,
		URL:          c.baseURL + offersPath,
		Body:         body,
		Authenticate: true,
	})
	if err != nil {
		return nil, err
	}

	var payload offersResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fetch.NewError(fetch.KindUpstream, resp.Status, "decode flight offers response", err)
	}

	deals := c.normalizeOffers(q, payload)
	c.store(ctx, c.confirmKey(q), deals, c.confirmTTL)
	return deals, nil
}

func (c *Client) normalizeDestinations(q provider.ExploreQuery, payload destinationsResponse) []deal.Deal {
	deals := make([]deal.Deal, 0, len(payload.Data))
	now := time.Now()
	for _, entry := range payload.Data {
		if entry.Destination == "" {
			continue
		}
		price, err := decimal.NewFromString(entry.Price.Total)
		if err != nil {
			c.log.Warn().Str("price", entry.Price.Total).Msg("skipping destination with unparseable price")
			continue
		}
		depart, err := time.Parse(deal.DateLayout, entry.DepartureDate)
		if err != nil {
			continue
		}
		ret, err := time.Parse(deal.DateLayout, entry.ReturnDate)
		if err != nil {
			continue
		}

		deals = append(deals, deal.Deal{
			Origin:      strings.ToUpper(q.Origin),
			Destination: strings.ToUpper(entry.Destination),
			DepartDate:  depart,
			ReturnDate:  ret,
			Price:       price,
			Currency:    q.Currency,
			Transfers:   deal.TransfersUnknown,
			Indicative:  true,
			Source:      deal.SourceExplore,
			FoundAt:     now,
		})
	}
	return deals
}

func (c *Client) normalizeOffers(q provider.ConfirmQuery, payload offersResponse) []deal.Deal {
	deals := make([]deal.Deal, 0, len(payload.Data))
	now := time.Now()
	for _, off := range payload.Data {
		raw := off.Price.GrandTotal
		if raw == "" {
			raw = off.Price.Total
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			c.log.Warn().Str("price", raw).Msg("skipping offer with unparseable price")
			continue
		}

		currency := off.Price.Currency
		if currency == "" {
			currency = q.Currency
		}

		d := deal.Deal{
			Origin:      strings.ToUpper(q.Origin),
			Destination: strings.ToUpper(q.Destination),
			DepartDate:  q.DepartDate,
			ReturnDate:  q.ReturnDate,
			Price:       price,
			Currency:    currency,
			Transfers:   deal.TransfersUnknown,
			Indicative:  false,
			Source:      deal.SourceConfirm,
			FoundAt:     now,
		}

		if len(off.Itineraries) > 0 {
			segs := off.Itineraries[0].Segments
			d.Transfers = len(segs) - 1
			if len(segs) > 0 {
				first := segs[0]
				d.Airline = payload.Dictionaries.Carriers[first.CarrierCode]
				if d.Airline == "" {
					d.Airline = first.CarrierCode
				}
				d.FlightNumber = first.CarrierCode + first.Number
				if len(first.Departure.At) >= len(deal.DateLayout) {
					if at, err := time.Parse(deal.DateLayout, first.Departure.At[:len(deal.DateLayout)]); err == nil {
						d.DepartDate = at
					}
				}
			}
		}

		deals = append(deals, d)
	}
	return deals
}

func (c *Client) lookup(ctx context.Context, key string) ([]deal.Deal, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, ok := c.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var deals []deal.Deal
	if err := json.Unmarshal(raw, &deals); err != nil {
		c.log.Warn().Err(err).Msg("discarding undecodable cache entry")
		return nil, false
	}
	return deals, true
}

func (c *Client) store(ctx context.Context, key string, deals []deal.Deal, ttl time.Duration) {
	if c.cache == nil || ttl <= 0 {
		return
	}
	raw, err := json.Marshal(deals)
	if err != nil {
		c.log.Warn().Err(err).Msg("skipping cache write for unencodable deals")
		return
	}
	c.cache.Set(ctx, key, raw, ttl)
}

func (c *Client) confirmKey(q provider.ConfirmQuery) string {
	return cache.Key(offersPath, map[string]string{
		"origin":      strings.ToUpper(q.Origin),
		"destination": strings.ToUpper(q.Destination),
		"depart":      q.DepartDate.Format(deal.DateLayout),
		"return":      q.ReturnDate.Format(deal.DateLayout),
		"currency":    q.Currency,
	})
}

func flatten(query url.Values) map[string]string {
	out := make(map[string]string, len(query))
	for k := range query {
		out[k] = query.Get(k)
	}
	return out
}

type offersRequest struct {
	CurrencyCode       string              `json:"currencyCode,omitempty"`
	OriginDestinations []originDestination `json:"originDestinations"`
	Travelers          []traveler          `json:"travelers"`
	Sources            []string            `json:"sources"`
	SearchCriteria     searchCriteria      `json:"searchCriteria"`
}

type originDestination struct {
	ID                      string    `json:"id"`
	OriginLocationCode      string    `json:"originLocationCode"`
	DestinationLocationCode string    `json:"destinationLocationCode"`
	DepartureDateTimeRange  dateRange `json:"departureDateTimeRange"`
}

type dateRange struct {
	Date string `json:"date"`
}

type traveler struct {
	ID           string `json:"id"`
	TravelerType string `json:"travelerType"`
}

type searchCriteria struct {
	MaxFlightOffers int `json:"maxFlightOffers"`
}

type offersResponse struct {
	Data         []offer      `json:"data"`
	Dictionaries dictionaries `json:"dictionaries"`
}

type offer struct {
	Price       offerPrice  `json:"price"`
	Itineraries []itinerary `json:"itineraries"`
}

type offerPrice struct {
	Currency   string `json:"currency"`
	Total      string `json:"total"`
	GrandTotal string `json:"grandTotal"`
}

type itinerary struct {
	Segments []segment `json:"segments"`
}

type segment struct {
	Departure   pointTime `json:"departure"`
	CarrierCode string    `json:"carrierCode"`
	Number      string    `json:"number"`
}

type pointTime struct {
	At string `json:"at"`
}

type dictionaries struct {
	Carriers map[string]string `json:"carriers"`
}

type destinationsResponse struct {
	Data []flightDestination `json:"data"`
}

type flightDestination struct {
	Origin        string           `json:"origin"`
	Destination   string           `json:"destination"`
	DepartureDate string           `json:"departureDate"`
	ReturnDate    string           `json:"returnDate"`
	Price         destinationPrice `json:"price"`
}

type destinationPrice struct {
	Total string `json:"total"`
}
