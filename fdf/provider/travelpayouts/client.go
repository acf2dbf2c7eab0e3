// Package travelpayouts adapts the Travelpayouts aggregated prices API
// to the explore port. Prices are month-aggregated indicative fares, not
// bookable offers.
package travelpayouts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/MeguminKami/Flight-Deal-Finder/fdf/cache"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/deal"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/fetch"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/provider"
)

const pricesPath = "/aviasales/v3/get_latest_prices"

// Client calls the latest-prices endpoint and caches normalized
// results. The token travels as a query parameter, never in logs.
type Client struct {
	fetcher    *fetch.Fetcher
	cache      provider.Cache
	baseURL    string
	token      string
	limit      int
	exploreTTL time.Duration
	log        zerolog.Logger
}

// Options configures a Client. Cache may be nil to disable caching.
type Options struct {
	BaseURL    string
	Token      string
	Fetcher    *fetch.Fetcher
	Cache      provider.Cache
	Limit      int
	ExploreTTL time.Duration
	Logger     zerolog.Logger
}

// New builds a Client from opts.
func New(opts Options) *Client {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	return &Client{
		fetcher:    opts.Fetcher,
		cache:      opts.Cache,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		limit:      limit,
		exploreTTL: opts.ExploreTTL,
		log:        opts.Logger,
	}
}

var _ provider.ExploreClient = (*Client)(nil)

// Explore returns indicative round-trip fares for the month containing
// q.DepartDate.
func (c *Client) Explore(ctx context.Context, q provider.ExploreQuery) ([]deal.Deal, error) {
	month := q.DepartDate.Format("2006-01")
	key := c.key(q, month)

	if deals, ok := c.lookup(ctx, key); ok {
		return deals, nil
	}

	// No destination parameter: the endpoint returns fares to every
	// destination from the origin, which the orchestrator filters by
	// scope.
	query := url.Values{
		"origin":              {strings.ToUpper(q.Origin)},
		"beginning_of_period": {month},
		"period_type":         {"month"},
		"one_way":             {"false"},
		"currency":            {strings.ToLower(q.Currency)},
		"limit":               {strconv.Itoa(c.limit)},
		"token":               {c.token},
	}

	resp, err := c.fetcher.Do(ctx, fetch.Request{
		Method: http.MethodGet,
		URL:    c.baseURL + pricesPath,
		Query:  query,
	})
	if err != nil {
		return nil, err
	}

	var payload pricesResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fetch.NewError(fetch.KindUpstream, resp.Status, "decode latest prices response", err)
	}

	deals := c.normalize(q, payload)
	c.store(ctx, key, deals)
	return deals, nil
}

func (c *Client) normalize(q provider.ExploreQuery, payload pricesResponse) []deal.Deal {
	deals := make([]deal.Deal, 0, len(payload.Data))
	now := time.Now()
	for _, entry := range payload.Data {
		if entry.Value <= 0 || entry.Destination == "" {
			continue
		}
		depart, err := time.Parse(deal.DateLayout, clipDate(entry.DepartDate))
		if err != nil {
			c.log.Warn().Str("depart_date", entry.DepartDate).Msg("skipping fare with unparseable departure date")
			continue
		}
		ret, err := time.Parse(deal.DateLayout, clipDate(entry.ReturnDate))
		if err != nil {
			c.log.Warn().Str("return_date", entry.ReturnDate).Msg("skipping fare with unparseable return date")
			continue
		}

		transfers := deal.TransfersUnknown
		if entry.NumberOfChanges != nil {
			transfers = *entry.NumberOfChanges
		}

		deals = append(deals, deal.Deal{
			Origin:      strings.ToUpper(q.Origin),
			Destination: strings.ToUpper(entry.Destination),
			DepartDate:  depart,
			ReturnDate:  ret,
			Price:       decimal.NewFromFloat(entry.Value),
			Currency:    strings.ToUpper(q.Currency),
			Transfers:   transfers,
			Airline:     entry.Airline,
			DeepLink:    entry.Link,
			Indicative:  true,
			Source:      deal.SourceExplore,
			FoundAt:     now,
		})
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

func (c *Client) store(ctx context.Context, key string, deals []deal.Deal) {
	if c.cache == nil || c.exploreTTL <= 0 {
		return
	}
	raw, err := json.Marshal(deals)
	if err != nil {
		c.log.Warn().Err(err).Msg("skipping cache write for unencodable deals")
		return
	}
	c.cache.Set(ctx, key, raw, c.exploreTTL)
}

// key excludes the token so cached entries survive credential rotation.
func (c *Client) key(q provider.ExploreQuery, month string) string {
	return cache.Key(pricesPath, map[string]string{
		"origin":   strings.ToUpper(q.Origin),
		"month":    month,
		"currency": strings.ToUpper(q.Currency),
	})
}

func clipDate(s string) string {
	if len(s) > len(deal.DateLayout) {
		return s[:len(deal.DateLayout)]
	}
	return s
}

type pricesResponse struct {
	Success bool         `json:"success"`
	Data    []priceEntry `json:"data"`
}

type priceEntry struct {
	Origin          string  `json:"origin"`
	Destination     string  `json:"destination"`
	DepartDate      string  `json:"depart_date"`
	ReturnDate      string  `json:"return_date"`
	Value           float64 `json:"value"`
	NumberOfChanges *int    `json:"number_of_changes"`
	Airline         string  `json:"airline"`
	Link            string  `json:"link"`
}
