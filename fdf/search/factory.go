package search

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/MeguminKami/Flight-Deal-Finder/fdf/airports"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/cache"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/config"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/fetch"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/provider"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/provider/amadeus"
	"github.com/MeguminKami/Flight-Deal-Finder/fdf/provider/travelpayouts"
)

// Factory creates and wires search components from configuration.
type Factory struct {
	cfg    *config.Config
	logger zerolog.Logger
	store  *cache.Store
}

// NewFactory creates a new search factory.
func NewFactory(cfg *config.Config, logger zerolog.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// CreateOrchestrator creates a fully wired Orchestrator from config.
// A failed cache open degrades to uncached operation rather than
// failing; at least one provider must be configured.
func (f *Factory) CreateOrchestrator() (*Orchestrator, error) {
	store := f.createStore()

	amadeusClient := f.createAmadeus(store)
	tpClient := f.createTravelpayouts(store)

	var explore provider.ExploreClient
	switch {
	case amadeusClient != nil && tpClient != nil:
		// Travelpayouts picks up exploration when Amadeus fails.
		explore = &provider.FallbackExplore{Primary: amadeusClient, Secondary: tpClient}
	case amadeusClient != nil:
		explore = amadeusClient
	case tpClient != nil:
		explore = tpClient
	default:
		return nil, errors.New("no provider configured: set amadeus credentials or a travelpayouts token")
	}

	// Confirmation needs bookable offers, which only Amadeus provides.
	// Without credentials the orchestrator still explores; Confirm
	// reports the missing provider.
	var confirm provider.ConfirmClient
	if amadeusClient != nil {
		confirm = amadeusClient
	}

	dir, err := f.createAirports()
	if err != nil {
		return nil, err
	}

	return NewOrchestrator(Options{
		Explore:         explore,
		Confirm:         confirm,
		Airports:        dir,
		Tracer:          NewZerologTracer(f.logger),
		Logger:          f.logger,
		Workers:         f.cfg.Search.Workers,
		MaxDestinations: f.cfg.Search.MaxDestinations,
		DatesPerMonth:   f.cfg.Search.DatesPerMonth,
		MaxDates:        f.cfg.Search.MaxDates,
		MaxResults:      f.cfg.Search.MaxResults,
		Currency:        f.cfg.Search.Currency,
	}), nil
}

// NewSession returns a session carrying a fresh confirm budget.
func (f *Factory) NewSession() *Session {
	return NewSession(f.cfg.Budget.ConfirmMaxCalls, f.cfg.Budget.ConfirmWindow)
}

// Close releases the cache store, if one was opened.
func (f *Factory) Close() error {
	if f.store == nil {
		return nil
	}
	return f.store.Close()
}

func (f *Factory) createStore() *cache.Store {
	store, err := cache.Open(f.cfg.Cache.Path, cache.Options{Logger: f.logger})
	if err != nil {
		// Cache outages degrade to uncached fetches, never a failure.
		f.logger.Warn().Err(err).Str("path", f.cfg.Cache.Path).Msg("cache unavailable, continuing without it")
		return nil
	}
	store.StartSweeper(f.cfg.Cache.SweepInterval)
	f.store = store
	return store
}

func (f *Factory) createAmadeus(store *cache.Store) *amadeus.Client {
	cfg := f.cfg.Amadeus
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil
	}

	tokens := amadeus.NewTokenManager(amadeus.TokenOptions{
		BaseURL:      cfg.BaseURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Client:       &http.Client{Timeout: cfg.Timeout},
		Margin:       cfg.TokenMargin,
		WaitMax:      cfg.TokenWaitMax,
		Logger:       f.logger,
	})

	fetcher := fetch.New(fetch.Options{
		Limiter: fetch.NewLimiter(cfg.MinInterval),
		Tokens:  tokens,
		Policy:  f.retryPolicy(),
		Timeout: cfg.Timeout,
		Logger:  f.logger,
	})

	return amadeus.New(amadeus.Options{
		BaseURL:    cfg.BaseURL,
		Fetcher:    fetcher,
		Cache:      cacheOrNil(store),
		MaxOffers:  cfg.MaxOffers,
		ExploreTTL: f.cfg.Cache.ExploreTTL,
		ConfirmTTL: f.cfg.Cache.ConfirmTTL,
		Logger:     f.logger,
	})
}

func (f *Factory) createTravelpayouts(store *cache.Store) *travelpayouts.Client {
	cfg := f.cfg.Travelpayouts
	if cfg.Token == "" {
		return nil
	}

	fetcher := fetch.New(fetch.Options{
		Limiter: fetch.NewLimiter(cfg.MinInterval),
		Policy:  f.retryPolicy(),
		Timeout: cfg.Timeout,
		Logger:  f.logger,
	})

	return travelpayouts.New(travelpayouts.Options{
		BaseURL:    cfg.BaseURL,
		Token:      cfg.Token,
		Fetcher:    fetcher,
		Cache:      cacheOrNil(store),
		Limit:      cfg.Limit,
		ExploreTTL: f.cfg.Cache.ExploreTTL,
		Logger:     f.logger,
	})
}

func (f *Factory) createAirports() (airports.Directory, error) {
	path := f.cfg.Search.AirportsFile
	if path == "" {
		f.logger.Warn().Msg("no airports file configured, scope expansion limited to explicit codes")
		return airports.NewInMemory(nil), nil
	}
	return airports.LoadFile(path)
}

func (f *Factory) retryPolicy() fetch.RetryPolicy {
	return fetch.RetryPolicy{
		MaxRetries:  f.cfg.Retry.MaxRetries,
		BackoffBase: f.cfg.Retry.BackoffBase,
		BackoffMax:  f.cfg.Retry.BackoffMax,
		Jitter:      f.cfg.Retry.Jitter,
	}
}

// cacheOrNil avoids handing clients a typed nil behind the Cache
// interface.
func cacheOrNil(store *cache.Store) provider.Cache {
	if store == nil {
		return nil
	}
	return store
}
