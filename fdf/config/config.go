package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/MeguminKami/Flight-Deal-Finder/fdf"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Cache         CacheConfig         `mapstructure:"cache"`
	Amadeus       AmadeusConfig       `mapstructure:"amadeus"`
	Travelpayouts TravelpayoutsConfig `mapstructure:"travelpayouts"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Budget        BudgetConfig        `mapstructure:"budget"`
	Search        SearchConfig        `mapstructure:"search"`
}

// CacheConfig stores settings for the persistent response cache.
type CacheConfig struct {
	Path          string        `mapstructure:"path"`           // cache database file
	ExploreTTL    time.Duration `mapstructure:"explore_ttl"`    // long TTL for explore responses
	ConfirmTTL    time.Duration `mapstructure:"confirm_ttl"`    // short TTL for confirm responses
	SweepInterval time.Duration `mapstructure:"sweep_interval"` // background expiry sweep cadence
}

// AmadeusConfig stores credentials and pacing for the Amadeus provider.
// ClientID and ClientSecret are opaque and must never be logged.
type AmadeusConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`        // per-request timeout
	MinInterval   time.Duration `mapstructure:"min_interval"`   // pacing between requests
	TokenMargin   time.Duration `mapstructure:"token_margin"`   // refresh tokens this early
	TokenWaitMax  time.Duration `mapstructure:"token_wait_max"` // bound on waiting for an in-flight refresh
	MaxOffers     int           `mapstructure:"max_offers"`     // maxFlightOffers per request
}

// TravelpayoutsConfig stores the token and pacing for the Travelpayouts
// data API provider.
type TravelpayoutsConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Token       string        `mapstructure:"token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	Limit       int           `mapstructure:"limit"` // max rows per month query
}

// RetryConfig is the retry policy applied to transient provider failures.
type RetryConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
	Jitter      float64       `mapstructure:"jitter"` // fraction of the delay, 0..1
}

// BudgetConfig caps confirm (offer search) calls per session.
type BudgetConfig struct {
	ConfirmMaxCalls int           `mapstructure:"confirm_max_calls"`
	ConfirmWindow   time.Duration `mapstructure:"confirm_window"`
}

// SearchConfig bounds the fan-out of a single search invocation.
type SearchConfig struct {
	MaxDestinations int    `mapstructure:"max_destinations"` // cap after scope expansion
	DatesPerMonth   int    `mapstructure:"dates_per_month"`  // sampled departure dates per month
	MaxDates        int    `mapstructure:"max_dates"`        // cap regardless of window size
	Workers         int    `mapstructure:"workers"`          // concurrent fetch units
	MaxResults      int    `mapstructure:"max_results"`
	Currency        string `mapstructure:"currency"`
	AirportsFile    string `mapstructure:"airports_file"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("FDF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; an explicit path must exist.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || configPath != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Cache defaults mirror the provider guidance: explore responses are
	// stable for hours, confirm offers go stale in minutes.
	v.SetDefault("cache.path", internal.DefaultCachePath)
	v.SetDefault("cache.explore_ttl", "12h")
	v.SetDefault("cache.confirm_ttl", "10m")
	v.SetDefault("cache.sweep_interval", "30m")

	v.SetDefault("amadeus.base_url", "https://test.api.amadeus.com")
	v.SetDefault("amadeus.timeout", "15s")
	v.SetDefault("amadeus.min_interval", "1s")
	v.SetDefault("amadeus.token_margin", "60s")
	v.SetDefault("amadeus.token_wait_max", "20s")
	v.SetDefault("amadeus.max_offers", 5)

	v.SetDefault("travelpayouts.base_url", "https://api.travelpayouts.com")
	v.SetDefault("travelpayouts.timeout", "10s")
	v.SetDefault("travelpayouts.min_interval", "500ms")
	v.SetDefault("travelpayouts.limit", 1000)

	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.backoff_base", "1s")
	v.SetDefault("retry.backoff_max", "8s")
	v.SetDefault("retry.jitter", 0.5)

	v.SetDefault("budget.confirm_max_calls", 3)
	v.SetDefault("budget.confirm_window", "10m")

	v.SetDefault("search.max_destinations", 30)
	v.SetDefault("search.dates_per_month", 3)
	v.SetDefault("search.max_dates", 12)
	v.SetDefault("search.workers", 4)
	v.SetDefault("search.max_results", 500)
	v.SetDefault("search.currency", internal.DefaultCurrency)
	v.SetDefault("search.airports_file", "airports.json")
}
