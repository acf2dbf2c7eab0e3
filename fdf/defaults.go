// Package fdf holds application-wide defaults shared by the config
// loader and the composition root.
package fdf

const (
	DefaultAppName = "flight-deal-finder"

	// DefaultConfigPath is searched after the working directory.
	DefaultConfigPath = "/etc/flight-deal-finder"

	// DefaultCachePath is the embedded cache database file.
	DefaultCachePath = "flight_cache.db"

	// DefaultCurrency is used when a search does not specify one.
	DefaultCurrency = "EUR"
)
