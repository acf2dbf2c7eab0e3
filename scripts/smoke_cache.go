//go:build integration
// +build integration

package scripts

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/MeguminKami/Flight-Deal-Finder/fdf/cache"
)

func must(err error, msg string) {
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
}

// RunSmokeCache executes end-to-end checks against the embedded libsql
// cache store: open, migrate, round-trip, expiry, purge, stats.
func RunSmokeCache() {
	fmt.Println("Smoke test: libsql cache store")
	tmp := "./smoke_cache.db"
	defer os.Remove(tmp)

	store, err := cache.Open(tmp, cache.Options{Logger: zerolog.Nop()})
	must(err, "open")
	defer store.Close()

	ctx := context.Background()

	// Round trip
	store.Set(ctx, "smoke", []byte("payload"), time.Minute)
	got, ok := store.Get(ctx, "smoke")
	if !ok || string(got) != "payload" {
		log.Fatalf("round trip returned %q ok=%v", got, ok)
	}
	fmt.Println("OK: set/get round trip")

	// Expiry
	store.Set(ctx, "stale", []byte("old"), -time.Second)
	if _, ok := store.Get(ctx, "stale"); ok {
		log.Fatal("expired entry returned as valid")
	}
	fmt.Println("OK: expired entry is a miss")

	// Purge
	store.Set(ctx, "dead", []byte("x"), -time.Minute)
	removed, err := store.PurgeExpired(ctx)
	must(err, "purge")
	fmt.Printf("OK: purge removed %d rows\n", removed)

	// Stats
	st, err := store.GetStats(ctx)
	must(err, "stats")
	fmt.Printf("OK: stats total=%d valid=%d expired=%d\n", st.Total, st.Valid, st.Expired)

	// Deterministic keys
	a := cache.Key("smoke", map[string]string{"b": "2", "a": "1"})
	b := cache.Key("smoke", map[string]string{"a": "1", "b": "2"})
	if a != b {
		log.Fatal("cache key is parameter-order dependent")
	}
	fmt.Println("OK: deterministic cache keys")

	fmt.Println("Smoke test passed")
}
