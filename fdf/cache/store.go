// Package cache is a persistent key/value store with per-entry expiry,
// backed by embedded libsql. Storage failures degrade to cache-miss
// behavior: a broken cache slows searches down, it never breaks them.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a TTL key/value cache over an embedded libsql database.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	db  *sql.DB
	log zerolog.Logger

	sweepOnce sync.Once
	sweepStop chan struct{}
}

// Options configures a Store.
type Options struct {
	Logger zerolog.Logger
}

// Stats summarizes cache occupancy.
type Stats struct {
	Total   int64
	Expired int64
	Valid   int64
}

// Open initializes or opens a Store at the given path, creating the
// database file and running schema migrations as needed.
func Open(path string, opts Options) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create cache directory %s: %w", dir, err)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		file, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("could not create cache db at %s: %w", path, err)
		}
		file.Close()
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_synchronous=NORMAL&_temp_store=memory", path)

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}

	var probe int
	if err := db.QueryRow("SELECT 1").Scan(&probe); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache connectivity test failed: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:        db,
		log:       opts.Logger.With().Str("component", "cache").Logger(),
		sweepStop: make(chan struct{}),
	}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run cache migrations: %w", err)
	}
	return nil
}

// Close stops the sweeper (if running) and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	select {
	case <-s.sweepStop:
	default:
		close(s.sweepStop)
	}
	return s.db.Close()
}

// Get returns the cached value for key, or ok=false on a miss. An entry
// past its expiry is a miss and is deleted on the way out. Storage errors
// are logged and reported as misses.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	var expiresAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("cache read failed, treating as miss")
		return nil, false
	}

	if time.Now().Unix() > expiresAt {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
			s.log.Debug().Err(err).Msg("failed to delete expired entry")
		}
		return nil, false
	}

	return value, true
}

// Set stores value under key with the given TTL, replacing any previous
// entry. Write failures are logged and dropped.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache (key, value, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value,
		   created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, value, now.Unix(), now.Add(ttl).Unix(),
	)
	if err != nil {
		s.log.Warn().Err(err).Msg("cache write failed, dropping entry")
	}
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key)
	return err
}

// PurgeExpired removes all expired entries and returns how many were
// deleted.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every entry. A cold cache is a correctness no-op.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache`)
	return err
}

// GetStats reports total, expired, and still-valid entry counts.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache`).Scan(&st.Total); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache WHERE expires_at < ?`, time.Now().Unix(),
	).Scan(&st.Expired); err != nil {
		return Stats{}, err
	}
	st.Valid = st.Total - st.Expired
	return st, nil
}

// StartSweeper launches a background goroutine that purges expired
// entries every interval until the store is closed. Calling it more than
// once is a no-op.
func (s *Store) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-s.sweepStop:
					return
				case <-ticker.C:
					n, err := s.PurgeExpired(context.Background())
					if err != nil {
						s.log.Warn().Err(err).Msg("expiry sweep failed")
						continue
					}
					if n > 0 {
						s.log.Debug().Int64("removed", n).Msg("expiry sweep")
					}
				}
			}
		}()
	})
}
