package riskmodel

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/folio/internal/database"
)

// DefaultTTL is how long an estimated risk model stays reusable.
// Daily closes only change once per session, so 24 hours is safe.
const DefaultTTL = 24 * time.Hour

// Cache persists msgpack-encoded calculation results in the calc_cache
// table. Expired entries are ignored on read and swept by Purge.
type Cache struct {
	db  *database.DB
	log zerolog.Logger
}

// NewCache creates a cache backed by the given database.
func NewCache(db *database.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("component", "calc_cache").Logger(),
	}
}

// Get loads a cached value into out. Returns false on miss, expiry, or
// decode failure; a stale or corrupt entry is never an error to callers.
func (c *Cache) Get(key string, out interface{}) bool {
	var payload []byte
	var expiresAt int64
	err := c.db.QueryRow(
		"SELECT payload, expires_at FROM calc_cache WHERE cache_key = ?", key,
	).Scan(&payload, &expiresAt)
	if err != nil {
		return false
	}

	if time.Now().Unix() >= expiresAt {
		return false
	}

	if err := msgpack.Unmarshal(payload, out); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to decode cached payload, treating as miss")
		return false
	}

	return true
}

// Set stores a value under key with the given TTL, replacing any
// existing entry.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(ttl).Unix()
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO calc_cache (cache_key, payload, expires_at) VALUES (?, ?, ?)",
		key, payload, expiresAt,
	)
	return err
}

// Purge deletes expired entries.
func (c *Cache) Purge() error {
	res, err := c.db.Exec("DELETE FROM calc_cache WHERE expires_at < ?", time.Now().Unix())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		c.log.Debug().Int64("deleted", n).Msg("Purged expired cache entries")
	}
	return nil
}
