// Package settings reads administrative settings the engine consults per
// tap. Values live in Postgres (the admin UI writes them) with a
// short-TTL Redis cache in front, so changing the dedup window takes
// effect within seconds and without a restart.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const tapDelayKey = "default_tap_delay"

// Store reads settings with a cache-aside Redis layer. A nil cache
// client disables caching and every read hits Postgres.
type Store struct {
	db       *sql.DB
	cache    *redis.Client
	cacheTTL time.Duration
	fallback time.Duration
}

// New creates a settings store. fallback is used whenever the setting is
// absent or unreadable.
func New(db *sql.DB, cache *redis.Client, cacheTTL, fallback time.Duration) *Store {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Second
	}
	return &Store{db: db, cache: cache, cacheTTL: cacheTTL, fallback: fallback}
}

// TapDelay returns the current dedup window. Read failures fall back to
// the configured default rather than failing the tap.
func (s *Store) TapDelay(ctx context.Context) time.Duration {
	if s.cache != nil {
		if v, err := s.cache.Get(ctx, "settings:"+tapDelayKey).Result(); err == nil {
			if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, tapDelayKey).Scan(&raw)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("settings read failed, using fallback %s: %v", s.fallback, err)
		}
		return s.fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		log.Printf("settings: bad %s value %q, using fallback %s", tapDelayKey, raw, s.fallback)
		return s.fallback
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, "settings:"+tapDelayKey, raw, s.cacheTTL).Err(); err != nil {
			log.Printf("settings cache set failed: %v", err)
		}
	}
	return time.Duration(secs) * time.Second
}
