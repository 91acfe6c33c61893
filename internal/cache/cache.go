// Package cache stores adapter results in Redis so that repeated widget
// queries against the same source and filters skip the upstream call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// DefaultTTL bounds how stale a cached result may get.
const DefaultTTL = time.Minute

const keyPrefix = "reports:fetch"

// ResultCache caches fetched records in Redis.
type ResultCache struct {
	redis   *redis.Client
	enabled bool
	ttl     time.Duration
}

// NewResultCache creates a cache. A nil client or enabled=false disables it.
func NewResultCache(client *redis.Client, enabled bool, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{redis: client, enabled: enabled, ttl: ttl}
}

// IsEnabled returns whether the cache is enabled.
func (c *ResultCache) IsEnabled() bool {
	return c != nil && c.enabled && c.redis != nil
}

// Get returns the cached records for source and filters. ok is false on a miss.
func (c *ResultCache) Get(ctx context.Context, source models.DataSource, filters []models.ReportFilter) (records []models.Record, ok bool, err error) {
	if !c.IsEnabled() {
		return nil, false, nil
	}

	key, err := Key(source, filters)
	if err != nil {
		return nil, false, err
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached result: %w", err)
	}

	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}
	return records, true, nil
}

// Set stores records for source and filters with the cache TTL.
func (c *ResultCache) Set(ctx context.Context, source models.DataSource, filters []models.ReportFilter, records []models.Record) error {
	if !c.IsEnabled() {
		return nil
	}

	key, err := Key(source, filters)
	if err != nil {
		return err
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

// Key derives the cache key for source and filters. Filter order matters.
func Key(source models.DataSource, filters []models.ReportFilter) (string, error) {
	data, err := json.Marshal(filters)
	if err != nil {
		return "", fmt.Errorf("failed to marshal filters: %w", err)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s:%x", keyPrefix, source, hash[:16]), nil
}
