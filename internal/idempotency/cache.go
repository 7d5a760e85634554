// Package idempotency implements the Idempotency Cache component (spec
// §4.2): a Redis-backed guard so a retried submission request does not
// create a second Job.
package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pixtools:idempotency:"

// Cache is the Idempotency Cache component.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New wraps an established Redis client.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Check returns the jobID previously associated with key, or ("", false) if
// absent. A connection error is treated as a cache miss — fail-open, per
// spec §7, so a Redis outage degrades to "every submission is new" rather
// than blocking submissions outright.
func (c *Cache) Check(ctx context.Context, key string) (string, bool) {
	val, err := c.rdb.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("idempotency cache check failed, treating as miss", slog.String("error", err.Error()))
		}
		return "", false
	}
	return val, true
}

// Set associates key with jobID if no value is already set, returning
// (winningJobID, won). At most one caller wins the key; a later Check
// returns the winner's jobID. Set alone does not prevent a second Job: the
// submission handler calls it after creating and dispatching its own job,
// so two concurrent first-time submissions with the same key can each
// create one.
func (c *Cache) Set(ctx context.Context, key, jobID string) (string, bool, error) {
	ok, err := c.rdb.SetNX(ctx, keyPrefix+key, jobID, c.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return jobID, true, nil
	}

	existing, err := c.rdb.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		// The key was set a moment ago but expired or vanished before this
		// read; treat it as if this caller had won.
		if errors.Is(err, redis.Nil) {
			return jobID, true, nil
		}
		return "", false, err
	}
	return existing, false, nil
}
