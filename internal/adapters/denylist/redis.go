package denylist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "portal:denylist:"

// Redis shares the denylist between API instances. Entries expire with the
// credential they revoke.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a denylist backed by Redis.
func NewRedis(addr, password string, db int) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: rdb}
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Revoke denylists tokenID for ttl.
func (r *Redis) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, keyPrefix+tokenID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("denylist revoke: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID is denylisted.
func (r *Redis) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("denylist lookup: %w", err)
	}
	return n > 0, nil
}

// Close closes the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
