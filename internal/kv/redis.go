package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store on a Redis server, mapping retention onto native
// key TTLs. An optional key prefix isolates the ledger from other tenants of
// the same instance.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps client. prefix may be empty.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: redis get: %w", err)
	}
	return value, nil
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key string, value []byte, retention time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, retention).Err(); err != nil {
		return fmt.Errorf("kv: redis set: %w", err)
	}
	return nil
}

// SetMulti implements Store. The batch rides a MULTI/EXEC transaction so the
// server applies every write in one step.
func (r *Redis) SetMulti(ctx context.Context, entries []Entry) error {
	pipe := r.client.TxPipeline()
	for _, e := range entries {
		pipe.Set(ctx, r.key(e.Key), e.Value, e.Retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kv: redis setmulti: %w", err)
	}
	return nil
}

// Remaining implements Store.
func (r *Redis) Remaining(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.PTTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("kv: redis pttl: %w", err)
	}
	// -2: missing key; -1: no TTL set, which Set never produces.
	if ttl < 0 {
		return 0, ErrNotFound
	}
	return ttl, nil
}

// ExtendRetention implements Store.
func (r *Redis) ExtendRetention(ctx context.Context, key string, threshold, extendTo time.Duration) error {
	remaining, err := r.Remaining(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if remaining >= threshold {
		return nil
	}
	if err := r.client.Expire(ctx, r.key(key), extendTo).Err(); err != nil {
		return fmt.Errorf("kv: redis expire: %w", err)
	}
	return nil
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("kv: redis del: %w", err)
	}
	return nil
}

var _ Store = (*Redis)(nil)
