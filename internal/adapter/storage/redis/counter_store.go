package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CounterStore implements ports.CounterStore on Redis. The circuit breaker's
// counters live here; Incr must stay a single atomic INCR because multiple
// dispatch workers share one breaker per channel.
type CounterStore struct {
	client *goredis.Client
	prefix string
}

// NewCounterStore creates a Redis-backed atomic counter store.
func NewCounterStore(client *goredis.Client) *CounterStore {
	return &CounterStore{
		client: client,
		prefix: "counter:",
	}
}

// Incr atomically increments the counter and returns the new value. The TTL
// is applied when the increment creates the key, so an idle counter expires
// one TTL after its first increment.
func (s *CounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	redisKey := s.prefix + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis counter incr: %w", err)
	}
	if count == 1 && ttl > 0 {
		s.client.Expire(ctx, redisKey, ttl)
	}
	return count, nil
}

// Get returns the counter value, 0 when the key does not exist.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Int64()
	if err != nil {
		if err == goredis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("redis counter get: %w", err)
	}
	return val, nil
}

// Set stores a counter value with TTL.
func (s *CounterStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis counter set: %w", err)
	}
	return nil
}

// Del removes counters.
func (s *CounterStore) Del(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis counter del: %w", err)
	}
	return nil
}
