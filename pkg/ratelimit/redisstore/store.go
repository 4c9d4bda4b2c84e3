// Package redisstore backs admission counting with a Redis sorted set per
// key. Redis executes each command atomically, which is the serialization
// mechanism the sliding window relies on when several gateway processes
// share one instance.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rate_limit:"

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) RemoveBefore(ctx context.Context, key string, cutoff int64) error {
	// Exclusive max: entries at exactly cutoff are still inside the window.
	max := "(" + strconv.FormatInt(cutoff, 10)
	if err := s.client.ZRemRangeByScore(ctx, keyPrefix+key, "-inf", max).Err(); err != nil {
		return fmt.Errorf("prune %s: %w", key, err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, keyPrefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) Record(ctx context.Context, key string, at int64, ttl time.Duration) error {
	// Members get a UUID so admissions landing in the same second don't
	// collapse into one sorted-set entry.
	p := s.client.Pipeline()
	p.ZAdd(ctx, keyPrefix+key, redis.Z{
		Score:  float64(at),
		Member: uuid.New().String(),
	})
	p.Expire(ctx, keyPrefix+key, ttl)
	if _, err := p.Exec(ctx); err != nil {
		return fmt.Errorf("record %s: %w", key, err)
	}
	return nil
}
