package ratelimit

import (
	"context"
	"time"
)

// Store persists per-key admission timestamps for sliding-window counting.
// Timestamps are integer seconds since the epoch. Implementations must be
// safe for concurrent use; several gateway processes may share one store.
type Store interface {
	// RemoveBefore drops all timestamps for key strictly older than cutoff.
	RemoveBefore(ctx context.Context, key string, cutoff int64) error

	// Count returns the number of timestamps currently held for key.
	Count(ctx context.Context, key string) (int64, error)

	// Record appends a timestamp for key and sets or refreshes the key's
	// expiry to ttl, so abandoned keys clean themselves up.
	Record(ctx context.Context, key string, at int64, ttl time.Duration) error
}
