package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const defaultStoreTimeout = 500 * time.Millisecond

// SlidingWindow counts admissions per key over a trailing window backed by a
// Store. If the store is unreachable or slow it fails open: the request is
// admitted and the error is logged, never surfaced to the caller.
type SlidingWindow struct {
	store        Store
	now          func() time.Time
	storeTimeout time.Duration
	logger       zerolog.Logger
}

type SlidingWindowOption func(*SlidingWindow)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) SlidingWindowOption {
	return func(s *SlidingWindow) { s.now = now }
}

// WithStoreTimeout bounds each store round trip; on expiry the check fails open.
func WithStoreTimeout(d time.Duration) SlidingWindowOption {
	return func(s *SlidingWindow) { s.storeTimeout = d }
}

func WithLogger(logger zerolog.Logger) SlidingWindowOption {
	return func(s *SlidingWindow) { s.logger = logger }
}

func NewSlidingWindow(store Store, opts ...SlidingWindowOption) *SlidingWindow {
	s := &SlidingWindow{
		store:        store,
		now:          time.Now,
		storeTimeout: defaultStoreTimeout,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow reports whether one more admission for key fits under limit within
// window. Admitted calls are recorded; rejected calls are not.
func (s *SlidingWindow) Allow(ctx context.Context, key Key, limit int, window time.Duration) bool {
	if limit <= 0 {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	now := s.now().Unix()
	windowStart := now - int64(window/time.Second)

	if err := s.store.RemoveBefore(ctx, string(key), windowStart); err != nil {
		return s.failOpen(key, "prune", err)
	}

	count, err := s.store.Count(ctx, string(key))
	if err != nil {
		return s.failOpen(key, "count", err)
	}
	if count >= int64(limit) {
		return false
	}

	if err := s.store.Record(ctx, string(key), now, window); err != nil {
		return s.failOpen(key, "record", err)
	}
	return true
}

func (s *SlidingWindow) failOpen(key Key, op string, err error) bool {
	s.logger.Warn().Err(err).Str("key", string(key)).Str("op", op).
		Msg("admission store unavailable, failing open")
	return true
}
