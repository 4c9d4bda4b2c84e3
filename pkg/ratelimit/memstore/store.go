// Package memstore holds admission timestamps in process memory. Suitable
// for single-process deployments and tests; counts are not shared across
// gateway instances.
package memstore

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	stamps    []int64
	expiresAt time.Time
}

type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used for key expiry. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// get returns the live entry for key, dropping it first if its TTL lapsed.
func (s *Store) get(key string) *entry {
	ent, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !ent.expiresAt.IsZero() && s.now().After(ent.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return ent
}

func (s *Store) RemoveBefore(_ context.Context, key string, cutoff int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.get(key)
	if ent == nil {
		return nil
	}
	kept := ent.stamps[:0]
	for _, at := range ent.stamps {
		if at >= cutoff {
			kept = append(kept, at)
		}
	}
	ent.stamps = kept
	return nil
}

func (s *Store) Count(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.get(key)
	if ent == nil {
		return 0, nil
	}
	return int64(len(ent.stamps)), nil
}

func (s *Store) Record(_ context.Context, key string, at int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.get(key)
	if ent == nil {
		ent = &entry{}
		s.entries[key] = ent
	}
	ent.stamps = append(ent.stamps, at)
	ent.expiresAt = s.now().Add(ttl)
	return nil
}

// Keys reports how many partition keys are currently tracked.
func (s *Store) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
