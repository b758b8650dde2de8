package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps per-identity failure timestamps in memory using a
// sliding window. Entries are created lazily, pruned by window age on every
// access, and removed entirely on Clear, so the map never needs a separate
// cleanup pass.
type MemoryStore struct {
	mu      sync.Mutex
	ledgers map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ledgers: make(map[string][]time.Time)}
}

func (s *MemoryStore) RecordFailure(_ context.Context, key string, now time.Time, window time.Duration) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := prune(s.ledgers[key], now, window)
	ts = append(ts, now)
	s.ledgers[key] = ts
	return snapshot(ts), nil
}

func (s *MemoryStore) Failures(_ context.Context, key string, now time.Time, window time.Duration) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := prune(s.ledgers[key], now, window)
	if len(ts) == 0 {
		delete(s.ledgers, key)
		return nil, nil
	}
	s.ledgers[key] = ts
	return snapshot(ts), nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.ledgers[key]
	delete(s.ledgers, key)
	return existed, nil
}

// prune drops timestamps older than the window. The slice stays ascending
// because failures are appended in time order under the store lock.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(ts); i++ {
		if ts[i].After(cutoff) {
			break
		}
	}
	return ts[i:]
}

func snapshot(ts []time.Time) []time.Time {
	out := make([]time.Time, len(ts))
	copy(out, ts)
	return out
}
