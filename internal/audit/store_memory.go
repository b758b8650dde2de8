package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps audit events in memory. Suitable for a single instance
// and for tests; production uses the Postgres store.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) ListByIdentity(_ context.Context, identityRef string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.IdentityRef == identityRef {
			out = append(out, e)
		}
	}
	return out, nil
}
