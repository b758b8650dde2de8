package credential

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"biobind/internal/biometric/models"
	"biobind/pkg/platform/sentinel"
)

// MemoryStore holds credentials in memory for a single instance. The active
// index and the insert happen under one lock, which is this store's version
// of the storage-level uniqueness constraint: two concurrent registrations
// for the same pair serialize, and the second one hits ErrConflict.
type MemoryStore struct {
	mu sync.Mutex
	// active indexes the at-most-one active credential per pair.
	active map[pairKey]*models.Credential
	// all retains every credential ever registered, active or not.
	all []*models.Credential
}

type pairKey struct {
	identityRef string
	modality    models.Modality
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{active: make(map[pairKey]*models.Credential)}
}

func (s *MemoryStore) Register(_ context.Context, cred *models.Credential) error {
	key := pairKey{cred.IdentityRef, cred.Modality}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.active[key]; exists {
		return sentinel.ErrConflict
	}
	stored := clone(cred)
	s.active[key] = stored
	s.all = append(s.all, stored)
	return nil
}

func (s *MemoryStore) FindActive(_ context.Context, identityRef string, modality models.Modality) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.active[pairKey{identityRef, modality}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(cred), nil
}

func (s *MemoryStore) Update(_ context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.all {
		if existing.ID == cred.ID {
			stored := clone(cred)
			s.all[i] = stored
			key := pairKey{cred.IdentityRef, cred.Modality}
			if stored.Active {
				s.active[key] = stored
			} else if current, ok := s.active[key]; ok && current.ID == cred.ID {
				delete(s.active, key)
			}
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *MemoryStore) Deactivate(_ context.Context, id uuid.UUID, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cred := range s.all {
		if cred.ID == id {
			cred.Deactivate(reason, now)
			key := pairKey{cred.IdentityRef, cred.Modality}
			if current, ok := s.active[key]; ok && current.ID == id {
				delete(s.active, key)
			}
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *MemoryStore) ListByIdentity(_ context.Context, identityRef string, includeInactive bool) ([]*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Credential
	for _, cred := range s.all {
		if cred.IdentityRef != identityRef {
			continue
		}
		if !cred.Active && !includeInactive {
			continue
		}
		out = append(out, clone(cred))
	}
	return out, nil
}

// clone keeps callers from mutating stored state through shared pointers.
func clone(cred *models.Credential) *models.Credential {
	c := *cred
	c.Fingerprint = append([]float64(nil), cred.Fingerprint...)
	if cred.LastVerifiedAt != nil {
		t := *cred.LastVerifiedAt
		c.LastVerifiedAt = &t
	}
	if cred.DeactivatedAt != nil {
		t := *cred.DeactivatedAt
		c.DeactivatedAt = &t
	}
	return &c
}
