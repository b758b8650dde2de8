// Package identity is the port to the external identity directory. The
// biometric core only needs to know that a reference exists and is active;
// ownership of identities lives elsewhere.
package identity

import (
	"context"
	"sync"
	"time"

	"biobind/pkg/platform/sentinel"
)

// Identity is the directory's view of an account: an opaque reference (a
// public key or wallet address) and whether it may use the service.
type Identity struct {
	Ref       string
	Active    bool
	CreatedAt time.Time
}

// Directory looks identities up by reference.
type Directory interface {
	Lookup(ctx context.Context, ref string) (*Identity, error)
}

// MemoryDirectory is a test and development directory.
type MemoryDirectory struct {
	mu         sync.RWMutex
	identities map[string]*Identity
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{identities: make(map[string]*Identity)}
}

// Add registers an identity reference.
func (d *MemoryDirectory) Add(ref string, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identities[ref] = &Identity{Ref: ref, Active: active, CreatedAt: time.Now()}
}

func (d *MemoryDirectory) Lookup(_ context.Context, ref string) (*Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ident, ok := d.identities[ref]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *ident
	return &out, nil
}

// Permissive treats every reference as an active identity. Used when no
// external directory is wired; the signature gate still proves key
// possession.
type Permissive struct{}

func (Permissive) Lookup(_ context.Context, ref string) (*Identity, error) {
	return &Identity{Ref: ref, Active: true}, nil
}
