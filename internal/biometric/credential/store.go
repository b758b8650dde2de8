// Package credential persists the durable identity↔modality bindings.
// Stores are pure I/O; match decisions live in the verification engine.
package credential

import (
	"context"
	"time"

	"github.com/google/uuid"

	"biobind/internal/biometric/models"
)

// Store is the credential persistence port.
//
// Register must enforce the one-active-credential-per-(identity, modality)
// invariant inside the storage layer itself, with a uniqueness constraint
// rather than a prior existence check, so concurrent duplicate registrations
// resolve to exactly one success and one sentinel.ErrConflict.
type Store interface {
	Register(ctx context.Context, cred *models.Credential) error
	// FindActive returns the active credential for the pair, or
	// sentinel.ErrNotFound.
	FindActive(ctx context.Context, identityRef string, modality models.Modality) (*models.Credential, error)
	// Update persists mutated verification counters and timestamps.
	Update(ctx context.Context, cred *models.Credential) error
	// Deactivate soft-deletes a credential; the row survives for audit.
	Deactivate(ctx context.Context, id uuid.UUID, reason string, now time.Time) error
	// ListByIdentity returns the identity's credentials, including
	// deactivated ones when includeInactive is set, ordered by creation.
	ListByIdentity(ctx context.Context, identityRef string, includeInactive bool) ([]*models.Credential, error)
}
