// Package audit records security-relevant protocol events. Events carry the
// identity and step involved but never raw payloads or feature data.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies events for retention and routing. Security events feed
// monitoring pipelines; compliance events back the credential audit trail.
type Category string

const (
	CategorySecurity   Category = "security"
	CategoryCompliance Category = "compliance"
	CategoryOperations Category = "operations"
)

// Action names the protocol step an event describes.
type Action string

const (
	ActionCaptureStarted       Action = "capture_started"
	ActionCaptureRejected      Action = "capture_rejected"
	ActionSignatureRejected    Action = "signature_rejected"
	ActionCredentialRegistered Action = "credential_registered"
	ActionVerificationSuccess  Action = "verification_succeeded"
	ActionVerificationFailed   Action = "verification_failed"
	ActionLockoutTriggered     Action = "lockout_triggered"
	ActionLockoutCleared       Action = "lockout_cleared"
	ActionCredentialRemoved    Action = "credential_removed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID          uuid.UUID
	Category    Category
	Action      Action
	IdentityRef string
	Modality    string
	// Purpose is set on signature events: the protocol step the signature
	// was presented for.
	Purpose string
	// Reason is a short operator-facing explanation. Never contains payload
	// or feature content.
	Reason     string
	OccurredAt time.Time
}
