// Package signature gates every protocol step behind a cryptographic
// signature over a purpose-bound message, so a signature captured for one
// step cannot be replayed for another.
package signature

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"

	"biobind/internal/audit"
	dErrors "biobind/pkg/domain-errors"
)

// Purpose binds a signature to one protocol step.
type Purpose string

const (
	PurposeCapture  Purpose = "capture"
	PurposeRegister Purpose = "register"
	PurposeVerify   Purpose = "verify"
	PurposeRemoval  Purpose = "removal"
)

// messagePrefix versions the signed message layout. Bump it if the layout
// ever changes so old signatures cannot cross over.
const messagePrefix = "biobind/v1"

// Message builds the canonical bytes an identity must sign for a given step
// and subject (session token or identity key).
func Message(purpose Purpose, subject string) []byte {
	return fmt.Appendf(nil, "%s|%s|%s", messagePrefix, purpose, subject)
}

// Gate verifies that a signature authorizes one protocol step on one
// subject. Implementations must never log payload content on failure.
type Gate interface {
	Verify(ctx context.Context, identityKey string, purpose Purpose, subject string, sig []byte) error
}

// Ed25519Gate verifies Ed25519 signatures. The identity key is the
// hex-encoded 32-byte public key that also serves as the identity reference.
type Ed25519Gate struct {
	logger *slog.Logger
	audit  *audit.Publisher
}

// NewEd25519Gate constructs the gate. The audit publisher may be nil (unit
// tests); signature failures are then only logged.
func NewEd25519Gate(logger *slog.Logger, auditPub *audit.Publisher) *Ed25519Gate {
	return &Ed25519Gate{logger: logger, audit: auditPub}
}

func (g *Ed25519Gate) Verify(ctx context.Context, identityKey string, purpose Purpose, subject string, sig []byte) error {
	pub, err := DecodeKey(identityKey)
	if err != nil {
		return g.reject(ctx, identityKey, purpose, "malformed identity key")
	}
	if len(sig) != ed25519.SignatureSize {
		return g.reject(ctx, identityKey, purpose, "malformed signature")
	}
	if !ed25519.Verify(pub, Message(purpose, subject), sig) {
		return g.reject(ctx, identityKey, purpose, "signature does not verify")
	}
	return nil
}

// reject records the security event with identity and purpose only, never
// the signed content, and returns the domain error.
func (g *Ed25519Gate) reject(ctx context.Context, identityKey string, purpose Purpose, reason string) error {
	g.logger.Warn("signature rejected",
		"identity", identityKey,
		"purpose", purpose,
	)
	if g.audit != nil {
		g.audit.Emit(ctx, audit.Event{
			Category:    audit.CategorySecurity,
			Action:      audit.ActionSignatureRejected,
			IdentityRef: identityKey,
			Purpose:     string(purpose),
			Reason:      reason,
		})
	}
	return dErrors.Newf(dErrors.CodeInvalidSignature, "signature rejected for purpose %q", purpose)
}

// DecodeKey parses a hex-encoded Ed25519 public key.
func DecodeKey(identityKey string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(identityKey)
	if err != nil {
		return nil, fmt.Errorf("decode identity key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("identity key is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// EncodeKey renders a public key in the identity reference format.
func EncodeKey(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// Sign produces a signature for a protocol step. Production signers hold
// their own keys; this helper exists for clients and tests.
func Sign(priv ed25519.PrivateKey, purpose Purpose, subject string) []byte {
	return ed25519.Sign(priv, Message(purpose, subject))
}
