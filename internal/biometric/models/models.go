// Package models holds the biometric binding domain types. Types here carry
// no I/O; stores persist them and services mutate them through their domain
// methods.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "biobind/pkg/domain-errors"
)

// Modality tags the biometric channel a credential is bound to. The set is
// open: extractors register themselves per tag, so new modalities need no
// changes here.
type Modality string

// Well-known modality tags. Anything else is legal as long as an extractor
// is registered for it.
const (
	ModalityFacial Modality = "facial"
	ModalityVoice  Modality = "voice"
)

// ParseModality normalizes and validates a modality tag.
func ParseModality(s string) (Modality, error) {
	m := Modality(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "modality is required")
	}
	return m, nil
}

func (m Modality) String() string { return string(m) }

// FeatureVector is a normalized pattern extracted from a raw capture. Every
// component must lie in [0,1]. Feature vectors are transient: they live in
// a capture session until it is consumed and are never written to durable
// storage or logs.
type FeatureVector []float64

// Validate checks the vector is non-empty and normalized.
func (f FeatureVector) Validate() error {
	if len(f) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "feature vector is empty")
	}
	for _, v := range f {
		if v < 0 || v > 1 {
			return dErrors.New(dErrors.CodeInvalidInput, "feature vector component out of [0,1]")
		}
	}
	return nil
}

// Credential is the durable, one-way-hashed binding of one identity to one
// modality. At most one active credential may exist per (identity, modality);
// deactivation is soft so the audit trail survives.
type Credential struct {
	ID                      uuid.UUID
	IdentityRef             string
	Modality                Modality
	CommitmentHash          string
	Fingerprint             []float64
	QualityScore            float64
	VerificationCount       int
	SuccessfulVerifications int
	LastVerifiedAt          *time.Time
	LastSimilarityScore     float64
	Active                  bool
	CreatedAt               time.Time
	DeactivatedAt           *time.Time
	DeactivationReason      string
}

// NewCredential builds an active credential from a consumed capture session.
// Raw features are deliberately absent: only the commitment and fingerprint
// survive registration.
func NewCredential(identityRef string, modality Modality, commitmentHash string, fp []float64, quality float64, now time.Time) *Credential {
	return &Credential{
		ID:             uuid.New(),
		IdentityRef:    identityRef,
		Modality:       modality,
		CommitmentHash: commitmentHash,
		Fingerprint:    fp,
		QualityScore:   quality,
		Active:         true,
		CreatedAt:      now,
	}
}

// RecordAttempt bumps the attempt counter. Called for every verification
// that reaches this credential, matched or not, so the success ratio in the
// verification score stays honest.
func (c *Credential) RecordAttempt() {
	c.VerificationCount++
}

// RecordSuccess marks a matched verification.
func (c *Credential) RecordSuccess(similarity float64, now time.Time) {
	c.SuccessfulVerifications++
	c.LastSimilarityScore = similarity
	t := now
	c.LastVerifiedAt = &t
}

// Deactivate soft-deletes the credential. Idempotent.
func (c *Credential) Deactivate(reason string, now time.Time) {
	if !c.Active {
		return
	}
	c.Active = false
	c.DeactivationReason = reason
	t := now
	c.DeactivatedAt = &t
}

// CaptureSession is one pending capture, addressed by an unguessable
// single-use token. It is consumed atomically on first read and evicted by
// TTL otherwise.
type CaptureSession struct {
	Token        string
	IdentityRef  string
	Modality     Modality
	Features     FeatureVector
	Fingerprint  []float64
	QualityScore float64
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the session has outlived its TTL at the given
// instant.
func (s *CaptureSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Action selects what a completeCapture call does with the pending session.
type Action string

const (
	ActionRegister Action = "register"
	ActionVerify   Action = "verify"
)

// ParseAction validates the action field of a completion request.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionRegister, ActionVerify:
		return a, nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "action must be %q or %q", ActionRegister, ActionVerify)
	}
}

// SessionState tracks a capture session through the protocol. Idle is the
// implicit state before a token exists; the four right-hand states are
// terminal.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StatePending    SessionState = "pending"
	StateRegistered SessionState = "registered"
	StateVerified   SessionState = "verified"
	StateRejected   SessionState = "rejected"
	StateExpired    SessionState = "expired"
)

// CanTransitionTo encodes the legal protocol transitions:
// Idle → Pending → {Registered | Verified | Rejected | Expired}.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	switch s {
	case StateIdle:
		return next == StatePending
	case StatePending:
		switch next {
		case StateRegistered, StateVerified, StateRejected, StateExpired:
			return true
		}
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	switch s {
	case StateRegistered, StateVerified, StateRejected, StateExpired:
		return true
	}
	return false
}

// Outcome is the terminal state reported to the caller of completeCapture.
type Outcome = SessionState
