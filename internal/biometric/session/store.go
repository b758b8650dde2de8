// Package session holds pending captures between beginCapture and
// completeCapture. Entries are single-use and TTL-bound.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"biobind/internal/biometric/models"
)

// tokenBytes sizes the session token at 256 bits of entropy, comfortably
// above the 128-bit floor the protocol requires.
const tokenBytes = 32

// Store is the port for the pending-capture cache.
//
// Take must be a single atomic read-and-evict: the first successful Take
// consumes the entry and every later Take on the same token fails with
// sentinel.ErrNotFound (or sentinel.ErrExpired when the entry outlived its
// TTL before being read). Implementations must make concurrent Take calls
// on one token yield exactly one winner.
type Store interface {
	Put(ctx context.Context, sess *models.CaptureSession) error
	Take(ctx context.Context, token string) (*models.CaptureSession, error)
}

// NewToken returns an unguessable single-use session token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
