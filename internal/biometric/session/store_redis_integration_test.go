//go:build integration

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"biobind/internal/biometric/models"
	"biobind/internal/biometric/session"
	"biobind/pkg/platform/sentinel"
	"biobind/pkg/testutil/containers"
)

func TestRedisStoreAgainstRealRedis(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	store := session.NewRedisStore(rc.Client)
	ctx := context.Background()

	now := time.Now()
	sess := &models.CaptureSession{
		Token:        "tok-integration",
		IdentityRef:  "identity-1",
		Modality:     models.ModalityFacial,
		Features:     []float64{0.1, 0.2},
		Fingerprint:  []float64{0.15},
		QualityScore: 0.9,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Minute),
	}
	require.NoError(t, store.Put(ctx, sess))

	got, err := store.Take(ctx, "tok-integration")
	require.NoError(t, err)
	require.Equal(t, sess.IdentityRef, got.IdentityRef)
	require.Equal(t, sess.Features, got.Features)

	// GETDEL spent the token.
	_, err = store.Take(ctx, "tok-integration")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}
