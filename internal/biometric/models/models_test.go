package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biobind/internal/biometric/models"
	dErrors "biobind/pkg/domain-errors"
)

func TestParseModality(t *testing.T) {
	m, err := models.ParseModality("  Facial ")
	require.NoError(t, err)
	assert.Equal(t, models.ModalityFacial, m)

	// The modality set is open; unknown tags parse fine.
	m, err = models.ParseModality("iris")
	require.NoError(t, err)
	assert.Equal(t, models.Modality("iris"), m)

	_, err = models.ParseModality("   ")
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInvalidInput, dErrors.CodeOf(err))
}

func TestFeatureVectorValidate(t *testing.T) {
	assert.NoError(t, models.FeatureVector{0, 0.5, 1}.Validate())

	err := models.FeatureVector{}.Validate()
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInvalidInput, dErrors.CodeOf(err))

	err = models.FeatureVector{0.5, 1.2}.Validate()
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInvalidInput, dErrors.CodeOf(err))

	err = models.FeatureVector{-0.1}.Validate()
	require.Error(t, err)
}

func TestParseAction(t *testing.T) {
	a, err := models.ParseAction(" REGISTER ")
	require.NoError(t, err)
	assert.Equal(t, models.ActionRegister, a)

	a, err = models.ParseAction("verify")
	require.NoError(t, err)
	assert.Equal(t, models.ActionVerify, a)

	_, err = models.ParseAction("remove")
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInvalidInput, dErrors.CodeOf(err))
}

func TestCredentialLifecycle(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cred := models.NewCredential("identity-1", models.ModalityFacial, "hash", []float64{0.5}, 0.9, now)

	require.True(t, cred.Active)
	assert.NotEqual(t, "", cred.ID.String())
	assert.Nil(t, cred.LastVerifiedAt)

	cred.RecordAttempt()
	cred.RecordSuccess(0.95, now.Add(time.Minute))
	assert.Equal(t, 1, cred.VerificationCount)
	assert.Equal(t, 1, cred.SuccessfulVerifications)
	require.NotNil(t, cred.LastVerifiedAt)
	assert.Equal(t, now.Add(time.Minute), *cred.LastVerifiedAt)
	assert.InDelta(t, 0.95, cred.LastSimilarityScore, 1e-9)

	cred.Deactivate("removed by owner", now.Add(time.Hour))
	require.False(t, cred.Active)
	assert.Equal(t, "removed by owner", cred.DeactivationReason)

	// Idempotent: a second deactivation does not rewrite the reason.
	cred.Deactivate("other reason", now.Add(2*time.Hour))
	assert.Equal(t, "removed by owner", cred.DeactivationReason)
	assert.Equal(t, now.Add(time.Hour), *cred.DeactivatedAt)
}

func TestSessionStateMachine(t *testing.T) {
	assert.True(t, models.StateIdle.CanTransitionTo(models.StatePending))
	assert.False(t, models.StateIdle.CanTransitionTo(models.StateVerified))

	for _, terminal := range []models.SessionState{
		models.StateRegistered, models.StateVerified, models.StateRejected, models.StateExpired,
	} {
		assert.True(t, models.StatePending.CanTransitionTo(terminal), "pending -> %s", terminal)
		assert.True(t, terminal.Terminal())
		assert.False(t, terminal.CanTransitionTo(models.StatePending), "%s must be terminal", terminal)
	}

	assert.False(t, models.StatePending.Terminal())
	assert.False(t, models.StateIdle.Terminal())
}

func TestCaptureSessionExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sess := &models.CaptureSession{ExpiresAt: now.Add(10 * time.Minute)}

	assert.False(t, sess.Expired(now))
	assert.True(t, sess.Expired(now.Add(10*time.Minute)), "expiry instant itself is expired")
	assert.True(t, sess.Expired(now.Add(time.Hour)))
}
