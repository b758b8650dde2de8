//go:build integration

package credential_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"biobind/internal/biometric/credential"
	"biobind/internal/biometric/models"
	"biobind/pkg/platform/sentinel"
	"biobind/pkg/testutil/containers"
)

// PostgresStoreSuite runs the credential store against a real Postgres with
// the production schema, so the partial unique index does the conflict work.
type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *credential.PostgresStore
	now   time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())

	schema, err := os.ReadFile("../../../migrations/0001_credentials.sql")
	s.Require().NoError(err)
	_, err = s.pg.DB.Exec(string(schema))
	s.Require().NoError(err)

	s.store = credential.NewPostgresStore(s.pg.DB)
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.pg.DB.Exec("TRUNCATE credentials")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newCredential(identity string, modality models.Modality) *models.Credential {
	return models.NewCredential(identity, modality, "hash-"+identity, []float64{0.5, 0.6, 0.7}, 0.85, s.now)
}

func (s *PostgresStoreSuite) TestRegisterRoundTrip() {
	ctx := context.Background()
	cred := s.newCredential("identity-1", models.ModalityFacial)

	s.Require().NoError(s.store.Register(ctx, cred))

	got, err := s.store.FindActive(ctx, "identity-1", models.ModalityFacial)
	s.Require().NoError(err)
	s.Equal(cred.ID, got.ID)
	s.Equal(cred.CommitmentHash, got.CommitmentHash)
	s.Equal(cred.Fingerprint, got.Fingerprint)
	s.Nil(got.LastVerifiedAt)
}

func (s *PostgresStoreSuite) TestUniqueIndexRejectsDuplicateActive() {
	ctx := context.Background()
	s.Require().NoError(s.store.Register(ctx, s.newCredential("identity-1", models.ModalityFacial)))

	err := s.store.Register(ctx, s.newCredential("identity-1", models.ModalityFacial))
	s.ErrorIs(err, sentinel.ErrConflict)

	// A different modality for the same identity is fine.
	s.NoError(s.store.Register(ctx, s.newCredential("identity-1", models.ModalityVoice)))
}

func (s *PostgresStoreSuite) TestConcurrentRegisterOneWinner() {
	ctx := context.Background()

	const racers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes, conflicts int

	wg.Add(racers)
	for range racers {
		go func() {
			defer wg.Done()
			err := s.store.Register(ctx, s.newCredential("identity-1", models.ModalityFacial))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, sentinel.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, successes)
	s.Equal(racers-1, conflicts)
}

func (s *PostgresStoreSuite) TestDeactivateFreesThePair() {
	ctx := context.Background()
	cred := s.newCredential("identity-1", models.ModalityFacial)
	s.Require().NoError(s.store.Register(ctx, cred))

	s.Require().NoError(s.store.Deactivate(ctx, cred.ID, "removed by owner", s.now.Add(time.Hour)))

	_, err := s.store.FindActive(ctx, "identity-1", models.ModalityFacial)
	s.ErrorIs(err, sentinel.ErrNotFound)

	// The partial index only covers active rows: the pair is free again.
	s.NoError(s.store.Register(ctx, s.newCredential("identity-1", models.ModalityFacial)))

	all, err := s.store.ListByIdentity(ctx, "identity-1", true)
	s.Require().NoError(err)
	s.Len(all, 2)

	active, err := s.store.ListByIdentity(ctx, "identity-1", false)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.True(active[0].Active)
}

func (s *PostgresStoreSuite) TestUpdatePersistsCounters() {
	ctx := context.Background()
	cred := s.newCredential("identity-1", models.ModalityFacial)
	s.Require().NoError(s.store.Register(ctx, cred))

	cred.RecordAttempt()
	cred.RecordSuccess(0.92, s.now.Add(time.Minute))
	s.Require().NoError(s.store.Update(ctx, cred))

	got, err := s.store.FindActive(ctx, "identity-1", models.ModalityFacial)
	s.Require().NoError(err)
	s.Equal(1, got.VerificationCount)
	s.Equal(1, got.SuccessfulVerifications)
	s.Require().NotNil(got.LastVerifiedAt)
	s.InDelta(0.92, got.LastSimilarityScore, 1e-9)
}

func (s *PostgresStoreSuite) TestUpdateUnknownCredentialNotFound() {
	err := s.store.Update(context.Background(), s.newCredential("identity-1", models.ModalityFacial))
	s.ErrorIs(err, sentinel.ErrNotFound)
}
