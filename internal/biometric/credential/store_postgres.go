package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"biobind/internal/biometric/models"
	"biobind/pkg/platform/sentinel"
)

// PostgresStore persists credentials in PostgreSQL. The one-active-per-pair
// invariant is enforced by the partial unique index in
// migrations/0001_credentials.sql, so concurrent duplicate registrations
// resolve at the database rather than in application code.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Register(ctx context.Context, cred *models.Credential) error {
	query := `
		INSERT INTO credentials (
			id, identity_ref, modality, commitment_hash, fingerprint,
			quality_score, verification_count, successful_verifications,
			last_verified_at, last_similarity_score, active, created_at,
			deactivated_at, deactivation_reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		cred.ID,
		cred.IdentityRef,
		cred.Modality,
		cred.CommitmentHash,
		pq.Array(cred.Fingerprint),
		cred.QualityScore,
		cred.VerificationCount,
		cred.SuccessfulVerifications,
		cred.LastVerifiedAt,
		cred.LastSimilarityScore,
		cred.Active,
		cred.CreatedAt,
		cred.DeactivatedAt,
		cred.DeactivationReason,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("register credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, identityRef string, modality models.Modality) (*models.Credential, error) {
	query := selectCredential + `
		WHERE identity_ref = $1 AND modality = $2 AND active
	`
	cred, err := scanCredential(s.db.QueryRowContext(ctx, query, identityRef, modality))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find active credential: %w", err)
	}
	return cred, nil
}

func (s *PostgresStore) Update(ctx context.Context, cred *models.Credential) error {
	query := `
		UPDATE credentials SET
			verification_count = $2,
			successful_verifications = $3,
			last_verified_at = $4,
			last_similarity_score = $5,
			active = $6,
			deactivated_at = $7,
			deactivation_reason = $8
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		cred.ID,
		cred.VerificationCount,
		cred.SuccessfulVerifications,
		cred.LastVerifiedAt,
		cred.LastSimilarityScore,
		cred.Active,
		cred.DeactivatedAt,
		cred.DeactivationReason,
	)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, id uuid.UUID, reason string, now time.Time) error {
	query := `
		UPDATE credentials
		SET active = FALSE, deactivated_at = $2, deactivation_reason = $3
		WHERE id = $1 AND active
	`
	result, err := s.db.ExecContext(ctx, query, id, now, reason)
	if err != nil {
		return fmt.Errorf("deactivate credential: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate credential rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByIdentity(ctx context.Context, identityRef string, includeInactive bool) ([]*models.Credential, error) {
	query := selectCredential + `
		WHERE identity_ref = $1 AND (active OR $2)
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, identityRef, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []*models.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, cred)
	}
	return out, rows.Err()
}

const selectCredential = `
	SELECT id, identity_ref, modality, commitment_hash, fingerprint,
	       quality_score, verification_count, successful_verifications,
	       last_verified_at, last_similarity_score, active, created_at,
	       deactivated_at, deactivation_reason
	FROM credentials
`

type credentialRow interface {
	Scan(dest ...any) error
}

func scanCredential(row credentialRow) (*models.Credential, error) {
	var cred models.Credential
	var lastVerifiedAt, deactivatedAt sql.NullTime
	if err := row.Scan(
		&cred.ID,
		&cred.IdentityRef,
		&cred.Modality,
		&cred.CommitmentHash,
		pq.Array(&cred.Fingerprint),
		&cred.QualityScore,
		&cred.VerificationCount,
		&cred.SuccessfulVerifications,
		&lastVerifiedAt,
		&cred.LastSimilarityScore,
		&cred.Active,
		&cred.CreatedAt,
		&deactivatedAt,
		&cred.DeactivationReason,
	); err != nil {
		return nil, err
	}
	if lastVerifiedAt.Valid {
		cred.LastVerifiedAt = &lastVerifiedAt.Time
	}
	if deactivatedAt.Valid {
		cred.DeactivatedAt = &deactivatedAt.Time
	}
	return &cred, nil
}
