package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists audit events in PostgreSQL. Pure I/O; event
// enrichment happens in the publisher.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (id, category, action, identity_ref, modality, purpose, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Category,
		event.Action,
		event.IdentityRef,
		event.Modality,
		event.Purpose,
		event.Reason,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByIdentity(ctx context.Context, identityRef string) ([]Event, error) {
	query := `
		SELECT id, category, action, identity_ref, modality, purpose, reason, occurred_at
		FROM audit_events
		WHERE identity_ref = $1
		ORDER BY occurred_at
	`
	rows, err := s.db.QueryContext(ctx, query, identityRef)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Category, &e.Action, &e.IdentityRef, &e.Modality, &e.Purpose, &e.Reason, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
