package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists audit events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO link_audit (action, contact_id, primary_id, observed_email, observed_phone)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		string(event.Action),
		event.ContactID,
		nullInt64(event.PrimaryID),
		nullString(event.ObservedEmail),
		nullString(event.ObservedPhone),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByPrimary(ctx context.Context, primaryID int64) ([]Event, error) {
	query := `
		SELECT id, action, contact_id, primary_id, observed_email, observed_phone, created_at
		FROM link_audit
		WHERE primary_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, primaryID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event   Event
			primary sql.NullInt64
			email   sql.NullString
			phone   sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.Action, &event.ContactID, &primary, &email, &phone, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if primary.Valid {
			event.PrimaryID = &primary.Int64
		}
		if email.Valid {
			event.ObservedEmail = &email.String
		}
		if phone.Valid {
			event.ObservedPhone = &phone.String
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil || *v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
