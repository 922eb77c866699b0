package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const contactColumns = `id, email, phone_number, linked_id, link_precedence, created_at, updated_at, deleted_at`

// PostgresStore persists contacts in PostgreSQL. This store is pure I/O;
// every linking decision belongs in the resolver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed contact store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindMatching(ctx context.Context, email, phoneNumber *string) ([]Contact, error) {
	clauses := ""
	args := []any{}
	if email != nil && *email != "" {
		args = append(args, *email)
		clauses = fmt.Sprintf("email = $%d", len(args))
	}
	if phoneNumber != nil && *phoneNumber != "" {
		args = append(args, *phoneNumber)
		if clauses != "" {
			clauses += " OR "
		}
		clauses += fmt.Sprintf("phone_number = $%d", len(args))
	}
	if clauses == "" {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s FROM contacts
		WHERE (%s) AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
	`, contactColumns, clauses)

	return s.queryContacts(ctx, query, args...)
}

func (s *PostgresStore) FindChildren(ctx context.Context, parentID int64) ([]Contact, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM contacts
		WHERE linked_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
	`, contactColumns)
	return s.queryContacts(ctx, query, parentID)
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (Contact, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM contacts
		WHERE id = $1 AND deleted_at IS NULL
	`, contactColumns)

	contact, err := scanContact(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, fmt.Errorf("find contact by id: %w", err)
	}
	return contact, nil
}

func (s *PostgresStore) FindByIDs(ctx context.Context, ids []int64) ([]Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT %s FROM contacts
		WHERE id = ANY($1) AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
	`, contactColumns)
	return s.queryContacts(ctx, query, pq.Array(ids))
}

func (s *PostgresStore) Create(ctx context.Context, email, phoneNumber *string, linkedID *int64, precedence LinkPrecedence) (Contact, error) {
	query := fmt.Sprintf(`
		INSERT INTO contacts (email, phone_number, linked_id, link_precedence)
		VALUES ($1, $2, $3, $4)
		RETURNING %s
	`, contactColumns)

	contact, err := scanContact(s.db.QueryRowContext(ctx, query,
		nullString(email), nullString(phoneNumber), nullInt64(linkedID), string(precedence)))
	if err != nil {
		return Contact{}, fmt.Errorf("create contact: %w", err)
	}
	return contact, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, precedence LinkPrecedence, linkedID *int64) error {
	query := `
		UPDATE contacts
		SET link_precedence = $2, linked_id = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, id, string(precedence), nullInt64(linkedID))
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contact rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateMany(ctx context.Context, whereLinkedID, newLinkedID int64) error {
	query := `
		UPDATE contacts
		SET linked_id = $2, updated_at = NOW()
		WHERE linked_id = $1 AND deleted_at IS NULL
	`
	if _, err := s.db.ExecContext(ctx, query, whereLinkedID, newLinkedID); err != nil {
		return fmt.Errorf("repoint contacts: %w", err)
	}
	return nil
}

func (s *PostgresStore) queryContacts(ctx context.Context, query string, args ...any) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}

type contactRow interface {
	Scan(dest ...any) error
}

func scanContact(row contactRow) (Contact, error) {
	var (
		contact   Contact
		email     sql.NullString
		phone     sql.NullString
		linkedID  sql.NullInt64
		deletedAt sql.NullTime
	)
	err := row.Scan(&contact.ID, &email, &phone, &linkedID,
		&contact.LinkPrecedence, &contact.CreatedAt, &contact.UpdatedAt, &deletedAt)
	if err != nil {
		return Contact{}, err
	}
	if email.Valid {
		contact.Email = &email.String
	}
	if phone.Valid {
		contact.PhoneNumber = &phone.String
	}
	if linkedID.Valid {
		contact.LinkedID = &linkedID.Int64
	}
	if deletedAt.Valid {
		contact.DeletedAt = &deletedAt.Time
	}
	return contact, nil
}

func nullString(v *string) sql.NullString {
	if v == nil || *v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
