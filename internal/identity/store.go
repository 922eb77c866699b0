package identity

import (
	"context"

	"unify/pkg/domerrors"
)

// ErrNotFound keeps store-specific misses consistent across the in-memory
// and PostgreSQL implementations.
var ErrNotFound = domerrors.New(domerrors.CodeNotFound, "contact not found")

// Store is the abstract contact store the resolver runs against. Soft-deleted
// rows are invisible to every operation. Stores are interface-driven to keep
// the resolver testable and to allow swapping persistence without rewiring
// the domain logic.
type Store interface {
	// FindMatching returns contacts whose email or phone equals the given
	// values, ordered by created_at ascending. Clauses for nil or empty
	// fields are omitted entirely, never matched against NULL.
	FindMatching(ctx context.Context, email, phoneNumber *string) ([]Contact, error)

	// FindChildren returns contacts with linked_id = parentID, ordered by
	// created_at ascending.
	FindChildren(ctx context.Context, parentID int64) ([]Contact, error)

	// FindByID returns a single contact or ErrNotFound.
	FindByID(ctx context.Context, id int64) (Contact, error)

	// FindByIDs returns the contacts with the given ids, ordered by
	// created_at ascending. Missing or deleted ids are simply absent.
	FindByIDs(ctx context.Context, ids []int64) ([]Contact, error)

	// Create inserts a new contact with a server-assigned id and timestamps.
	Create(ctx context.Context, email, phoneNumber *string, linkedID *int64, precedence LinkPrecedence) (Contact, error)

	// Update patches precedence and linkage on one row, bumping updated_at.
	// A nil linkedID clears the column.
	Update(ctx context.Context, id int64, precedence LinkPrecedence, linkedID *int64) error

	// UpdateMany re-points every contact with linked_id = whereLinkedID to
	// newLinkedID, bumping updated_at. Used to keep the graph flattened when
	// a primary is demoted.
	UpdateMany(ctx context.Context, whereLinkedID, newLinkedID int64) error
}
