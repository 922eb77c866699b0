package identity

import "time"

// LinkPrecedence marks a contact as the canonical representative of its
// component or as a subordinate record linked to one.
type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

// Contact is one stored identity record. Secondary contacts always point
// directly at the root primary of their component, never at another
// secondary.
type Contact struct {
	ID             int64
	Email          *string
	PhoneNumber    *string
	LinkedID       *int64
	LinkPrecedence LinkPrecedence
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// IsPrimary reports whether the contact is the canonical record of its
// component.
func (c Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

// Observation is one resolution input. At least one field is present and
// normalized by the time it reaches the resolver; the transport layer owns
// validation.
type Observation struct {
	Email       *string
	PhoneNumber *string
}

// ConsolidatedContact is the deterministic projection of a connected
// component: the primary id, every known email and phone (primary's values
// first, duplicates removed), and the secondary ids in creation order.
type ConsolidatedContact struct {
	PrimaryContactID    int64
	Emails              []string
	PhoneNumbers        []string
	SecondaryContactIDs []int64
}
