// Package audit keeps an append-only trail of the resolver's linking
// decisions. The trail is diagnostic: recording is best-effort and never
// changes the outcome of a resolution.
package audit

import "time"

// Action labels one state-changing resolver decision.
type Action string

const (
	ActionCreatePrimary   Action = "create_primary"
	ActionCreateSecondary Action = "create_secondary"
	ActionDemotePrimary   Action = "demote_primary"
	ActionPromotePrimary  Action = "promote_primary"
)

// Event records one linking decision: which contact it touched, the primary
// it now hangs under, and the observation values that triggered it.
type Event struct {
	ID            int64
	Action        Action
	ContactID     int64
	PrimaryID     *int64
	ObservedEmail *string
	ObservedPhone *string
	CreatedAt     time.Time
}
