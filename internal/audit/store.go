package audit

import "context"

type Store interface {
	Append(ctx context.Context, event Event) error
	ListByPrimary(ctx context.Context, primaryID int64) ([]Event, error)
}
