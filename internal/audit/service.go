package audit

import (
	"context"
	"log/slog"
)

// Service records events without ever failing the caller. A broken audit
// trail is a logged degradation, not a resolution failure.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Record appends one event, swallowing store errors.
func (s *Service) Record(ctx context.Context, event Event) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Append(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit append failed",
			"action", string(event.Action),
			"contact_id", event.ContactID,
			"error", err.Error(),
		)
	}
}
