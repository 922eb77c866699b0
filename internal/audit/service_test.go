package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unify/internal/platform/logger"
)

func TestRecordAppendsEvent(t *testing.T) {
	store := NewInMemoryStore()
	svc := NewService(store, logger.New())
	primaryID := int64(7)
	email := "a@x.com"

	svc.Record(context.Background(), Event{
		Action:        ActionDemotePrimary,
		ContactID:     9,
		PrimaryID:     &primaryID,
		ObservedEmail: &email,
	})

	events, err := store.ListByPrimary(context.Background(), primaryID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionDemotePrimary, events[0].Action)
	assert.Equal(t, int64(9), events[0].ContactID)
	assert.False(t, events[0].CreatedAt.IsZero())
}

type brokenStore struct{}

func (brokenStore) Append(context.Context, Event) error {
	return errors.New("disk on fire")
}

func (brokenStore) ListByPrimary(context.Context, int64) ([]Event, error) {
	return nil, errors.New("disk on fire")
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	svc := NewService(brokenStore{}, logger.New())

	// Must not panic or propagate: the trail is best-effort.
	svc.Record(context.Background(), Event{Action: ActionCreatePrimary, ContactID: 1})
}
