package audit

import (
	"context"
	"sync"
	"time"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
	nextID int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nextID: 1}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = s.nextID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	s.nextID++
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByPrimary(_ context.Context, primaryID int64) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.PrimaryID != nil && *e.PrimaryID == primaryID {
			out = append(out, e)
		}
	}
	return out, nil
}
