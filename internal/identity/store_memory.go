package identity

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a mutex-guarded contact store. It backs local development
// and the resolver's unit tests; the ordering and soft-delete semantics match
// the PostgreSQL store exactly.
type InMemoryStore struct {
	mu       sync.RWMutex
	contacts map[int64]Contact
	nextID   int64

	// now is injectable so tests can control created_at ordering.
	now func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		contacts: make(map[int64]Contact),
		nextID:   1,
		now:      time.Now,
	}
}

// WithClock replaces the store's clock. Test helper.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) FindMatching(_ context.Context, email, phoneNumber *string) ([]Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Contact
	for _, c := range s.contacts {
		if c.DeletedAt != nil {
			continue
		}
		if matchValue(c.Email, email) || matchValue(c.PhoneNumber, phoneNumber) {
			out = append(out, c)
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *InMemoryStore) FindChildren(_ context.Context, parentID int64) ([]Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Contact
	for _, c := range s.contacts {
		if c.DeletedAt != nil || c.LinkedID == nil || *c.LinkedID != parentID {
			continue
		}
		out = append(out, c)
	}
	sortByCreation(out)
	return out, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id int64) (Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contacts[id]
	if !ok || c.DeletedAt != nil {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemoryStore) FindByIDs(_ context.Context, ids []int64) ([]Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Contact, 0, len(ids))
	for _, id := range ids {
		c, ok := s.contacts[id]
		if !ok || c.DeletedAt != nil {
			continue
		}
		out = append(out, c)
	}
	sortByCreation(out)
	return out, nil
}

func (s *InMemoryStore) Create(_ context.Context, email, phoneNumber *string, linkedID *int64, precedence LinkPrecedence) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := Contact{
		ID:             s.nextID,
		Email:          copyString(email),
		PhoneNumber:    copyString(phoneNumber),
		LinkedID:       copyInt64(linkedID),
		LinkPrecedence: precedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.nextID++
	s.contacts[c.ID] = c
	return c, nil
}

func (s *InMemoryStore) Update(_ context.Context, id int64, precedence LinkPrecedence, linkedID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok || c.DeletedAt != nil {
		return ErrNotFound
	}
	c.LinkPrecedence = precedence
	c.LinkedID = copyInt64(linkedID)
	c.UpdatedAt = s.now()
	s.contacts[id] = c
	return nil
}

func (s *InMemoryStore) UpdateMany(_ context.Context, whereLinkedID, newLinkedID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, c := range s.contacts {
		if c.DeletedAt != nil || c.LinkedID == nil || *c.LinkedID != whereLinkedID {
			continue
		}
		linked := newLinkedID
		c.LinkedID = &linked
		c.UpdatedAt = now
		s.contacts[id] = c
	}
	return nil
}

// SoftDelete marks a contact deleted. Not part of the Store contract; the
// resolver never deletes, but tests exercise the deleted_at filtering.
func (s *InMemoryStore) SoftDelete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok {
		return
	}
	now := s.now()
	c.DeletedAt = &now
	s.contacts[id] = c
}

// Snapshot returns every row including soft-deleted ones, ordered by
// creation. Test helper for invariant checks.
func (s *InMemoryStore) Snapshot() []Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c)
	}
	sortByCreation(out)
	return out
}

func matchValue(have, want *string) bool {
	return have != nil && want != nil && *want != "" && *have == *want
}

func sortByCreation(contacts []Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].CreatedAt.Equal(contacts[j].CreatedAt) {
			return contacts[i].ID < contacts[j].ID
		}
		return contacts[i].CreatedAt.Before(contacts[j].CreatedAt)
	})
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
