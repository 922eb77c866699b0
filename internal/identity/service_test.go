package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unify/pkg/domerrors"
)

func testClock() func() time.Time {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newTestResolver(t *testing.T) (*Resolver, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore().WithClock(testClock())
	return NewResolver(store, nil, nil, nil, nil), store
}

func strptr(s string) *string { return &s }

func TestResolveNewIdentityFromEmail(t *testing.T) {
	resolver, store := newTestResolver(t)

	result, err := resolver.Resolve(context.Background(), Observation{Email: strptr("solo@example.com")})
	require.NoError(t, err)

	assert.Equal(t, []string{"solo@example.com"}, result.Emails)
	assert.Empty(t, result.PhoneNumbers)
	assert.Empty(t, result.SecondaryContactIDs)

	rows := store.Snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, result.PrimaryContactID, rows[0].ID)
	assert.Equal(t, LinkPrecedencePrimary, rows[0].LinkPrecedence)
	assert.Nil(t, rows[0].LinkedID)
}

func TestResolveNewIdentityFromPhone(t *testing.T) {
	resolver, _ := newTestResolver(t)

	result, err := resolver.Resolve(context.Background(), Observation{PhoneNumber: strptr("9876543210")})
	require.NoError(t, err)

	assert.Equal(t, []string{"9876543210"}, result.PhoneNumbers)
	assert.Empty(t, result.Emails)
	assert.Empty(t, result.SecondaryContactIDs)
}

func TestResolveGapFillCreatesSecondary(t *testing.T) {
	resolver, store := newTestResolver(t)
	ctx := context.Background()

	seed, err := store.Create(ctx, nil, strptr("1234567890"), nil, LinkPrecedencePrimary)
	require.NoError(t, err)

	result, err := resolver.Resolve(ctx, Observation{
		Email:       strptr("new@x.com"),
		PhoneNumber: strptr("1234567890"),
	})
	require.NoError(t, err)

	assert.Equal(t, seed.ID, result.PrimaryContactID)
	assert.Contains(t, result.Emails, "new@x.com")
	require.Len(t, result.SecondaryContactIDs, 1)

	created, err := store.FindByID(ctx, result.SecondaryContactIDs[0])
	require.NoError(t, err)
	assert.Equal(t, LinkPrecedenceSecondary, created.LinkPrecedence)
	require.NotNil(t, created.LinkedID)
	assert.Equal(t, seed.ID, *created.LinkedID)

	// The new row carries the full observation, not just the new field.
	require.NotNil(t, created.Email)
	require.NotNil(t, created.PhoneNumber)
	assert.Equal(t, "new@x.com", *created.Email)
	assert.Equal(t, "1234567890", *created.PhoneNumber)
}

func TestResolveExactRepeatCreatesNothing(t *testing.T) {
	resolver, store := newTestResolver(t)
	ctx := context.Background()
	obs := Observation{Email: strptr("dup@x.com"), PhoneNumber: strptr("5550001111")}

	first, err := resolver.Resolve(ctx, obs)
	require.NoError(t, err)
	second, err := resolver.Resolve(ctx, obs)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, store.Snapshot(), 1)
}

func TestResolveMergesPrimariesOldestWins(t *testing.T) {
	resolver, store := newTestResolver(t)
	ctx := context.Background()

	a, err := store.Create(ctx, strptr("a@x.com"), strptr("1112223333"), nil, LinkPrecedencePrimary)
	require.NoError(t, err)
	b, err := store.Create(ctx, strptr("b@x.com"), strptr("4445556666"), nil, LinkPrecedencePrimary)
	require.NoError(t, err)

	result, err := resolver.Resolve(ctx, Observation{
		Email:       strptr("a@x.com"),
		PhoneNumber: strptr("4445556666"),
	})
	require.NoError(t, err)

	assert.Equal(t, a.ID, result.PrimaryContactID)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, result.Emails)
	assert.Equal(t, []string{"1112223333", "4445556666"}, result.PhoneNumbers)
	assert.Equal(t, []int64{b.ID}, result.SecondaryContactIDs)

	demoted, err := store.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, LinkPrecedenceSecondary, demoted.LinkPrecedence)
	require.NotNil(t, demoted.LinkedID)
	assert.Equal(t, a.ID, *demoted.LinkedID)

	// No new row: both values were already known across the two components.
	assert.Len(t, store.Snapshot(), 2)
}

func TestMergeRepointsDemotedPrimarysChildren(t *testing.T) {
	resolver, store := newTestResolver(t)
	ctx := context.Background()

	a, err := store.Create(ctx, strptr("a@x.com"), nil, nil, LinkPrecedencePrimary)
	require.NoError(t, err)
	b, err := store.Create(ctx, strptr("b@x.com"), strptr("7778889999"), nil, LinkPrecedencePrimary)
	require.NoError(t, err)
	c, err := store.Create(ctx, strptr("c@x.com"), strptr("7778889999"), &b.ID, LinkPrecedenceSecondary)
	require.NoError(t, err)

	result, err := resolver.Resolve(ctx, Observation{
		Email:       strptr("a@x.com"),
		PhoneNumber: strptr("7778889999"),
	})
	require.NoError(t, err)

	assert.Equal(t, a.ID, result.PrimaryContactID)
	assert.Equal(t, []int64{b.ID, c.ID}, result.SecondaryContactIDs)

	// Flattening invariant: every secondary points directly at a primary.
	byID := map[int64]Contact{}
	for _, row := range store.Snapshot() {
		byID[row.ID] = row
	}
	for _, row := range byID {
		if row.LinkPrecedence != LinkPrecedenceSecondary {
			continue
		}
		require.NotNil(t, row.LinkedID)
		parent := byID[*row.LinkedID]
		assert.Equal(t, LinkPrecedencePrimary, parent.LinkPrecedence,
			"secondary %d must link to a primary, got %d", row.ID, parent.ID)
		assert.Equal(t, a.ID, parent.ID)
	}
}

func TestProjectionDeduplicatesValues(t *testing.T) {
	resolver, store := newTestResolver(t)
	ctx := context.Background()

	p, err := store.Create(ctx, strptr("same@x.com"), strptr("1234567890"), nil, LinkPrecedencePrimary)
	require.NoError(t, err)
	_, err = store.Create(ctx, strptr("same@x.com"), strptr("0987654321"), &p.ID, LinkPrecedenceSecondary)
	require.NoError(t, err)
	_, err = store.Create(ctx, strptr("other@x.com"), strptr("1234567890"), &p.ID, LinkPrecedenceSecondary)
	require.NoError(t, err)

	result, err := resolver.Resolve(ctx, Observation{Email: strptr("same@x.com")})
	require.NoError(t, err)

	assert.Equal(t, []string{"same@x.com", "other@x.com"}, result.Emails)
	assert.Equal(t, []string{"1234567890", "0987654321"}, result.PhoneNumbers)
}

func TestSoftDeletedContactsAreInvisible(t *testing.T) {
	resolver, store := newTestResolver(t)
	ctx := context.Background()

	p, err := store.Create(ctx, strptr("kept@x.com"), strptr("1234567890"), nil, LinkPrecedencePrimary)
	require.NoError(t, err)
	gone, err := store.Create(ctx, strptr("gone@x.com"), nil, &p.ID, LinkPrecedenceSecondary)
	require.NoError(t, err)
	store.SoftDelete(gone.ID)

	result, err := resolver.Resolve(ctx, Observation{Email: strptr("kept@x.com")})
	require.NoError(t, err)
	assert.NotContains(t, result.Emails, "gone@x.com")
	assert.NotContains(t, result.SecondaryContactIDs, gone.ID)

	// The deleted contact's email no longer matches anything: a fresh
	// observation of it starts a brand-new identity.
	result, err = resolver.Resolve(ctx, Observation{Email: strptr("gone@x.com")})
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, result.PrimaryContactID)
	assert.Empty(t, result.SecondaryContactIDs)
}

func TestDanglingLinkPromotesEarliestContact(t *testing.T) {
	resolver, store := newTestResolver(t)
	ctx := context.Background()

	parent, err := store.Create(ctx, strptr("parent@x.com"), nil, nil, LinkPrecedencePrimary)
	require.NoError(t, err)
	orphan, err := store.Create(ctx, strptr("orphan@x.com"), nil, &parent.ID, LinkPrecedenceSecondary)
	require.NoError(t, err)
	store.SoftDelete(parent.ID)

	// The orphan's parent edge dangles; the traversal skips it rather than
	// failing, and the gap check promotes the orphan before linking the new
	// fact under it.
	result, err := resolver.Resolve(ctx, Observation{
		Email:       strptr("orphan@x.com"),
		PhoneNumber: strptr("2223334444"),
	})
	require.NoError(t, err)

	assert.Equal(t, orphan.ID, result.PrimaryContactID)
	assert.Equal(t, []string{"orphan@x.com"}, result.Emails)
	assert.Equal(t, []string{"2223334444"}, result.PhoneNumbers)
	require.Len(t, result.SecondaryContactIDs, 1)

	promoted, err := store.FindByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, LinkPrecedencePrimary, promoted.LinkPrecedence)
	assert.Nil(t, promoted.LinkedID)
}

func TestNoPrimaryAndNoGapFailsLoudly(t *testing.T) {
	resolver, store := newTestResolver(t)
	ctx := context.Background()

	parent, err := store.Create(ctx, strptr("parent@x.com"), nil, nil, LinkPrecedencePrimary)
	require.NoError(t, err)
	_, err = store.Create(ctx, strptr("orphan@x.com"), strptr("5556667777"), &parent.ID, LinkPrecedenceSecondary)
	require.NoError(t, err)
	store.SoftDelete(parent.ID)

	// Nothing new to record, so the promotion branch never runs and the
	// final component has zero primaries: a surfaced invariant violation.
	_, err = resolver.Resolve(ctx, Observation{Email: strptr("orphan@x.com")})
	require.Error(t, err)
	assert.True(t, domerrors.Is(err, domerrors.CodeInternal))
}

func TestSecondaryObservationJoinsExistingComponent(t *testing.T) {
	resolver, store := newTestResolver(t)
	ctx := context.Background()

	p, err := store.Create(ctx, strptr("root@x.com"), strptr("1010101010"), nil, LinkPrecedencePrimary)
	require.NoError(t, err)
	s, err := store.Create(ctx, strptr("side@x.com"), strptr("1010101010"), &p.ID, LinkPrecedenceSecondary)
	require.NoError(t, err)

	// Observing only the secondary's email still resolves to the root
	// primary via the parent edge.
	result, err := resolver.Resolve(ctx, Observation{Email: strptr("side@x.com")})
	require.NoError(t, err)

	assert.Equal(t, p.ID, result.PrimaryContactID)
	assert.Equal(t, []string{"root@x.com", "side@x.com"}, result.Emails)
	assert.Equal(t, []int64{s.ID}, result.SecondaryContactIDs)
	assert.Len(t, store.Snapshot(), 2)
}

func TestLockKeysAreSortedAndPrefixed(t *testing.T) {
	keys := LockKeys(Observation{
		Email:       strptr("z@x.com"),
		PhoneNumber: strptr("123456"),
	})
	assert.Equal(t, []string{
		"unify:lock:email:z@x.com",
		"unify:lock:phone:123456",
	}, keys)

	assert.Equal(t, []string{"unify:lock:phone:123456"},
		LockKeys(Observation{PhoneNumber: strptr("123456")}))
	assert.Empty(t, LockKeys(Observation{}))
}
