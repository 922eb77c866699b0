package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"unify/internal/audit"
	"unify/internal/identity/metrics"
	"unify/pkg/domerrors"
	pkgstrings "unify/pkg/platform/strings"
)

// Recorder receives the resolver's linking decisions. Recording is
// best-effort; implementations must not fail the resolution.
type Recorder interface {
	Record(ctx context.Context, event audit.Event)
}

// Resolver owns every merge and link decision. Given an observation it finds
// the connected component joined to it through shared email or phone, records
// any new fact as a secondary contact, collapses multiple primaries down to
// the oldest one, and projects the final component into a consolidated view.
type Resolver struct {
	store   Store
	lock    ResolutionLock
	auditor Recorder
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewResolver builds a Resolver. lock may be nil to run without
// serialization; auditor and m may be nil to disable those concerns.
func NewResolver(store Store, lock ResolutionLock, auditor Recorder, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	if lock == nil {
		lock = NoopLock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, lock: lock, auditor: auditor, logger: logger, metrics: m}
}

// Resolve consumes one normalized observation. The caller guarantees at
// least one field is present; that precondition is not re-validated here.
func (r *Resolver) Resolve(ctx context.Context, obs Observation) (ConsolidatedContact, error) {
	start := time.Now()
	defer func() {
		r.metrics.ObserveResolveLatency(time.Since(start))
	}()

	release, err := r.lock.Acquire(ctx, LockKeys(obs))
	if err != nil {
		return ConsolidatedContact{}, domerrors.Wrap(domerrors.CodeUnavailable, "acquire resolution lock", err)
	}
	defer release()

	seeds, err := r.store.FindMatching(ctx, obs.Email, obs.PhoneNumber)
	if err != nil {
		return ConsolidatedContact{}, storeFailure("find matching contacts", err)
	}

	// Nothing known about this observation: it becomes a new primary.
	if len(seeds) == 0 {
		created, err := r.store.Create(ctx, obs.Email, obs.PhoneNumber, nil, LinkPrecedencePrimary)
		if err != nil {
			return ConsolidatedContact{}, storeFailure("create primary contact", err)
		}
		r.metrics.IncrementContactCreated(string(LinkPrecedencePrimary))
		r.metrics.IncrementResolution("new_primary")
		r.record(ctx, audit.ActionCreatePrimary, created.ID, &created.ID, obs)
		return project([]Contact{created})
	}

	ids, err := r.expand(ctx, seeds)
	if err != nil {
		return ConsolidatedContact{}, err
	}

	component, err := r.store.FindByIDs(ctx, ids)
	if err != nil {
		return ConsolidatedContact{}, storeFailure("reload component", err)
	}

	component, createdSecondary, err := r.fillGap(ctx, obs, component)
	if err != nil {
		return ConsolidatedContact{}, err
	}

	component, demoted, err := r.mergePrimaries(ctx, obs, component)
	if err != nil {
		return ConsolidatedContact{}, err
	}

	result, err := project(component)
	if err != nil {
		r.logger.ErrorContext(ctx, "component has no primary after resolution",
			"component_size", len(component),
		)
		return ConsolidatedContact{}, err
	}

	switch {
	case demoted > 0:
		r.metrics.IncrementResolution("merged")
	case createdSecondary:
		r.metrics.IncrementResolution("new_secondary")
	default:
		r.metrics.IncrementResolution("no_change")
	}
	return result, nil
}

// expand walks the linked-via-primary relation outward from the seed matches
// until the full connected component is visited. Each contact is enqueued at
// most once, so the walk is O(component size). A dangling linked_id is
// logged and skipped rather than failing the resolution.
func (r *Resolver) expand(ctx context.Context, seeds []Contact) ([]int64, error) {
	visited := make(map[int64]bool, len(seeds))
	queue := make([]Contact, 0, len(seeds))
	for _, c := range seeds {
		if !visited[c.ID] {
			visited[c.ID] = true
			queue = append(queue, c)
		}
	}

	var ids []int64
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ids = append(ids, current.ID)

		var neighbors []Contact
		if current.IsPrimary() {
			children, err := r.store.FindChildren(ctx, current.ID)
			if err != nil {
				return nil, storeFailure("find children", err)
			}
			neighbors = children
		} else if current.LinkedID != nil {
			parent, err := r.store.FindByID(ctx, *current.LinkedID)
			switch {
			case errors.Is(err, ErrNotFound):
				r.logger.WarnContext(ctx, "dangling linked_id, skipping edge",
					"contact_id", current.ID,
					"linked_id", *current.LinkedID,
				)
				r.metrics.IncrementDanglingLinks()
			case err != nil:
				return nil, storeFailure("find parent", err)
			default:
				siblings, err := r.store.FindChildren(ctx, parent.ID)
				if err != nil {
					return nil, storeFailure("find siblings", err)
				}
				neighbors = append(neighbors, parent)
				neighbors = append(neighbors, siblings...)
			}
		}

		for _, n := range neighbors {
			if !visited[n.ID] {
				visited[n.ID] = true
				queue = append(queue, n)
			}
		}
	}
	return ids, nil
}

// fillGap creates a secondary contact when the observation carries an email
// or phone the component does not know yet. A single row carries both new
// values when both are new. When the component unexpectedly has no primary,
// the earliest contact is promoted in place before linking.
func (r *Resolver) fillGap(ctx context.Context, obs Observation, component []Contact) ([]Contact, bool, error) {
	if len(component) == 0 {
		return component, false, nil
	}

	knownEmails := make(map[string]bool, len(component))
	knownPhones := make(map[string]bool, len(component))
	for _, c := range component {
		if c.Email != nil {
			knownEmails[*c.Email] = true
		}
		if c.PhoneNumber != nil {
			knownPhones[*c.PhoneNumber] = true
		}
	}

	newEmail := obs.Email != nil && *obs.Email != "" && !knownEmails[*obs.Email]
	newPhone := obs.PhoneNumber != nil && *obs.PhoneNumber != "" && !knownPhones[*obs.PhoneNumber]
	if !newEmail && !newPhone {
		return component, false, nil
	}

	primary, found := firstPrimary(component)
	if !found {
		// Should not occur under the invariants; repair on read by
		// promoting the earliest contact rather than guessing further.
		primary = component[0]
		if err := r.store.Update(ctx, primary.ID, LinkPrecedencePrimary, nil); err != nil {
			return nil, false, storeFailure("promote orphaned contact", err)
		}
		r.logger.WarnContext(ctx, "component without primary, promoted earliest contact",
			"contact_id", primary.ID,
		)
		primary.LinkPrecedence = LinkPrecedencePrimary
		primary.LinkedID = nil
		component[0] = primary
		r.record(ctx, audit.ActionPromotePrimary, primary.ID, &primary.ID, obs)
	}

	created, err := r.store.Create(ctx, obs.Email, obs.PhoneNumber, &primary.ID, LinkPrecedenceSecondary)
	if err != nil {
		return nil, false, storeFailure("create secondary contact", err)
	}
	r.metrics.IncrementContactCreated(string(LinkPrecedenceSecondary))
	r.record(ctx, audit.ActionCreateSecondary, created.ID, &primary.ID, obs)
	return append(component, created), true, nil
}

// mergePrimaries collapses a component joined across previously unrelated
// primaries. The oldest primary survives; every other primary is demoted and
// its children re-pointed at the survivor, keeping the graph flattened to
// depth one. Returns the reloaded component and the number of demotions.
func (r *Resolver) mergePrimaries(ctx context.Context, obs Observation, component []Contact) ([]Contact, int, error) {
	var primaries []Contact
	for _, c := range component {
		if c.IsPrimary() {
			primaries = append(primaries, c)
		}
	}
	if len(primaries) <= 1 {
		return component, 0, nil
	}

	// component is ordered by created_at, id — the first primary is the
	// survivor.
	survivor := primaries[0]
	for _, demotee := range primaries[1:] {
		if err := r.store.Update(ctx, demotee.ID, LinkPrecedenceSecondary, &survivor.ID); err != nil {
			return nil, 0, storeFailure("demote primary", err)
		}
		if err := r.store.UpdateMany(ctx, demotee.ID, survivor.ID); err != nil {
			return nil, 0, storeFailure("repoint demoted primary's children", err)
		}
		r.metrics.IncrementPrimariesDemoted()
		r.record(ctx, audit.ActionDemotePrimary, demotee.ID, &survivor.ID, obs)
	}

	head, err := r.store.FindByID(ctx, survivor.ID)
	if err != nil {
		return nil, 0, storeFailure("reload survivor", err)
	}
	children, err := r.store.FindChildren(ctx, survivor.ID)
	if err != nil {
		return nil, 0, storeFailure("reload survivor children", err)
	}
	merged := append([]Contact{head}, children...)
	sortByCreation(merged)
	return merged, len(primaries) - 1, nil
}

// project builds the deterministic consolidated view: the primary's values
// first, then each secondary's in creation order, duplicates and empties
// removed.
func project(component []Contact) (ConsolidatedContact, error) {
	var primary *Contact
	var secondaries []Contact
	for i := range component {
		if component[i].IsPrimary() {
			if primary == nil {
				primary = &component[i]
			}
		} else {
			secondaries = append(secondaries, component[i])
		}
	}
	if primary == nil {
		return ConsolidatedContact{}, domerrors.New(domerrors.CodeInternal, "connected component has no primary contact")
	}

	emails := []string{}
	phones := []string{}
	if primary.Email != nil {
		emails = append(emails, *primary.Email)
	}
	if primary.PhoneNumber != nil {
		phones = append(phones, *primary.PhoneNumber)
	}
	secondaryIDs := make([]int64, 0, len(secondaries))
	for _, c := range secondaries {
		if c.Email != nil {
			emails = append(emails, *c.Email)
		}
		if c.PhoneNumber != nil {
			phones = append(phones, *c.PhoneNumber)
		}
		secondaryIDs = append(secondaryIDs, c.ID)
	}

	return ConsolidatedContact{
		PrimaryContactID:    primary.ID,
		Emails:              pkgstrings.DedupeAndTrim(emails),
		PhoneNumbers:        pkgstrings.DedupeAndTrim(phones),
		SecondaryContactIDs: secondaryIDs,
	}, nil
}

func firstPrimary(component []Contact) (Contact, bool) {
	for _, c := range component {
		if c.IsPrimary() {
			return c, true
		}
	}
	return Contact{}, false
}

func (r *Resolver) record(ctx context.Context, action audit.Action, contactID int64, primaryID *int64, obs Observation) {
	if r.auditor == nil {
		return
	}
	r.auditor.Record(ctx, audit.Event{
		Action:        action,
		ContactID:     contactID,
		PrimaryID:     primaryID,
		ObservedEmail: obs.Email,
		ObservedPhone: obs.PhoneNumber,
	})
}

func storeFailure(op string, err error) error {
	return domerrors.Wrap(domerrors.CodeInternal, op, err)
}
