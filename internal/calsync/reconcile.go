package calsync

import (
	"github.com/google/uuid"

	"github.com/W-VNT/conciergeos-sub004/internal/booking"
	"github.com/W-VNT/conciergeos-sub004/internal/feed"
)

// Policy controls the one open scheduling decision: whether a conflicted pair
// reverts to confirmed on its own once the underlying overlap is gone, or
// stays flagged until staff resolve it.
type Policy struct {
	AutoResolveConflicts bool
}

// Reconcile merges one source's fresh event set against a resource's current
// active bookings and stages the resulting mutations. It never mutates its
// inputs and never stages a cancellation for a local booking; disappearance
// only applies to this source's synced bookings because the caller only
// invokes it after a successful fetch.
func Reconcile(resourceID, sourceID string, fresh []feed.Event, existing []*booking.Booking, policy Policy) *booking.Plan {
	type item struct {
		b       *booking.Booking
		created bool
		dirty   bool
	}

	items := make([]*item, 0, len(existing)+len(fresh))
	bySourceUID := make(map[string]*item)

	for _, b := range existing {
		cp := *b
		it := &item{b: &cp}
		items = append(items, it)
		if cp.Origin.Source == sourceID && !cp.Origin.IsLocal() {
			bySourceUID[cp.Origin.ExternalUID] = it
		}
	}

	// Pass 1: creates and in-place updates, deduplicated by external uid.
	seen := make(map[string]struct{}, len(fresh))
	for _, ev := range fresh {
		if ev.ExternalUID == "" {
			continue
		}
		if _, dup := seen[ev.ExternalUID]; dup {
			continue
		}
		seen[ev.ExternalUID] = struct{}{}

		if it, ok := bySourceUID[ev.ExternalUID]; ok {
			if !it.b.StartDate.Equal(ev.Start) || !it.b.EndDate.Equal(ev.End) || it.b.Summary != ev.Summary {
				it.b.StartDate = ev.Start
				it.b.EndDate = ev.End
				it.b.Summary = ev.Summary
				it.dirty = true
			}
			continue
		}

		it := &item{
			b: &booking.Booking{
				ID:         uuid.NewString(),
				ResourceID: resourceID,
				StartDate:  ev.Start,
				EndDate:    ev.End,
				Origin:     booking.SyncedOrigin(sourceID, ev.ExternalUID),
				Status:     booking.StatusConfirmed,
				Summary:    ev.Summary,
				Version:    1,
			},
			created: true,
		}
		items = append(items, it)
	}

	// Pass 2: disappearance. A previously-seen uid absent from a successful
	// fetch means the platform cancelled it.
	for uid, it := range bySourceUID {
		if _, ok := seen[uid]; !ok {
			it.b.Status = booking.StatusCancelled
			it.dirty = true
		}
	}

	// Pass 3: cross-source overlap scan over the projected active set.
	active := make([]*item, 0, len(items))
	for _, it := range items {
		if it.b.Status != booking.StatusCancelled {
			active = append(active, it)
		}
	}

	inConflict := make(map[*item]bool, len(active))
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			if conflicting(active[i].b, active[j].b) {
				inConflict[active[i]] = true
				inConflict[active[j]] = true
			}
		}
	}

	for _, it := range active {
		switch {
		case inConflict[it] && it.b.Status != booking.StatusConflicted:
			it.b.Status = booking.StatusConflicted
			it.dirty = true
		case !inConflict[it] && it.b.Status == booking.StatusConflicted && policy.AutoResolveConflicts:
			it.b.Status = booking.StatusConfirmed
			it.dirty = true
		}
	}

	plan := &booking.Plan{ResourceID: resourceID}
	for _, it := range items {
		switch {
		case it.created:
			plan.Creates = append(plan.Creates, it.b)
		case it.dirty:
			it.b.Version++
			plan.Updates = append(plan.Updates, it.b)
		}
	}
	return plan
}

// conflicting reports whether two active bookings form a conflict: ranges
// overlap and the pair is not two events owned by the same external platform.
// Touching boundaries are adjacency under half-open semantics.
func conflicting(a, b *booking.Booking) bool {
	if !a.Overlaps(b.StartDate, b.EndDate) {
		return false
	}
	if a.Origin.Source != b.Origin.Source {
		return true
	}
	// Same external source manages its own internal overlaps; two local
	// bookings overlapping should be impossible but is still a conflict.
	return a.Origin.IsLocal()
}
