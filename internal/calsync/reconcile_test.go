package calsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/W-VNT/conciergeos-sub004/internal/booking"
	"github.com/W-VNT/conciergeos-sub004/internal/feed"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return parsed
}

func syncedBooking(t *testing.T, id, resourceID, sourceID, uid, start, end string, status booking.Status, version int64) *booking.Booking {
	t.Helper()
	return &booking.Booking{
		ID:         id,
		ResourceID: resourceID,
		StartDate:  day(t, start),
		EndDate:    day(t, end),
		Origin:     booking.SyncedOrigin(sourceID, uid),
		Status:     status,
		Version:    version,
	}
}

func localBooking(t *testing.T, id, resourceID, start, end string, status booking.Status, version int64) *booking.Booking {
	t.Helper()
	return &booking.Booking{
		ID:         id,
		ResourceID: resourceID,
		StartDate:  day(t, start),
		EndDate:    day(t, end),
		Origin:     booking.LocalOrigin(),
		Status:     status,
		Version:    version,
	}
}

// applyPlan projects a plan onto an active-booking list the way the store
// would, so follow-up reconciliations can run against the merged state.
func applyPlan(existing []*booking.Booking, plan *booking.Plan) []*booking.Booking {
	byID := make(map[string]*booking.Booking, len(existing))
	for _, b := range existing {
		cp := *b
		byID[b.ID] = &cp
	}
	for _, b := range plan.Creates {
		cp := *b
		byID[b.ID] = &cp
	}
	for _, b := range plan.Updates {
		cp := *b
		byID[b.ID] = &cp
	}
	var active []*booking.Booking
	for _, b := range byID {
		if b.Status != booking.StatusCancelled {
			active = append(active, b)
		}
	}
	return active
}

func TestReconcileCreatesUnseenEvents(t *testing.T) {
	fresh := []feed.Event{
		{SourceID: "airbnb", ExternalUID: "E1", ResourceID: "r1", Start: day(t, "2026-03-01"), End: day(t, "2026-03-05"), Summary: "Guest A"},
		{SourceID: "airbnb", ExternalUID: "E2", ResourceID: "r1", Start: day(t, "2026-03-10"), End: day(t, "2026-03-12")},
	}

	plan := Reconcile("r1", "airbnb", fresh, nil, Policy{})

	require.Len(t, plan.Creates, 2)
	assert.Empty(t, plan.Updates)
	for _, b := range plan.Creates {
		assert.Equal(t, booking.StatusConfirmed, b.Status)
		assert.Equal(t, "airbnb", b.Origin.Source)
		assert.Equal(t, int64(1), b.Version)
		assert.NotEmpty(t, b.ID)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	fresh := []feed.Event{
		{SourceID: "airbnb", ExternalUID: "E1", ResourceID: "r1", Start: day(t, "2026-03-01"), End: day(t, "2026-03-05")},
	}

	first := Reconcile("r1", "airbnb", fresh, nil, Policy{})
	require.Len(t, first.Creates, 1)

	existing := applyPlan(nil, first)
	second := Reconcile("r1", "airbnb", fresh, existing, Policy{})
	assert.True(t, second.Empty(), "second run with identical events must stage nothing")
}

func TestReconcileUpdatesChangedRange(t *testing.T) {
	existing := []*booking.Booking{
		syncedBooking(t, "b1", "r1", "airbnb", "E1", "2026-03-01", "2026-03-05", booking.StatusConfirmed, 3),
	}
	fresh := []feed.Event{
		{SourceID: "airbnb", ExternalUID: "E1", ResourceID: "r1", Start: day(t, "2026-03-02"), End: day(t, "2026-03-06")},
	}

	plan := Reconcile("r1", "airbnb", fresh, existing, Policy{})

	assert.Empty(t, plan.Creates)
	require.Len(t, plan.Updates, 1)
	updated := plan.Updates[0]
	assert.Equal(t, "b1", updated.ID)
	assert.Equal(t, day(t, "2026-03-02"), updated.StartDate)
	assert.Equal(t, day(t, "2026-03-06"), updated.EndDate)
	assert.Equal(t, int64(4), updated.Version, "update must bump the version")

	// Input must not be mutated.
	assert.Equal(t, int64(3), existing[0].Version)
	assert.Equal(t, day(t, "2026-03-01"), existing[0].StartDate)
}

func TestReconcileDisappearanceCancelsSyncedOnly(t *testing.T) {
	existing := []*booking.Booking{
		syncedBooking(t, "b1", "r1", "airbnb", "E1", "2026-03-01", "2026-03-05", booking.StatusConfirmed, 1),
		localBooking(t, "b2", "r1", "2026-04-01", "2026-04-03", booking.StatusConfirmed, 1),
	}

	// Successful fetch with an empty event set: E1 disappeared.
	plan := Reconcile("r1", "airbnb", nil, existing, Policy{})

	require.Len(t, plan.Updates, 1)
	assert.Equal(t, "b1", plan.Updates[0].ID)
	assert.Equal(t, booking.StatusCancelled, plan.Updates[0].Status)
}

func TestReconcileDoesNotCancelOtherSources(t *testing.T) {
	existing := []*booking.Booking{
		syncedBooking(t, "b1", "r1", "bookingcom", "X9", "2026-03-01", "2026-03-05", booking.StatusConfirmed, 1),
	}

	plan := Reconcile("r1", "airbnb", nil, existing, Policy{})
	assert.True(t, plan.Empty(), "another source's bookings are not subject to this source's disappearance rule")
}

func TestReconcileFlagsCrossSourceOverlap(t *testing.T) {
	existing := []*booking.Booking{
		localBooking(t, "b1", "r1", "2026-03-01", "2026-03-05", booking.StatusConfirmed, 1),
	}
	fresh := []feed.Event{
		{SourceID: "airbnb", ExternalUID: "E1", ResourceID: "r1", Start: day(t, "2026-03-04"), End: day(t, "2026-03-08")},
	}

	plan := Reconcile("r1", "airbnb", fresh, existing, Policy{})

	require.Len(t, plan.Creates, 1)
	assert.Equal(t, booking.StatusConflicted, plan.Creates[0].Status, "imported side is flagged")

	require.Len(t, plan.Updates, 1)
	assert.Equal(t, "b1", plan.Updates[0].ID)
	assert.Equal(t, booking.StatusConflicted, plan.Updates[0].Status, "local side is flagged, not dropped")
	assert.Equal(t, day(t, "2026-03-01"), plan.Updates[0].StartDate, "local range is untouched")
}

func TestReconcileTouchingBoundariesAreNotConflicts(t *testing.T) {
	existing := []*booking.Booking{
		localBooking(t, "b1", "r1", "2026-03-01", "2026-03-05", booking.StatusConfirmed, 1),
	}
	fresh := []feed.Event{
		{SourceID: "airbnb", ExternalUID: "E1", ResourceID: "r1", Start: day(t, "2026-03-05"), End: day(t, "2026-03-08")},
	}

	plan := Reconcile("r1", "airbnb", fresh, existing, Policy{})

	require.Len(t, plan.Creates, 1)
	assert.Equal(t, booking.StatusConfirmed, plan.Creates[0].Status)
	assert.Empty(t, plan.Updates, "checkout day equal to check-in day is adjacency")
}

func TestReconcileSameSourceOverlapIsNotConflict(t *testing.T) {
	fresh := []feed.Event{
		{SourceID: "airbnb", ExternalUID: "E1", ResourceID: "r1", Start: day(t, "2026-03-01"), End: day(t, "2026-03-05")},
		{SourceID: "airbnb", ExternalUID: "E2", ResourceID: "r1", Start: day(t, "2026-03-03"), End: day(t, "2026-03-07")},
	}

	plan := Reconcile("r1", "airbnb", fresh, nil, Policy{})

	require.Len(t, plan.Creates, 2)
	for _, b := range plan.Creates {
		assert.Equal(t, booking.StatusConfirmed, b.Status, "one platform's internal overlaps are its own business")
	}
}

func TestReconcileDeduplicatesExternalUIDs(t *testing.T) {
	fresh := []feed.Event{
		{SourceID: "airbnb", ExternalUID: "E1", ResourceID: "r1", Start: day(t, "2026-03-01"), End: day(t, "2026-03-05")},
		{SourceID: "airbnb", ExternalUID: "E1", ResourceID: "r1", Start: day(t, "2026-03-02"), End: day(t, "2026-03-06")},
	}

	plan := Reconcile("r1", "airbnb", fresh, nil, Policy{})
	assert.Len(t, plan.Creates, 1)
}

func TestReconcileConflictResolutionPolicy(t *testing.T) {
	// The overlap that once flagged both sides is gone: E1 moved past the
	// local booking.
	existing := []*booking.Booking{
		localBooking(t, "b1", "r1", "2026-03-01", "2026-03-05", booking.StatusConflicted, 2),
		syncedBooking(t, "b2", "r1", "airbnb", "E1", "2026-03-04", "2026-03-08", booking.StatusConflicted, 2),
	}
	fresh := []feed.Event{
		{SourceID: "airbnb", ExternalUID: "E1", ResourceID: "r1", Start: day(t, "2026-03-06"), End: day(t, "2026-03-09")},
	}

	t.Run("keep flags by default", func(t *testing.T) {
		plan := Reconcile("r1", "airbnb", fresh, existing, Policy{})

		require.Len(t, plan.Updates, 1)
		moved := plan.Updates[0]
		assert.Equal(t, "b2", moved.ID)
		assert.Equal(t, day(t, "2026-03-06"), moved.StartDate, "new range must be persisted either way")
		assert.Equal(t, booking.StatusConflicted, moved.Status, "flags persist until staff resolve them")
	})

	t.Run("auto-resolve unflags both sides", func(t *testing.T) {
		plan := Reconcile("r1", "airbnb", fresh, existing, Policy{AutoResolveConflicts: true})

		require.Len(t, plan.Updates, 2)
		statuses := map[string]booking.Status{}
		for _, b := range plan.Updates {
			statuses[b.ID] = b.Status
		}
		assert.Equal(t, booking.StatusConfirmed, statuses["b1"])
		assert.Equal(t, booking.StatusConfirmed, statuses["b2"])
	})
}

func TestReconcilePlanFromStaleSnapshotIsRejected(t *testing.T) {
	ctx := context.Background()
	store := booking.NewService(booking.NewMemoryRepository())

	// The engine reads state, then a staff booking lands before the plan is
	// applied. The plan's create overlaps it without a flag, so the store must
	// refuse the whole plan rather than persist an unflagged overlapping pair.
	snapshot, err := store.ListActive(ctx, "r1")
	require.NoError(t, err)

	local, err := store.CreateLocal(ctx, booking.CreateLocalRequest{
		ResourceID: "r1",
		StartDate:  day(t, "2026-03-01"),
		EndDate:    day(t, "2026-03-05"),
	})
	require.NoError(t, err)

	fresh := []feed.Event{
		{SourceID: "airbnb", ExternalUID: "E1", ResourceID: "r1", Start: day(t, "2026-03-04"), End: day(t, "2026-03-08")},
	}
	plan := Reconcile("r1", "airbnb", fresh, snapshot, Policy{})
	require.ErrorIs(t, store.ApplyReconciliation(ctx, plan), booking.ErrStaleVersion)

	active, err := store.ListActive(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, local.ID, active[0].ID)
	assert.Equal(t, booking.StatusConfirmed, active[0].Status)

	// The next cycle reconciles from fresh state and flags both sides.
	fromFresh, err := store.ListActive(ctx, "r1")
	require.NoError(t, err)
	plan = Reconcile("r1", "airbnb", fresh, fromFresh, Policy{})
	require.NoError(t, store.ApplyReconciliation(ctx, plan))

	active, err = store.ListActive(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	for _, b := range active {
		assert.Equal(t, booking.StatusConflicted, b.Status)
	}
}
