package booking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OverlapError carries the colliding booking so the scheduling surface can
// highlight it. It unwraps to ErrOverlap for status mapping.
type OverlapError struct {
	Conflicting *Booking
}

func (e *OverlapError) Error() string {
	return ErrOverlap.Error()
}

func (e *OverlapError) Unwrap() error {
	return ErrOverlap
}

// AsOverlap extracts an OverlapError from an error chain.
func AsOverlap(err error) (*OverlapError, bool) {
	var oe *OverlapError
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

type CreateLocalRequest struct {
	ResourceID string
	StartDate  time.Time
	EndDate    time.Time
	Summary    string
}

type MoveRequest struct {
	BookingID       string
	ResourceID      string
	StartDate       time.Time
	EndDate         time.Time
	ExpectedVersion int64
}

// Plan is a staged reconciliation outcome for one resource. Cancellations and
// conflict flags are expressed as status updates; every update carries the
// already-bumped version so the repository can enforce the optimistic check.
type Plan struct {
	ResourceID string
	Creates    []*Booking
	Updates    []*Booking
}

func (p *Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0
}

type Service interface {
	CreateLocal(ctx context.Context, req CreateLocalRequest) (*Booking, error)
	Get(ctx context.Context, id string) (*Booking, error)
	Timeline(ctx context.Context, filter Filter) ([]*Booking, int, error)
	Move(ctx context.Context, req MoveRequest) (*Booking, error)
	Cancel(ctx context.Context, id string, expectedVersion int64) error

	// ResolveConflict is the explicit staff action on a conflicted booking:
	// accept keeps it (back to confirmed), reject cancels it. The other side
	// of the conflict is left for its own resolution.
	ResolveConflict(ctx context.Context, id string, expectedVersion int64, accept bool) (*Booking, error)

	// ListActive exposes a resource's non-cancelled bookings to the
	// reconciliation engine.
	ListActive(ctx context.Context, resourceID string) ([]*Booking, error)

	// ApplyReconciliation commits a reconciliation plan atomically under the
	// resource's mutation lock.
	ApplyReconciliation(ctx context.Context, plan *Plan) error
}

type service struct {
	repo Repository

	// One mutex per resource timeline. Mutations to different resources
	// proceed independently; two mutations on the same resource serialize,
	// which is what makes the version check and the commit-time overlap
	// re-check meaningful.
	locks sync.Map // resourceID -> *sync.Mutex
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) lockResources(ids ...string) func() {
	uniq := map[string]struct{}{}
	for _, id := range ids {
		uniq[id] = struct{}{}
	}
	ordered := make([]string, 0, len(uniq))
	for id := range uniq {
		ordered = append(ordered, id)
	}
	// Stable lock order prevents deadlock on cross-resource moves.
	sort.Strings(ordered)

	mus := make([]*sync.Mutex, 0, len(ordered))
	for _, id := range ordered {
		v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
		mu := v.(*sync.Mutex)
		mu.Lock()
		mus = append(mus, mu)
	}
	return func() {
		for i := len(mus) - 1; i >= 0; i-- {
			mus[i].Unlock()
		}
	}
}

func validRange(start, end time.Time) bool {
	return end.After(start)
}

func (s *service) CreateLocal(ctx context.Context, req CreateLocalRequest) (*Booking, error) {
	if !validRange(req.StartDate, req.EndDate) {
		return nil, ErrInvalidRange
	}

	unlock := s.lockResources(req.ResourceID)
	defer unlock()

	// Staff-authored overlaps are rejected outright; conflicted pairs only
	// ever arise from external-sync merges.
	collider, err := s.repo.FindOverlap(ctx, req.ResourceID, req.StartDate, req.EndDate, "")
	if err != nil {
		return nil, err
	}
	if collider != nil {
		return nil, &OverlapError{Conflicting: collider}
	}

	b := &Booking{
		ID:         uuid.NewString(),
		ResourceID: req.ResourceID,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Origin:     LocalOrigin(),
		Status:     StatusConfirmed,
		Summary:    req.Summary,
		Version:    1,
	}

	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) Get(ctx context.Context, id string) (*Booking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) Timeline(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return nil, 0, ErrInvalidRange
	}
	return s.repo.List(ctx, filter)
}

func (s *service) Move(ctx context.Context, req MoveRequest) (*Booking, error) {
	if !validRange(req.StartDate, req.EndDate) {
		return nil, ErrInvalidRange
	}

	// First read is only to learn the current resource for lock ordering;
	// everything is re-read and re-checked inside the lock.
	current, err := s.repo.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockResources(current.ResourceID, req.ResourceID)
	defer unlock()

	b, err := s.repo.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == StatusCancelled {
		return nil, ErrCancelled
	}
	if b.Version != req.ExpectedVersion {
		return nil, ErrStaleVersion
	}
	if b.ResourceID != current.ResourceID {
		// Raced with another move that changed the resource; the version
		// check above already failed in that case, but guard anyway.
		return nil, ErrStaleVersion
	}

	collider, err := s.repo.FindOverlap(ctx, req.ResourceID, req.StartDate, req.EndDate, b.ID)
	if err != nil {
		return nil, err
	}
	if collider != nil {
		return nil, &OverlapError{Conflicting: collider}
	}

	b.ResourceID = req.ResourceID
	b.StartDate = req.StartDate
	b.EndDate = req.EndDate

	if err := s.repo.Update(ctx, b, req.ExpectedVersion); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) Cancel(ctx context.Context, id string, expectedVersion int64) error {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	unlock := s.lockResources(b.ResourceID)
	defer unlock()

	b, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if b.Version != expectedVersion {
		return ErrStaleVersion
	}

	b.Status = StatusCancelled
	return s.repo.Update(ctx, b, expectedVersion)
}

func (s *service) ResolveConflict(ctx context.Context, id string, expectedVersion int64, accept bool) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.lockResources(b.ResourceID)
	defer unlock()

	b, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Version != expectedVersion {
		return nil, ErrStaleVersion
	}
	if b.Status != StatusConflicted {
		return nil, ErrNotConflicted
	}

	if accept {
		// Staff accepts the override: the booking stands even though its
		// range may still overlap the other side of the conflict.
		b.Status = StatusConfirmed
	} else {
		b.Status = StatusCancelled
	}

	if err := s.repo.Update(ctx, b, expectedVersion); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) ListActive(ctx context.Context, resourceID string) ([]*Booking, error) {
	return s.repo.ListActive(ctx, resourceID)
}

func (s *service) ApplyReconciliation(ctx context.Context, plan *Plan) error {
	if plan == nil || plan.Empty() {
		return nil
	}

	unlock := s.lockResources(plan.ResourceID)
	defer unlock()

	// The plan was computed from a snapshot read before this lock was taken.
	// Version checks in the batch only guard the plan's own updates; a booking
	// created or moved onto the resource in between is invisible to them. The
	// overlap invariant is therefore re-checked here: any active booking the
	// plan does not account for that collides with something the plan is about
	// to persist as active invalidates the whole plan, and the next sync cycle
	// reconciles from fresh state.
	planned := make(map[string]struct{}, len(plan.Creates)+len(plan.Updates))
	staged := make([]*Booking, 0, len(plan.Creates)+len(plan.Updates))
	for _, b := range plan.Creates {
		planned[b.ID] = struct{}{}
		if b.Status != StatusCancelled {
			staged = append(staged, b)
		}
	}
	for _, b := range plan.Updates {
		planned[b.ID] = struct{}{}
		if b.Status != StatusCancelled {
			staged = append(staged, b)
		}
	}

	active, err := s.repo.ListActive(ctx, plan.ResourceID)
	if err != nil {
		return err
	}
	for _, existing := range active {
		if _, ok := planned[existing.ID]; ok {
			continue
		}
		for _, b := range staged {
			if existing.Overlaps(b.StartDate, b.EndDate) {
				return ErrStaleVersion
			}
		}
	}

	return s.repo.ApplyBatch(ctx, plan.Creates, plan.Updates)
}
