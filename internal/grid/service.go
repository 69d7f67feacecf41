package grid

import (
	"context"
	"errors"
	"time"

	"github.com/W-VNT/conciergeos-sub004/internal/booking"
)

// RejectReason tells the drag-and-drop UI exactly why a move was refused, so
// a drag always resolves to a confirmed new state or a specific rejection.
type RejectReason string

const (
	ReasonStaleVersion RejectReason = "stale_version"
	ReasonOverlap      RejectReason = "overlap"
	ReasonInvalidRange RejectReason = "invalid_range"
)

type ProposeMoveRequest struct {
	BookingID  string
	ResourceID string
	StartDate  time.Time
	EndDate    time.Time
	// ExpectedVersion is the version the UI rendered. Zero means "use the
	// current stored version", i.e. only guard against races inside the call.
	ExpectedVersion int64
}

// MoveResult is the surface's answer to a drag gesture. On acceptance Booking
// is the new persisted state; on a stale-version rejection it is the current
// state so the UI can redraw before the user retries; on an overlap rejection
// Conflicting identifies the booking to highlight.
type MoveResult struct {
	Accepted    bool
	Reason      RejectReason
	Booking     *booking.Booking
	Conflicting *booking.Booking
}

type Service interface {
	ProposeMove(ctx context.Context, req ProposeMoveRequest) (*MoveResult, error)
}

// service holds no state of its own; the scheduling store stays the single
// source of truth for what is persisted.
type service struct {
	store booking.Service
}

func NewService(store booking.Service) Service {
	return &service{store: store}
}

func (s *service) ProposeMove(ctx context.Context, req ProposeMoveRequest) (*MoveResult, error) {
	expected := req.ExpectedVersion
	if expected == 0 {
		current, err := s.store.Get(ctx, req.BookingID)
		if err != nil {
			return nil, err
		}
		expected = current.Version
	}

	moved, err := s.store.Move(ctx, booking.MoveRequest{
		BookingID:       req.BookingID,
		ResourceID:      req.ResourceID,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		ExpectedVersion: expected,
	})
	if err == nil {
		return &MoveResult{Accepted: true, Booking: moved}, nil
	}

	var overlapErr *booking.OverlapError
	switch {
	case errors.Is(err, booking.ErrStaleVersion):
		// Surface the other writer's state instead of silently overwriting.
		current, getErr := s.store.Get(ctx, req.BookingID)
		if getErr != nil {
			return nil, getErr
		}
		return &MoveResult{Reason: ReasonStaleVersion, Booking: current}, nil
	case errors.As(err, &overlapErr):
		return &MoveResult{Reason: ReasonOverlap, Conflicting: overlapErr.Conflicting}, nil
	case errors.Is(err, booking.ErrInvalidRange):
		return &MoveResult{Reason: ReasonInvalidRange}, nil
	default:
		return nil, err
	}
}
