package http

import (
	"time"

	"github.com/W-VNT/conciergeos-sub004/internal/booking"
	"github.com/W-VNT/conciergeos-sub004/internal/grid"
)

// Date values cross the wire as plain calendar days; ranges are half-open so
// a checkout day never collides with the next check-in.
const dateLayout = "2006-01-02"

type BookingResponse struct {
	ID          string    `json:"id"`
	ResourceID  string    `json:"resource_id"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	Origin      string    `json:"origin"`
	ExternalUID string    `json:"external_uid,omitempty"`
	Status      string    `json:"status"`
	Summary     string    `json:"summary,omitempty"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:          b.ID,
		ResourceID:  b.ResourceID,
		StartDate:   b.StartDate.Format(dateLayout),
		EndDate:     b.EndDate.Format(dateLayout),
		Origin:      b.Origin.Source,
		ExternalUID: b.Origin.ExternalUID,
		Status:      string(b.Status),
		Summary:     b.Summary,
		Version:     b.Version,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

type CreateBookingBody struct {
	ResourceID string `json:"resource_id" binding:"required"`
	StartDate  string `json:"start_date" binding:"required"`
	EndDate    string `json:"end_date" binding:"required"`
	Summary    string `json:"summary"`
}

type MoveBookingBody struct {
	ResourceID string `json:"resource_id" binding:"required"`
	StartDate  string `json:"start_date" binding:"required"`
	EndDate    string `json:"end_date" binding:"required"`
	// ExpectedVersion is the version the dashboard rendered before the drag.
	ExpectedVersion int64 `json:"expected_version"`
}

type CancelBookingBody struct {
	ExpectedVersion int64 `json:"expected_version" binding:"required"`
}

type ResolveBookingBody struct {
	ExpectedVersion int64 `json:"expected_version" binding:"required"`
	// Action is "accept" (keep the booking despite the overlap) or "reject"
	// (cancel it).
	Action string `json:"action" binding:"required,oneof=accept reject"`
}

// MoveResponse mirrors grid.MoveResult: a drag always resolves to an accepted
// state or an explicit rejection reason.
type MoveResponse struct {
	Accepted    bool             `json:"accepted"`
	Reason      string           `json:"reason,omitempty"`
	Booking     *BookingResponse `json:"booking,omitempty"`
	Conflicting *BookingResponse `json:"conflicting,omitempty"`
}

func NewMoveResponse(res *grid.MoveResult) MoveResponse {
	out := MoveResponse{
		Accepted: res.Accepted,
		Reason:   string(res.Reason),
	}
	if res.Booking != nil {
		b := NewBookingResponse(res.Booking)
		out.Booking = &b
	}
	if res.Conflicting != nil {
		b := NewBookingResponse(res.Conflicting)
		out.Conflicting = &b
	}
	return out
}
