package booking

import (
	"net/http"
	"time"

	"github.com/W-VNT/conciergeos-sub004/internal/pkg/apperror"
)

var (
	ErrNotFound      = apperror.New(http.StatusNotFound, "booking not found")
	ErrOverlap       = apperror.New(http.StatusConflict, "date range collides with an existing booking")
	ErrInvalidRange  = apperror.New(http.StatusBadRequest, "end date must be after start date")
	ErrStaleVersion  = apperror.New(http.StatusConflict, "booking was modified by another process")
	ErrNotConflicted = apperror.New(http.StatusBadRequest, "booking is not in conflicted state")
	ErrCancelled     = apperror.New(http.StatusConflict, "booking is cancelled")

	ErrDuplicateExternalUID = apperror.New(http.StatusConflict, "external event is already imported")
)

type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusConflicted Status = "conflicted"
	StatusCancelled  Status = "cancelled"
)

// LocalSource is the origin source id for bookings entered by staff.
const LocalSource = "local"

// Origin identifies where a booking came from. Source is LocalSource for
// staff-entered bookings; for imported bookings it is the feed's source id
// and ExternalUID is the feed's own stable identifier for the event.
type Origin struct {
	Source      string
	ExternalUID string
}

func LocalOrigin() Origin {
	return Origin{Source: LocalSource}
}

func SyncedOrigin(sourceID, externalUID string) Origin {
	return Origin{Source: sourceID, ExternalUID: externalUID}
}

func (o Origin) IsLocal() bool {
	return o.Source == LocalSource
}

// Booking occupies a half-open date range [StartDate, EndDate) on one resource.
type Booking struct {
	ID         string
	ResourceID string
	StartDate  time.Time
	EndDate    time.Time
	Origin     Origin
	Status     Status
	Summary    string
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Overlaps reports whether the booking's range intersects [start, end).
// Touching boundaries do not count: an end equal to the other's start is
// adjacency, not overlap.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartDate.Before(end) && b.EndDate.After(start)
}

// Filter narrows timeline reads.
type Filter struct {
	ResourceID string
	Status     string
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}
