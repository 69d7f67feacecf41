package feed

import (
	"net/http"
	"time"

	"github.com/W-VNT/conciergeos-sub004/internal/pkg/apperror"
)

var (
	ErrUnreachable       = apperror.New(http.StatusBadGateway, "feed unreachable")
	ErrTimeout           = apperror.New(http.StatusGatewayTimeout, "feed fetch timed out")
	ErrMalformedResponse = apperror.New(http.StatusBadGateway, "feed returned a malformed response")
	ErrParse             = apperror.New(http.StatusUnprocessableEntity, "feed payload is not a valid calendar")
)

// Source is one external channel calendar provisioned for a resource.
type Source struct {
	ID         string `yaml:"id"`
	ResourceID string `yaml:"resource_id"`
	URL        string `yaml:"url"`
	// Schedule is an optional cron expression overriding the global sync
	// schedule for this source.
	Schedule string `yaml:"schedule,omitempty"`
}

// Event is the normalized form of one calendar entry. Ordering of events
// within a feed carries no meaning downstream.
type Event struct {
	SourceID    string
	ExternalUID string
	ResourceID  string
	Start       time.Time
	End         time.Time
	Summary     string
}

// Warning records one skipped entry from an otherwise usable payload.
type Warning struct {
	ExternalUID string
	Reason      string
}
