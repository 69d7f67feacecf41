package feed

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// Normalizer parses calendar-exchange payloads into Events. All date values
// are collapsed to whole days in the reference location before any range
// comparison happens downstream.
type Normalizer struct {
	loc *time.Location
}

func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// Normalize parses one ICS payload for a source. A payload may bundle many
// VEVENTs; entries missing required fields or with a non-positive range are
// skipped and reported as warnings, never failing the whole feed.
func (n *Normalizer) Normalize(payload []byte, src Source) ([]Event, []Warning, error) {
	if len(payload) == 0 {
		return nil, nil, fmt.Errorf("%w: empty payload", ErrParse)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var events []Event
	var warnings []Warning

	for _, ve := range cal.Events() {
		ev, warn := n.normalizeEvent(ve, src)
		if warn != nil {
			warnings = append(warnings, *warn)
			continue
		}
		events = append(events, ev)
	}

	return events, warnings, nil
}

func (n *Normalizer) normalizeEvent(ve *ical.VEvent, src Source) (Event, *Warning) {
	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return Event{}, &Warning{Reason: "missing UID"}
	}
	uid := uidProp.Value

	start, err := eventTime(ve, ical.ComponentPropertyDtStart, n.loc)
	if err != nil {
		return Event{}, &Warning{ExternalUID: uid, Reason: "missing or invalid DTSTART"}
	}
	end, err := eventTime(ve, ical.ComponentPropertyDtEnd, n.loc)
	if err != nil {
		return Event{}, &Warning{ExternalUID: uid, Reason: "missing or invalid DTEND"}
	}

	startDay := toDate(start, n.loc)
	endDay := toDate(end, n.loc)

	if !endDay.After(startDay) {
		return Event{}, &Warning{ExternalUID: uid, Reason: "end is not after start"}
	}

	summary := ""
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		summary = p.Value
	}

	return Event{
		SourceID:    src.ID,
		ExternalUID: uid,
		ResourceID:  src.ResourceID,
		Start:       startDay,
		End:         endDay,
		Summary:     summary,
	}, nil
}

// eventTime resolves DTSTART/DTEND, handling both DATE and DATE-TIME values.
// The library's helpers cover timezone-qualified values; date-only values are
// parsed in the reference location so a feed's "checkout day" does not shift
// across midnight.
func eventTime(ve *ical.VEvent, prop ical.ComponentProperty, loc *time.Location) (time.Time, error) {
	p := ve.GetProperty(prop)
	if p == nil || p.Value == "" {
		return time.Time{}, fmt.Errorf("missing %s", prop)
	}

	if !strings.Contains(p.Value, "T") {
		return time.ParseInLocation("20060102", p.Value, loc)
	}

	switch prop {
	case ical.ComponentPropertyDtStart:
		return ve.GetStartAt()
	default:
		return ve.GetEndAt()
	}
}

// toDate truncates t to midnight of its calendar day in loc.
func toDate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
