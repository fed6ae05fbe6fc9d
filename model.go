package caldav

import (
	"time"

	"github.com/samber/mo"

	"github.com/aerodav/caldav/ical"
)

// Calendar is a remote calendar collection.
type Calendar struct {
	UID                 string
	Href                string
	DisplayName         string
	Description         string
	Color               string
	Timezone            string
	CTag                string
	SupportedComponents []string
	IsReadOnly          bool
}

// CalendarEvent is a VEVENT resource bound to a parent Calendar.
type CalendarEvent struct {
	UID          string
	CalendarID   string
	Href         string
	ETag         string
	Start        time.Time
	End          mo.Option[time.Time]
	Summary      string
	Description  string
	Location     string
	IsAllDay     bool
	RawICalendar string
	IsReadOnly   bool
	RRule        string
	RecurrenceID string
	EXDate       []string
}

// Equal reports whether two events share the same UID, per the spec's
// identity invariant — events compare equal by UID alone.
func (e CalendarEvent) Equal(other CalendarEvent) bool {
	return e.UID == other.UID
}

// fromICalEvent lifts a decoded ical.Event into a CalendarEvent bound to
// calendarID, propagating the parent calendar's read-only flag.
func fromICalEvent(ev *ical.Event, calendarID string, isReadOnly bool) *CalendarEvent {
	out := &CalendarEvent{
		UID:          ev.UID,
		CalendarID:   calendarID,
		Start:        ev.Start,
		Summary:      ev.Summary,
		Description:  ev.Description,
		Location:     ev.Location,
		IsAllDay:     ev.IsAllDay,
		RawICalendar: ev.Raw,
		IsReadOnly:   isReadOnly,
		RRule:        ev.RRule,
		RecurrenceID: ev.RecurrenceID,
		EXDate:       ev.EXDate,
	}
	if ev.HasEnd {
		out.End = mo.Some(ev.End)
	}
	return out
}

// toICalEvent lowers a CalendarEvent into the codec's wire representation
// for serialization.
func (e CalendarEvent) toICalEvent() *ical.Event {
	out := &ical.Event{
		UID:          e.UID,
		Start:        e.Start,
		IsAllDay:     e.IsAllDay,
		Summary:      e.Summary,
		Description:  e.Description,
		Location:     e.Location,
		RRule:        e.RRule,
		RecurrenceID: e.RecurrenceID,
		EXDate:       e.EXDate,
	}
	if end, ok := e.End.Get(); ok {
		out.End = end
		out.HasEnd = true
	}
	return out
}

// DiscoveryResult is the immutable outcome of the three-stage discovery
// state machine. All three URLs are absolute. Cached for the client's
// lifetime unless ClearDiscoveryCache is called.
type DiscoveryResult struct {
	CalDAVEndpoint  string
	PrincipalURL    string
	CalendarHomeSet string
	DisplayName     mo.Option[string]
}
