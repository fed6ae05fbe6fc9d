package caldav

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/aerodav/caldav/ical"
	"github.com/aerodav/caldav/internal/dav"
)

// eventWindow is the maximum span of a single calendar-query time-range
// before list() splits the request into multiple sequential REPORTs. Several
// providers (the grounding for this is the teacher's own windowed-query
// helpers, written against Apple iCloud's behavior) cap either the result
// count or the time span of one calendar-query.
const eventWindow = 90 * 24 * time.Hour

// maxEventWindows bounds how many sequential REPORTs list() will issue for
// one caller request; a caller asking for a multi-year range gets that many
// windows, logged so the cap is never silent.
const maxEventWindows = 40

type eventService struct {
	transport *dav.Transport
	log       zerolog.Logger
}

func newEventService(t *dav.Transport, log zerolog.Logger) *eventService {
	return &eventService{transport: t, log: log}
}

// list implements spec §4.7: calendar-query over the calendar's VEVENT
// components, optionally bounded by [start, end), chunked into multiple
// REPORTs when the window exceeds eventWindow.
func (s *eventService) list(ctx context.Context, cal Calendar, start, end *time.Time) ([]CalendarEvent, error) {
	if start == nil || end == nil {
		return s.queryOnce(ctx, cal, nil)
	}

	if end.Sub(*start) <= eventWindow {
		tr := &dav.TimeRange{Start: ical.FormatUTC(*start), End: ical.FormatUTC(*end)}
		return s.queryOnce(ctx, cal, tr)
	}

	var out []CalendarEvent
	var decodeErrs *multierror.Error
	seen := map[string]bool{}
	windowStart := *start
	windows := 0
	for windowStart.Before(*end) && windows < maxEventWindows {
		windowEnd := windowStart.Add(eventWindow)
		if windowEnd.After(*end) {
			windowEnd = *end
		}
		tr := &dav.TimeRange{Start: ical.FormatUTC(windowStart), End: ical.FormatUTC(windowEnd)}
		chunk, err := s.queryOnce(ctx, cal, tr)
		if merr, ok := err.(*multierror.Error); ok {
			decodeErrs = multierror.Append(decodeErrs, merr.Errors...)
		} else if err != nil {
			return nil, err
		}
		for _, ev := range chunk {
			if !seen[ev.UID] {
				seen[ev.UID] = true
				out = append(out, ev)
			}
		}
		windowStart = windowEnd
		windows++
	}
	if windowStart.Before(*end) {
		s.log.Warn().Str("calendar", cal.Href).Time("truncated_at", windowStart).
			Msg("caldav: list window cap reached, range truncated")
	}
	return out, decodeErrs.ErrorOrNil()
}

// queryOnce issues one calendar-query REPORT and applies the
// calendar-data-omitted fallback to calendar-multiget, per spec §4.7 and §9.
func (s *eventService) queryOnce(ctx context.Context, cal Calendar, tr *dav.TimeRange) ([]CalendarEvent, error) {
	body := dav.CalendarQueryBody(tr, "", "")
	ms, err := s.transport.Report(ctx, cal.Href, 1, body)
	if err != nil {
		return nil, translateHTTPError("list events", cal.Href, err)
	}

	events, fallbackHrefs, decodeErrs := s.decodeResponses(ms, cal)
	if len(fallbackHrefs) > 0 {
		s.log.Debug().Int("count", len(fallbackHrefs)).Str("calendar", cal.Href).
			Msg("caldav: calendar-data omitted, falling back to calendar-multiget")
		multigetEvents, err := s.multiGet(ctx, cal, fallbackHrefs)
		if merr, ok := err.(*multierror.Error); ok {
			decodeErrs = multierror.Append(decodeErrs, merr.Errors...)
		} else if err != nil {
			return nil, err
		}
		events = append(events, multigetEvents...)
	}

	return events, decodeErrs.ErrorOrNil()
}

// decodeResponses decodes every response carrying calendar-data, and
// collects the hrefs of responses that omitted it (candidates for the
// multiget fallback). Responses with malformed or incomplete iCalendar
// bodies are skipped, not fatal, and folded into a multierror so a caller
// can inspect what was dropped.
func (s *eventService) decodeResponses(ms *dav.MultiStatus, cal Calendar) ([]CalendarEvent, []string, *multierror.Error) {
	var events []CalendarEvent
	var fallbackHrefs []string
	var errs *multierror.Error

	for _, resp := range ms.Responses {
		calData := resp.GetProperty("calendar-data", dav.NSCalDAV)
		if calData == "" {
			if strings.HasSuffix(resp.Href, ".ics") {
				fallbackHrefs = append(fallbackHrefs, resp.Href)
			}
			continue
		}

		result := ical.Decode(calData)
		if result.Event == nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: missing required fields %v", resp.Href, result.Missing))
			continue
		}

		ev := fromICalEvent(result.Event, cal.UID, cal.IsReadOnly)
		ev.Href = resp.Href
		ev.ETag = resp.GetProperty("getetag", dav.NSDAV)
		events = append(events, *ev)
	}

	return events, fallbackHrefs, errs
}

// multiGet implements spec §4.7 multi_get: one calendar-multiget REPORT
// fetching the bodies at hrefs.
func (s *eventService) multiGet(ctx context.Context, cal Calendar, hrefs []string) ([]CalendarEvent, error) {
	if len(hrefs) == 0 {
		return nil, nil
	}
	// hrefs are passed through as-is: CalendarMultigetBody builds the
	// request as an etree document, which escapes element text on
	// serialization, so pre-escaping here would double-escape.
	ms, err := s.transport.Report(ctx, cal.Href, 1, dav.CalendarMultigetBody(hrefs))
	if err != nil {
		return nil, translateHTTPError("multiget events", cal.Href, err)
	}

	events, _, errs := s.decodeResponses(ms, cal)
	return events, errs.ErrorOrNil()
}

// findByUID implements spec §4.7 find_by_uid.
func (s *eventService) findByUID(ctx context.Context, cal Calendar, uid string) (*CalendarEvent, error) {
	// uid is passed through as-is; see the multiGet comment on escaping.
	body := dav.CalendarQueryBody(nil, "UID", uid)
	ms, err := s.transport.Report(ctx, cal.Href, 1, body)
	if err != nil {
		return nil, translateHTTPError("find event by uid", cal.Href, err)
	}

	events, fallbackHrefs, _ := s.decodeResponses(ms, cal)
	if len(events) > 0 {
		return &events[0], nil
	}
	if len(fallbackHrefs) > 0 {
		fallback, err := s.multiGet(ctx, cal, fallbackHrefs[:1])
		if err != nil {
			return nil, err
		}
		if len(fallback) > 0 {
			return &fallback[0], nil
		}
	}
	return nil, nil
}

// create implements spec §4.7 create: PUT with If-None-Match: *.
func (s *eventService) create(ctx context.Context, cal Calendar, ev CalendarEvent) (*CalendarEvent, error) {
	if ev.UID == "" {
		ev.UID = uuid.NewString()
	}
	ev.CalendarID = cal.UID

	href := cal.Href
	if !strings.HasSuffix(href, "/") {
		href += "/"
	}
	href += ev.UID + ".ics"
	body := []byte(ical.Encode(ev.toICalEvent()))

	headers, err := s.transport.Put(ctx, href, "", body, dav.PutOptions{IfNoneMatch: "*"})
	if err != nil {
		if he, ok := err.(*dav.HTTPError); ok && he.Code == http.StatusPreconditionFailed {
			return nil, &ConflictError{Op: "create event", Href: href}
		}
		return nil, translateHTTPError("create event", href, err)
	}

	ev.Href = href
	ev.ETag = headers.Get("ETag")
	ev.RawICalendar = string(body)
	return &ev, nil
}

// update implements spec §4.7 update: requires ev.Href; If-Match is omitted
// (degrading to last-writer-wins) when ev.ETag is empty.
func (s *eventService) update(ctx context.Context, ev CalendarEvent) (*CalendarEvent, error) {
	if ev.Href == "" {
		return nil, &ProtocolError{Op: "update event", Err: fmt.Errorf("event has no href; fetch before updating")}
	}

	body := []byte(ical.Encode(ev.toICalEvent()))
	headers, err := s.transport.Put(ctx, ev.Href, "", body, dav.PutOptions{IfMatch: ev.ETag})
	if err != nil {
		if he, ok := err.(*dav.HTTPError); ok {
			switch he.Code {
			case http.StatusPreconditionFailed:
				return nil, &ConflictError{Op: "update event", Href: ev.Href}
			case http.StatusNotFound:
				return nil, &NotFoundError{Op: "update event", Href: ev.Href}
			}
		}
		return nil, translateHTTPError("update event", ev.Href, err)
	}

	ev.ETag = headers.Get("ETag")
	ev.RawICalendar = string(body)
	return &ev, nil
}

// delete implements spec §4.7 delete: 404 is treated as success (idempotent
// delete), 412 is a conflict.
func (s *eventService) delete(ctx context.Context, ev CalendarEvent) error {
	err := s.transport.Delete(ctx, ev.Href, ev.ETag)
	if err == nil {
		return nil
	}
	if dav.IsNotFound(err) {
		return nil
	}
	if he, ok := err.(*dav.HTTPError); ok && he.Code == http.StatusPreconditionFailed {
		return &ConflictError{Op: "delete event", Href: ev.Href}
	}
	return translateHTTPError("delete event", ev.Href, err)
}
