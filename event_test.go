package caldav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerodav/caldav/internal/dav"
)

func newTestEventService(t *testing.T, handler http.HandlerFunc) (*eventService, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return newEventService(dav.NewTransport(ts.Client(), ts.URL, nil), zerolog.Nop()), ts
}

func TestEventListDecodesCalendarData(t *testing.T) {
	cal := Calendar{UID: "c1", Href: "/calendars/alice/work/"}

	svc, _ := newTestEventService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "REPORT", r.Method)
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, `<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/calendars/alice/work/e1.ics</D:href>
    <D:propstat>
      <D:prop>
        <D:getetag>"etag1"</D:getetag>
        <C:calendar-data>BEGIN:VCALENDAR&#10;BEGIN:VEVENT&#10;UID:u1&#10;DTSTART:20240115T100000Z&#10;SUMMARY:Meeting&#10;END:VEVENT&#10;END:VCALENDAR</C:calendar-data>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`)
	})

	events, err := svc.list(context.Background(), cal, nil, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].UID)
	assert.Equal(t, "Meeting", events[0].Summary)
	assert.Equal(t, `"etag1"`, events[0].ETag)
}

// Invariant 8: multiget fallback.
func TestEventListFallsBackToMultigetWhenCalendarDataOmitted(t *testing.T) {
	cal := Calendar{UID: "c1", Href: "/calendars/alice/work/"}
	var sawMultiget bool

	svc, _ := newTestEventService(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "calendar-multiget") {
			sawMultiget = true
			w.WriteHeader(http.StatusMultiStatus)
			io.WriteString(w, `<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/calendars/alice/work/e2.ics</D:href>
    <D:propstat>
      <D:prop>
        <D:getetag>"etag2"</D:getetag>
        <C:calendar-data>BEGIN:VCALENDAR&#10;BEGIN:VEVENT&#10;UID:u2&#10;DTSTART:20240115T100000Z&#10;SUMMARY:Fallback&#10;END:VEVENT&#10;END:VCALENDAR</C:calendar-data>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`)
			return
		}

		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, `<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:href>/calendars/alice/work/e2.ics</D:href>
    <D:propstat>
      <D:prop><D:getetag>"etag2"</D:getetag></D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`)
	})

	events, err := svc.list(context.Background(), cal, nil, nil)
	require.NoError(t, err)
	assert.True(t, sawMultiget, "expected a calendar-multiget fallback request")
	require.Len(t, events, 1)
	assert.Equal(t, "u2", events[0].UID)
}

func TestEventCreateConflictOnPreconditionFailed(t *testing.T) {
	cal := Calendar{UID: "c1", Href: "/calendars/alice/work/"}
	svc, _ := newTestEventService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "*", r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusPreconditionFailed)
	})

	_, err := svc.create(context.Background(), cal, CalendarEvent{UID: "u3", Summary: "x"})
	require.Error(t, err)
	assert.IsType(t, &ConflictError{}, err)
}

// Invariant 9: optimistic locking.
func TestEventUpdateConflictOnStaleETag(t *testing.T) {
	svc, _ := newTestEventService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"stale"`, r.Header.Get("If-Match"))
		w.WriteHeader(http.StatusPreconditionFailed)
	})

	ev := CalendarEvent{UID: "u4", Href: "/calendars/alice/work/u4.ics", ETag: `"stale"`}
	_, err := svc.update(context.Background(), ev)
	require.Error(t, err)
	assert.IsType(t, &ConflictError{}, err)
}

func TestEventDeleteNotFoundIsSuccess(t *testing.T) {
	svc, _ := newTestEventService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ev := CalendarEvent{UID: "u5", Href: "/calendars/alice/work/u5.ics"}
	assert.NoError(t, svc.delete(context.Background(), ev))
}

func TestEventDeleteConflictOnPreconditionFailed(t *testing.T) {
	svc, _ := newTestEventService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	})

	ev := CalendarEvent{UID: "u6", Href: "/calendars/alice/work/u6.ics", ETag: `"x"`}
	err := svc.delete(context.Background(), ev)
	require.Error(t, err)
	assert.IsType(t, &ConflictError{}, err)
}
