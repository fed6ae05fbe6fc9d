package caldav

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/beevik/etree"

	"github.com/aerodav/caldav/internal/dav"
)

// calendarService implements spec §4.6: list/get/create/update/delete over
// calendar collections, plus privilege-based read-only detection.
type calendarService struct {
	transport *dav.Transport
}

func newCalendarService(t *dav.Transport) *calendarService {
	return &calendarService{transport: t}
}

// list performs PROPFIND Depth:1 on homeURL and returns every child
// collection advertising the CalDAV calendar resourcetype.
func (s *calendarService) list(ctx context.Context, homeURL string) ([]Calendar, error) {
	ms, err := s.transport.PropFind(ctx, homeURL, 1, dav.CalendarPropertiesPropFind())
	if err != nil {
		return nil, translateHTTPError("list calendars", "", err)
	}

	var out []Calendar
	for _, resp := range ms.Responses {
		if sameCollectionPath(resp.Href, homeURL) {
			continue
		}
		if !resp.IsCalendar() {
			continue
		}
		out = append(out, parseCalendar(resp))
	}
	return out, nil
}

// get performs PROPFIND Depth:0 on a single calendar collection.
func (s *calendarService) get(ctx context.Context, href string) (*Calendar, error) {
	ms, err := s.transport.PropFind(ctx, href, 0, dav.CalendarPropertiesPropFind())
	if err != nil {
		return nil, translateHTTPError("get calendar", href, err)
	}
	if len(ms.Responses) == 0 {
		return nil, &NotFoundError{Op: "get calendar", Href: href}
	}
	resp := ms.Responses[0]
	if !resp.IsCalendar() {
		return nil, &NotFoundError{Op: "get calendar", Href: href}
	}
	cal := parseCalendar(resp)
	return &cal, nil
}

// create sanitizes name into a path segment, issues MKCALENDAR, and
// refreshes via get so the caller receives server-assigned fields.
func (s *calendarService) create(ctx context.Context, homeURL, name string, opts CreateCalendarOptions) (*Calendar, error) {
	if err := validateStruct("create calendar", opts); err != nil {
		return nil, err
	}

	href := joinHomePath(homeURL, sanitizeCalendarName(name))

	props := []dav.Prop{{Local: "displayname", Value: name}}
	if opts.Description != "" {
		props = append(props, dav.Prop{Local: "calendar-description", NS: dav.NSCalDAV, Value: opts.Description})
	}
	if opts.Color != "" {
		props = append(props, dav.Prop{Local: "calendar-color", NS: dav.NSAppleICal, Value: opts.Color})
	}
	if opts.Timezone != "" {
		props = append(props, dav.Prop{Local: "calendar-timezone", NS: dav.NSCalDAV, Value: opts.Timezone})
	}

	components := opts.SupportedComponents
	if len(components) == 0 {
		components = []string{"VEVENT"}
	}

	body := dav.MkcalendarBody(props, components)
	if err := s.transport.Mkcalendar(ctx, href, body); err != nil {
		if he, ok := err.(*dav.HTTPError); ok && he.Code == http.StatusMethodNotAllowed {
			return nil, &ProtocolError{Op: "create calendar", Err: errAlreadyExists}
		}
		return nil, translateHTTPError("create calendar", href, err)
	}

	return s.get(ctx, href)
}

// update issues a PROPPATCH with only the fields present in opts.
func (s *calendarService) update(ctx context.Context, href string, opts UpdateCalendarOptions) error {
	if err := validateStruct("update calendar", opts); err != nil {
		return err
	}

	var props []dav.Prop
	if opts.DisplayName != "" {
		props = append(props, dav.Prop{Local: "displayname", Value: opts.DisplayName})
	}
	if opts.Description != "" {
		props = append(props, dav.Prop{Local: "calendar-description", NS: dav.NSCalDAV, Value: opts.Description})
	}
	if opts.Color != "" {
		props = append(props, dav.Prop{Local: "calendar-color", NS: dav.NSAppleICal, Value: opts.Color})
	}
	if opts.Timezone != "" {
		props = append(props, dav.Prop{Local: "calendar-timezone", NS: dav.NSCalDAV, Value: opts.Timezone})
	}
	if len(props) == 0 {
		return nil
	}

	_, err := s.transport.PropPatch(ctx, href, dav.PropPatchBody(props))
	if err != nil {
		return translateHTTPError("update calendar", href, err)
	}
	return nil
}

// delete removes a calendar collection. A 404 is translated to NotFound,
// per spec §4.6 — delete is not idempotent for calendars the way it is for
// events.
func (s *calendarService) delete(ctx context.Context, href string) error {
	if err := s.transport.Delete(ctx, href, ""); err != nil {
		return translateHTTPError("delete calendar", href, err)
	}
	return nil
}

var errAlreadyExists = &calendarExistsError{}

type calendarExistsError struct{}

func (e *calendarExistsError) Error() string {
	return "calendar already exists or creation not allowed"
}

// sanitizeNameRE matches runs of characters outside [a-z0-9-] once the name
// has been lowercased.
var sanitizeNameRE = regexp.MustCompile(`[^a-z0-9-]+`)
var collapseDashRE = regexp.MustCompile(`-+`)

// sanitizeCalendarName implements spec §4.6's create path rule: lowercase,
// replace non-[a-z0-9-] runs with "-", collapse repeats, trim edges.
func sanitizeCalendarName(name string) string {
	s := strings.ToLower(name)
	s = sanitizeNameRE.ReplaceAllString(s, "-")
	s = collapseDashRE.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func joinHomePath(home, segment string) string {
	if !strings.HasSuffix(home, "/") {
		home += "/"
	}
	return home + segment + "/"
}

// sameCollectionPath reports whether href refers to the same collection as
// homeURL, ignoring a trailing slash and an absolute scheme://host prefix
// PROPFIND responses commonly omit, so the home collection itself is never
// mistaken for one of its children.
func sameCollectionPath(href, homeURL string) bool {
	a := strings.TrimSuffix(trimHost(href), "/")
	b := strings.TrimSuffix(trimHost(homeURL), "/")
	return a == b
}

// trimHost strips scheme://host from an absolute URL, since PROPFIND
// responses commonly carry path-only hrefs even when the request used an
// absolute URL.
func trimHost(u string) string {
	if idx := strings.Index(u, "://"); idx >= 0 {
		rest := u[idx+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			return rest[slash:]
		}
		return "/"
	}
	return u
}

// writablePrivileges is the set of DAV:privilege children that mark a
// calendar as writable, per spec §4.6 invariant 6.
var writablePrivileges = map[string]bool{
	"write":         true,
	"write-content": true,
	"bind":          true,
	"unbind":        true,
	"all":           true,
}

func parseCalendar(resp *dav.Response) Calendar {
	cal := Calendar{
		Href:        resp.Href,
		DisplayName: resp.GetProperty("displayname", dav.NSDAV),
		Description: resp.GetProperty("calendar-description", dav.NSCalDAV),
		Color:       resp.GetProperty("calendar-color", dav.NSAppleICal),
		Timezone:    resp.GetProperty("calendar-timezone", dav.NSCalDAV),
		CTag:        resp.GetProperty("getctag", dav.NSCalendarServer),
	}
	if !strings.HasSuffix(cal.Href, "/") {
		cal.Href += "/"
	}
	if cal.DisplayName == "" {
		cal.DisplayName = "Untitled"
	}

	cal.UID = cal.Href

	if compSet := resp.GetPropertyElement("supported-calendar-component-set", dav.NSCalDAV); compSet != nil {
		for _, comp := range compSet.ChildElements() {
			if name := comp.SelectAttrValue("name", ""); name != "" {
				cal.SupportedComponents = append(cal.SupportedComponents, name)
			}
		}
	}
	if len(cal.SupportedComponents) == 0 {
		cal.SupportedComponents = []string{"VEVENT"}
	}

	cal.IsReadOnly = isReadOnly(resp.GetPropertyElement("current-user-privilege-set", dav.NSDAV))

	return cal
}

// isReadOnly implements spec §4.6's privilege scan: absence of the
// privilege subtree is treated as writable.
func isReadOnly(privSet *etree.Element) bool {
	if privSet == nil {
		return false
	}
	for _, priv := range privSet.ChildElements() {
		if priv.Tag != "privilege" {
			continue
		}
		for _, grant := range priv.ChildElements() {
			if writablePrivileges[grant.Tag] {
				return false
			}
		}
	}
	return true
}

func translateHTTPError(op, href string, err error) error {
	he, ok := err.(*dav.HTTPError)
	if !ok {
		return &ProtocolError{Op: op, Err: err}
	}
	switch he.Code {
	case http.StatusUnauthorized:
		return &AuthenticationError{Op: op, Err: he}
	case http.StatusNotFound:
		return &NotFoundError{Op: op, Href: href}
	case http.StatusConflict, http.StatusPreconditionFailed:
		return &ConflictError{Op: op, Href: href}
	default:
		return &ProtocolError{Op: op, Err: he}
	}
}
