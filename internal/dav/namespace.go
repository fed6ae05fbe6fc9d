// Package dav implements the WebDAV/CalDAV wire-level primitives shared by
// the discovery, calendar and event services: XML namespace handling, the
// multistatus parse tree, the PROPFIND request builder and the HTTP
// transport adapter.
//
// Nothing here is specific to iCalendar payload semantics; see the ical
// package for that.
package dav

// Well-known XML namespaces used throughout CalDAV/WebDAV requests and
// responses.
const (
	NSDAV            = "DAV:"
	NSCalDAV         = "urn:ietf:params:xml:ns:caldav"
	NSAppleICal      = "http://apple.com/ns/ical/"
	NSCalendarServer = "http://calendarserver.org/ns/"
)

// nsPrefix returns the conventional prefix for a known namespace, used only
// for readability of the emitted XML; servers must not rely on prefixes.
func nsPrefix(ns string) string {
	switch ns {
	case NSDAV:
		return "D"
	case NSCalDAV:
		return "C"
	case NSAppleICal:
		return "AI"
	case NSCalendarServer:
		return "CS"
	default:
		return "X"
	}
}
