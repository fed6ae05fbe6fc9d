// Package caldav implements a CalDAV (RFC 4791) client layered on WebDAV
// (RFC 4918), with RFC 6764 server discovery and an RFC 5545 iCalendar
// codec (see the ical subpackage).
//
// The core is the protocol layer: discovery, the multistatus parse tree
// (internal/dav), the iCalendar codec, and the calendar/event services with
// ETag-based optimistic concurrency. Transport concerns — connection
// pooling, TLS — are left to net/http: NewClient builds a plain
// *http.Client with a 30-second timeout, and this package retries nothing.
//
// Construct a Client with Connect, then call its calendar and event methods:
//
//	client, err := caldav.Connect(ctx, caldav.ClientOptions{
//		BaseURL:  "https://caldav.example.com",
//		Username: "alice",
//		Password: "hunter2",
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	cals, err := client.GetCalendars(ctx)
package caldav
