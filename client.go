package caldav

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/aerodav/caldav/internal/dav"
)

// Client is the public façade wiring authentication, transport, discovery
// caching and the calendar/event services together. It owns the transport
// and must be closed exactly once; see spec §4.8 and §5.
type Client struct {
	baseURL   string
	transport *dav.Transport
	discovery *discoveryService
	calendars *calendarService
	events    *eventService
	log       zerolog.Logger

	mu           sync.Mutex
	once         *sync.Once
	cachedResult *DiscoveryResult
	discoveryErr error
}

// NewClient validates opts, enforces the HTTPS scheme policy, and wires an
// authentication adapter, without performing any network I/O. Use Connect
// for the ergonomic verify-then-discover constructor.
func NewClient(opts ClientOptions) (*Client, error) {
	if err := validateStruct("new client", opts); err != nil {
		return nil, err
	}

	parsed, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, &ProtocolError{Op: "new client", Err: err}
	}
	if parsed.Scheme != "https" && !opts.AllowInsecure {
		return nil, &InsecureConnectionError{URL: opts.BaseURL}
	}

	transport := dav.NewTransport(&http.Client{Timeout: 30 * time.Second}, opts.BaseURL, authAdapter(opts))
	transport.Metrics = dav.NewMetrics(opts.Registerer)
	return newClientFromTransport(opts.BaseURL, transport), nil
}

// newClientFromTransport wires the discovery/calendar/event services around
// an already-constructed transport, shared by NewClient and
// ConnectWithTokenSource.
func newClientFromTransport(baseURL string, transport *dav.Transport) *Client {
	c := &Client{
		baseURL:   baseURL,
		transport: transport,
		log:       zerolog.Nop(),
		once:      &sync.Once{},
	}
	c.discovery = newDiscoveryService(transport, c.log)
	c.calendars = newCalendarService(transport)
	c.events = newEventService(transport, c.log)
	return c
}

// verifyAndDiscover runs VerifyAuth then discover, closing c on any
// failure — the shared tail of Connect and ConnectWithTokenSource.
func verifyAndDiscover(ctx context.Context, c *Client) error {
	ok, err := c.VerifyAuth(ctx)
	if err != nil {
		c.Close()
		return err
	}
	if !ok {
		c.Close()
		return &AuthenticationError{Op: "connect", Err: fmt.Errorf("credentials rejected")}
	}
	if _, err := c.discover(ctx); err != nil {
		c.Close()
		return err
	}
	return nil
}

// Connect is the ergonomic constructor from spec §4.8: build the client,
// verify credentials, run discovery, and return. Any failure after
// construction closes the partially-built client before returning the error.
func Connect(ctx context.Context, opts ClientOptions) (*Client, error) {
	c, err := NewClient(opts)
	if err != nil {
		return nil, err
	}
	if err := verifyAndDiscover(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// WithLogger attaches a zerolog.Logger that the transport, discovery and
// event services log to: per-request results, discovery stage transitions,
// multiget fallback decisions and list-window truncation.
func (c *Client) WithLogger(log zerolog.Logger) *Client {
	c.log = log
	c.transport.Log = log
	c.discovery.log = log
	c.events.log = log
	return c
}

// VerifyAuth performs the standalone credential-check PROPFIND described in
// spec §4.5.
func (c *Client) VerifyAuth(ctx context.Context) (bool, error) {
	return c.discovery.verifyAuth(ctx, c.baseURL)
}

// discover runs the three-stage discovery state machine at most once per
// sync.Once generation and memoizes the result. Concurrent callers racing
// into discover all block on the same Once, so the duplicate-work race
// spec §5 tolerates never actually happens within one generation; it can
// only recur across a ClearDiscoveryCache.
func (c *Client) discover(ctx context.Context) (*DiscoveryResult, error) {
	c.mu.Lock()
	once := c.once
	c.mu.Unlock()

	once.Do(func() {
		result, err := c.discovery.discover(ctx, c.baseURL)
		c.mu.Lock()
		c.cachedResult, c.discoveryErr = result, err
		c.mu.Unlock()
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cachedResult, c.discoveryErr
}

// ClearDiscoveryCache invalidates the memoized DiscoveryResult by swapping
// in a fresh sync.Once; the next calendar/event call re-runs discovery.
func (c *Client) ClearDiscoveryCache() {
	c.mu.Lock()
	c.once = &sync.Once{}
	c.cachedResult = nil
	c.discoveryErr = nil
	c.mu.Unlock()
}

// Close releases the underlying transport. Safe to call once; Client is not
// usable afterward.
func (c *Client) Close() error {
	c.transport.HTTPClient.CloseIdleConnections()
	return nil
}

// GetCalendars lists every calendar collection under the discovered
// calendar-home-set.
func (c *Client) GetCalendars(ctx context.Context) ([]Calendar, error) {
	result, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}
	return c.calendars.list(ctx, result.CalendarHomeSet)
}

// GetCalendar fetches a single calendar collection by its href.
func (c *Client) GetCalendar(ctx context.Context, href string) (*Calendar, error) {
	return c.calendars.get(ctx, href)
}

// CreateCalendar creates a new calendar collection named name under the
// discovered calendar-home-set.
func (c *Client) CreateCalendar(ctx context.Context, name string, opts CreateCalendarOptions) (*Calendar, error) {
	result, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}
	return c.calendars.create(ctx, result.CalendarHomeSet, name, opts)
}

// UpdateCalendar applies a partial update to an existing calendar.
func (c *Client) UpdateCalendar(ctx context.Context, cal Calendar, opts UpdateCalendarOptions) error {
	return c.calendars.update(ctx, cal.Href, opts)
}

// DeleteCalendar deletes a calendar collection.
func (c *Client) DeleteCalendar(ctx context.Context, cal Calendar) error {
	return c.calendars.delete(ctx, cal.Href)
}

// GetEvents lists events in cal, optionally bounded to [start, end).
func (c *Client) GetEvents(ctx context.Context, cal Calendar, start, end *time.Time) ([]CalendarEvent, error) {
	return c.events.list(ctx, cal, start, end)
}

// GetEventsByURLs fetches events at the given hrefs via calendar-multiget.
func (c *Client) GetEventsByURLs(ctx context.Context, cal Calendar, hrefs []string) ([]CalendarEvent, error) {
	return c.events.multiGet(ctx, cal, hrefs)
}

// GetEventByUID searches cal for an event whose UID matches uid.
func (c *Client) GetEventByUID(ctx context.Context, cal Calendar, uid string) (*CalendarEvent, error) {
	return c.events.findByUID(ctx, cal, uid)
}

// CreateEvent creates ev under cal, rejecting if a resource already exists
// at the computed path.
func (c *Client) CreateEvent(ctx context.Context, cal Calendar, ev CalendarEvent) (*CalendarEvent, error) {
	return c.events.create(ctx, cal, ev)
}

// UpdateEvent writes ev back with an If-Match precondition when ev.ETag is
// set.
func (c *Client) UpdateEvent(ctx context.Context, ev CalendarEvent) (*CalendarEvent, error) {
	return c.events.update(ctx, ev)
}

// DeleteEvent deletes ev; a 404 is treated as success.
func (c *Client) DeleteEvent(ctx context.Context, ev CalendarEvent) error {
	return c.events.delete(ctx, ev)
}

// authAdapter builds the header-setting function passed to the transport:
// Bearer (backed by an oauth2.StaticTokenSource) takes priority over Basic
// when both are configured.
func authAdapter(opts ClientOptions) func(*http.Request) {
	if opts.BearerToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.BearerToken})
		return func(req *http.Request) {
			tok, err := ts.Token()
			if err != nil {
				return
			}
			tok.SetAuthHeader(req)
		}
	}
	if opts.Username != "" || opts.Password != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		return func(req *http.Request) {
			req.Header.Set("Authorization", "Basic "+creds)
		}
	}
	return nil
}

// ConnectWithTokenSource is the Bearer variant of Connect for callers with a
// refreshing oauth2.TokenSource instead of a static token.
func ConnectWithTokenSource(ctx context.Context, baseURL string, ts oauth2.TokenSource, allowInsecure bool) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ProtocolError{Op: "connect", Err: err}
	}
	if parsed.Scheme != "https" && !allowInsecure {
		return nil, &InsecureConnectionError{URL: baseURL}
	}

	transport := dav.NewTransport(&http.Client{Timeout: 30 * time.Second}, baseURL, func(req *http.Request) {
		tok, err := ts.Token()
		if err != nil {
			return
		}
		tok.SetAuthHeader(req)
	})

	c := newClientFromTransport(baseURL, transport)
	if err := verifyAndDiscover(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
