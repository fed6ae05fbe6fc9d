package dav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const xmlContentType = "application/xml; charset=utf-8"

// Metrics holds the Prometheus collectors a Transport reports against. A
// zero-value Metrics is safe to use and simply does not record anything;
// NewMetrics registers a real set against reg.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics builds the caldav_requests_total / caldav_request_duration_seconds
// collectors and registers them against reg. reg may be nil, in which case
// the returned Metrics still works but is never scraped — useful for
// embedding in tests or callers who don't run a /metrics endpoint.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caldav_requests_total",
			Help: "Total CalDAV/WebDAV requests issued by the transport adapter.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "caldav_request_duration_seconds",
			Help:    "CalDAV/WebDAV request latency by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.requestDuration)
	}
	return m
}

func (m *Metrics) observe(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if m.requestsTotal != nil {
		m.requestsTotal.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	}
	if m.requestDuration != nil {
		m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	}
}

// Transport is a thin, typed wrapper over an *http.Client that issues the
// WebDAV/CalDAV methods with the headers each one requires. It never
// interprets status codes beyond separating 2xx/207 (success, body
// returned) from everything else (*HTTPError), leaving protocol-specific
// handling to the services layer.
type Transport struct {
	HTTPClient *http.Client
	BaseURL    string
	Auth       func(*http.Request)
	Metrics    *Metrics
	Log        zerolog.Logger
}

// NewTransport builds a Transport against baseURL using client (which must
// not be nil). auth, if non-nil, is invoked on every outgoing request to
// attach credentials.
func NewTransport(client *http.Client, baseURL string, auth func(*http.Request)) *Transport {
	return &Transport{
		HTTPClient: client,
		BaseURL:    baseURL,
		Auth:       auth,
		Metrics:    NewMetrics(nil),
		Log:        zerolog.Nop(),
	}
}

func (t *Transport) do(ctx context.Context, method, path string, headers map[string]string, body []byte) ([]byte, http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, resolveURL(t.BaseURL, path), reader)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if t.Auth != nil {
		t.Auth(req)
	}

	start := time.Now()
	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		t.Log.Debug().Str("method", method).Str("path", path).Err(err).Msg("dav: transport error")
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	t.Metrics.observe(method, resp.StatusCode, time.Since(start))
	t.Log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("dav: request complete")

	if resp.StatusCode < 200 || (resp.StatusCode >= 300 && resp.StatusCode != 207) {
		return respBody, resp.Header, &HTTPError{Code: resp.StatusCode, Body: respBody}
	}

	return respBody, resp.Header, nil
}

func resolveURL(base, path string) string {
	if path == "" {
		return base
	}
	if isAbsoluteURL(path) {
		return path
	}
	return joinURL(base, path)
}

func isAbsoluteURL(s string) bool {
	return len(s) > 7 && (s[:7] == "http://" || (len(s) > 8 && s[:8] == "https://"))
}

func joinURL(base, path string) string {
	if len(base) > 0 && base[len(base)-1] == '/' && len(path) > 0 && path[0] == '/' {
		return base + path[1:]
	}
	if (len(base) == 0 || base[len(base)-1] != '/') && (len(path) == 0 || path[0] != '/') {
		return base + "/" + path
	}
	return base + path
}

// PropFind issues a PROPFIND request with the given Depth (0 or 1) and XML
// body, returning the parsed multistatus.
func (t *Transport) PropFind(ctx context.Context, path string, depth int, body []byte) (*MultiStatus, error) {
	respBody, _, err := t.do(ctx, "PROPFIND", path, map[string]string{
		"Depth":        fmt.Sprintf("%d", depth),
		"Content-Type": xmlContentType,
	}, body)
	if err != nil {
		return nil, err
	}
	return ParseMultiStatus(respBody)
}

// PropPatch issues a PROPPATCH request and returns the parsed multistatus
// describing which property updates succeeded.
func (t *Transport) PropPatch(ctx context.Context, path string, body []byte) (*MultiStatus, error) {
	respBody, _, err := t.do(ctx, "PROPPATCH", path, map[string]string{
		"Content-Type": xmlContentType,
	}, body)
	if err != nil {
		return nil, err
	}
	return ParseMultiStatus(respBody)
}

// Mkcalendar issues a MKCALENDAR request. body may be nil, in which case no
// Content-Type header is sent, per RFC 4791.
func (t *Transport) Mkcalendar(ctx context.Context, path string, body []byte) error {
	headers := map[string]string{}
	if body != nil {
		headers["Content-Type"] = xmlContentType
	}
	_, _, err := t.do(ctx, "MKCALENDAR", path, headers, body)
	return err
}

// Report issues a REPORT request (calendar-query, calendar-multiget) with
// the given Depth and returns the parsed multistatus.
func (t *Transport) Report(ctx context.Context, path string, depth int, body []byte) (*MultiStatus, error) {
	respBody, _, err := t.do(ctx, "REPORT", path, map[string]string{
		"Depth":        fmt.Sprintf("%d", depth),
		"Content-Type": xmlContentType,
	}, body)
	if err != nil {
		return nil, err
	}
	return ParseMultiStatus(respBody)
}

// PutOptions carries the conditional headers for a PUT request.
type PutOptions struct {
	IfMatch     string // update-if-unchanged
	IfNoneMatch string // "*" for create-if-absent
}

// Put issues a PUT request with a text/calendar content type by default and
// returns the response headers (to extract ETag/Location).
func (t *Transport) Put(ctx context.Context, path string, contentType string, body []byte, opts PutOptions) (http.Header, error) {
	if contentType == "" {
		contentType = "text/calendar; charset=utf-8"
	}
	headers := map[string]string{"Content-Type": contentType}
	if opts.IfMatch != "" {
		headers["If-Match"] = opts.IfMatch
	}
	if opts.IfNoneMatch != "" {
		headers["If-None-Match"] = opts.IfNoneMatch
	}
	_, respHeaders, err := t.do(ctx, "PUT", path, headers, body)
	return respHeaders, err
}

// Delete issues a DELETE request with an optional If-Match precondition.
func (t *Transport) Delete(ctx context.Context, path string, ifMatch string) error {
	headers := map[string]string{}
	if ifMatch != "" {
		headers["If-Match"] = ifMatch
	}
	_, _, err := t.do(ctx, "DELETE", path, headers, nil)
	return err
}

// Get issues a GET request and returns the raw body and response headers.
func (t *Transport) Get(ctx context.Context, path string) ([]byte, http.Header, error) {
	return t.do(ctx, "GET", path, nil, nil)
}

// Options issues an OPTIONS request and returns the response headers.
func (t *Transport) Options(ctx context.Context, path string) (http.Header, error) {
	_, headers, err := t.do(ctx, "OPTIONS", path, nil, nil)
	return headers, err
}
