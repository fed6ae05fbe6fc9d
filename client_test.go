package caldav

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRejectsInsecureScheme(t *testing.T) {
	_, err := NewClient(ClientOptions{BaseURL: "http://example.com", Username: "a", Password: "b"})
	require.Error(t, err)
	assert.IsType(t, &InsecureConnectionError{}, err)
}

func TestNewClientAllowsInsecureWhenOptedIn(t *testing.T) {
	c, err := NewClient(ClientOptions{BaseURL: "http://example.com", Username: "a", Password: "b", AllowInsecure: true})
	require.NoError(t, err)
	defer c.Close()
}

func TestNewClientRejectsMissingBaseURL(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	assert.Error(t, err, "expected validation error for empty BaseURL")
}

func TestAuthAdapterPrefersBearerOverBasic(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, principalResponse(r.URL.Path))
	}))
	defer ts.Close()

	c, err := NewClient(ClientOptions{
		BaseURL: ts.URL, AllowInsecure: true,
		Username: "alice", Password: "secret", BearerToken: "tok123",
	})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.VerifyAuth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok123", gotAuth)
}

func TestAuthAdapterBasic(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, principalResponse(r.URL.Path))
	}))
	defer ts.Close()

	c, err := NewClient(ClientOptions{BaseURL: ts.URL, AllowInsecure: true, Username: "alice", Password: "secret"})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.VerifyAuth(context.Background())
	require.NoError(t, err)
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:secret"))
	assert.Equal(t, want, gotAuth)
}

// newConnectTestServer wires up a fake CalDAV server handling the
// well-known/principal/home discovery stages plus a calendar-home PROPFIND,
// sufficient to drive Connect end-to-end.
func newConnectTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/.well-known/caldav":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == "PROPFIND" && r.Header.Get("Depth") == "0":
			w.WriteHeader(http.StatusMultiStatus)
			io.WriteString(w, principalResponse(r.URL.Path))
		case r.Method == "PROPFIND" && r.Header.Get("Depth") == "1":
			w.WriteHeader(http.StatusMultiStatus)
			io.WriteString(w, `<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/calendars/alice/work/</D:href>
    <D:propstat>
      <D:prop>
        <D:displayname>Work</D:displayname>
        <D:resourcetype><D:collection/><C:calendar/></D:resourcetype>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestConnectVerifiesAndDiscovers(t *testing.T) {
	ts := newConnectTestServer(t)

	c, err := Connect(context.Background(), ClientOptions{BaseURL: ts.URL, AllowInsecure: true, Username: "a", Password: "b"})
	require.NoError(t, err)
	defer c.Close()

	cals, err := c.GetCalendars(context.Background())
	require.NoError(t, err)
	require.Len(t, cals, 1)
	assert.Equal(t, "Work", cals[0].DisplayName)
}

func TestConnectClosesClientOnAuthFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := Connect(context.Background(), ClientOptions{BaseURL: ts.URL, AllowInsecure: true, Username: "a", Password: "b"})
	require.Error(t, err)
	assert.IsType(t, &AuthenticationError{}, err)
}

func TestClearDiscoveryCacheForcesRediscovery(t *testing.T) {
	var propfindCount int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/.well-known/caldav":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == "PROPFIND" && r.Header.Get("Depth") == "0":
			propfindCount++
			w.WriteHeader(http.StatusMultiStatus)
			io.WriteString(w, principalResponse(r.URL.Path))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	c, err := Connect(context.Background(), ClientOptions{BaseURL: ts.URL, AllowInsecure: true, Username: "a", Password: "b"})
	require.NoError(t, err)
	defer c.Close()

	// Connect already ran VerifyAuth + the two discovery PROPFINDs (principal, home).
	base := propfindCount
	_, err = c.discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, base, propfindCount, "expected discover() to be memoized")

	c.ClearDiscoveryCache()
	_, err = c.discover(context.Background())
	require.NoError(t, err)
	assert.Greater(t, propfindCount, base, "expected ClearDiscoveryCache to force new PROPFINDs")
}
