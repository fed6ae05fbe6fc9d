package dav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Transport, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewTransport(ts.Client(), ts.URL, nil), ts
}

func TestTransportPropFindSetsDepthAndContentType(t *testing.T) {
	transport, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PROPFIND" {
			t.Errorf("method = %s, want PROPFIND", r.Method)
		}
		if r.Header.Get("Depth") != "1" {
			t.Errorf("Depth = %q, want 1", r.Header.Get("Depth"))
		}
		if r.Header.Get("Content-Type") != xmlContentType {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, `<D:multistatus xmlns:D="DAV:"></D:multistatus>`)
	})

	_, err := transport.PropFind(context.Background(), "/", 1, []byte("<propfind/>"))
	if err != nil {
		t.Fatalf("PropFind: %v", err)
	}
}

func TestTransportPutConditionalHeaders(t *testing.T) {
	transport, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != "*" {
			t.Errorf("If-None-Match = %q, want *", r.Header.Get("If-None-Match"))
		}
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusCreated)
	})

	headers, err := transport.Put(context.Background(), "/e1.ics", "", []byte("BEGIN:VCALENDAR"), PutOptions{IfNoneMatch: "*"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if headers.Get("ETag") != `"abc"` {
		t.Errorf("ETag = %q", headers.Get("ETag"))
	}
}

func TestTransportPutPreconditionFailed(t *testing.T) {
	transport, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	})

	_, err := transport.Put(context.Background(), "/e1.ics", "", nil, PutOptions{IfMatch: `"stale"`})
	he, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("expected *HTTPError, got %T (%v)", err, err)
	}
	if he.Code != http.StatusPreconditionFailed {
		t.Errorf("Code = %d, want 412", he.Code)
	}
}

func TestTransportDeleteNotFound(t *testing.T) {
	transport, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := transport.Delete(context.Background(), "/e1.ics", "")
	if !IsNotFound(err) {
		t.Fatalf("expected IsNotFound, got %v", err)
	}
}

func TestTransportMkcalendarOmitsContentTypeForEmptyBody(t *testing.T) {
	transport, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			t.Errorf("Content-Type = %q, want empty for nil body", ct)
		}
		w.WriteHeader(http.StatusCreated)
	})

	if err := transport.Mkcalendar(context.Background(), "/cal/", nil); err != nil {
		t.Fatalf("Mkcalendar: %v", err)
	}
}
