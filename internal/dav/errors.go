package dav

import "fmt"

// HTTPError is returned by Transport methods for any non-2xx/207 response.
// Service-level code translates Code into one of the protocol error kinds
// defined in the caldav package.
type HTTPError struct {
	Code int
	Body []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("dav: unexpected HTTP status %d", e.Code)
}

// IsNotFound reports whether err is an *HTTPError with status 404.
func IsNotFound(err error) bool {
	he, ok := err.(*HTTPError)
	return ok && he.Code == 404
}
