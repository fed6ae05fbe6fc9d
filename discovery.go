package caldav

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/samber/mo"

	"github.com/aerodav/caldav/internal/dav"
)

// discoveryService runs the three-stage Well-known -> Principal -> Home
// state machine described in spec §4.5. It holds no cache of its own; the
// Client owns the memoized DiscoveryResult.
type discoveryService struct {
	transport *dav.Transport
	log       zerolog.Logger
}

func newDiscoveryService(t *dav.Transport, log zerolog.Logger) *discoveryService {
	return &discoveryService{transport: t, log: log}
}

// discover runs all three stages in sequence, each feeding its successor.
func (s *discoveryService) discover(ctx context.Context, baseURL string) (*DiscoveryResult, error) {
	endpoint, err := s.stageWellKnown(ctx, baseURL)
	if err != nil {
		return nil, &DiscoveryError{Stage: "well-known", Err: err}
	}
	s.log.Debug().Str("stage", "well-known").Str("endpoint", endpoint).Msg("caldav: discovery stage complete")

	principal, err := s.stagePrincipal(ctx, endpoint)
	if err != nil {
		return nil, &DiscoveryError{Stage: "principal", Err: err}
	}
	s.log.Debug().Str("stage", "principal").Str("principal", principal).Msg("caldav: discovery stage complete")

	home, displayName, err := s.stageHome(ctx, principal)
	if err != nil {
		return nil, &DiscoveryError{Stage: "home", Err: err}
	}
	s.log.Debug().Str("stage", "home").Str("home", home).Msg("caldav: discovery stage complete")

	result := &DiscoveryResult{
		CalDAVEndpoint:  endpoint,
		PrincipalURL:    principal,
		CalendarHomeSet: home,
	}
	if displayName != "" {
		result.DisplayName = mo.Some(displayName)
	} else {
		result.DisplayName = mo.None[string]()
	}
	return result, nil
}

// stageWellKnown implements spec §4.5 Stage W. Redirects are disabled on
// this one request so a 3xx can be inspected rather than silently followed.
func (s *discoveryService) stageWellKnown(ctx context.Context, baseURL string) (string, error) {
	client := &http.Client{
		Transport: s.transport.HTTPClient.Transport,
		Timeout:   s.transport.HTTPClient.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	wellKnownURL := resolveRef(baseURL, "/.well-known/caldav")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnownURL, nil)
	if err != nil {
		return "", err
	}
	if s.transport.Auth != nil {
		s.transport.Auth(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		loc := resp.Header.Get("Location")
		if loc == "" {
			return baseURL, nil
		}
		return resolveRef(wellKnownURL, loc), nil
	case resp.StatusCode == http.StatusOK:
		return wellKnownURL, nil
	case resp.StatusCode == http.StatusNotFound:
		return baseURL, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return baseURL, nil
	default:
		return "", fmt.Errorf("unexpected status %d from well-known probe", resp.StatusCode)
	}
}

// stagePrincipal implements spec §4.5 Stage P.
func (s *discoveryService) stagePrincipal(ctx context.Context, endpoint string) (string, error) {
	ms, err := s.transport.PropFind(ctx, endpoint, 0, dav.CurrentUserPrincipalPropFind())
	if err != nil {
		return "", err
	}
	if len(ms.Responses) == 0 {
		return "", fmt.Errorf("current-user-principal not found")
	}

	el := ms.Responses[0].GetPropertyElement("current-user-principal", dav.NSDAV)
	if el == nil {
		return "", fmt.Errorf("current-user-principal not found")
	}
	href := dav.FindHref(el)
	if href == "" {
		return "", fmt.Errorf("current-user-principal not found")
	}
	return resolveRef(endpoint, href), nil
}

// stageHome implements spec §4.5 Stage H.
func (s *discoveryService) stageHome(ctx context.Context, principal string) (home, displayName string, err error) {
	ms, err := s.transport.PropFind(ctx, principal, 0, dav.CalendarHomeSetPropFind())
	if err != nil {
		return "", "", err
	}
	if len(ms.Responses) == 0 {
		return "", "", fmt.Errorf("calendar-home-set not found")
	}

	resp := ms.Responses[0]
	el := resp.GetPropertyElement("calendar-home-set", dav.NSCalDAV)
	if el == nil {
		return "", "", fmt.Errorf("calendar-home-set not found")
	}
	href := dav.FindHref(el)
	if href == "" {
		return "", "", fmt.Errorf("calendar-home-set not found")
	}

	displayName = resp.GetProperty("displayname", dav.NSDAV)
	return resolveRef(principal, href), displayName, nil
}

// verifyAuth performs a standalone PROPFIND for current-user-principal
// against baseURL and reports whether the configured credentials were
// accepted, per spec §4.5's separate authentication-verification operation.
func (s *discoveryService) verifyAuth(ctx context.Context, baseURL string) (bool, error) {
	_, err := s.transport.PropFind(ctx, baseURL, 0, dav.CurrentUserPrincipalPropFind())
	if err == nil {
		return true, nil
	}
	if he, ok := err.(*dav.HTTPError); ok {
		if he.Code == http.StatusUnauthorized {
			return false, nil
		}
	}
	return false, err
}

func resolveRef(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
