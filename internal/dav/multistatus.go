package dav

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// statusCodeRE extracts the integer status code out of a "HTTP/1.1 200 OK"
// style status line.
var statusCodeRE = regexp.MustCompile(`^HTTP/\d\.\d\s+(\d+)`)

// ParseError reports a malformed multistatus document. It always carries the
// offending fragment so callers can log it without re-parsing.
type ParseError struct {
	Message  string
	Fragment string
}

func (e *ParseError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("dav: %s", e.Message)
	}
	return fmt.Sprintf("dav: %s: %s", e.Message, e.Fragment)
}

// PropStat is one <propstat> block: a property bag plus the HTTP status it
// was returned under.
type PropStat struct {
	Status     int
	Properties *etree.Element // the <prop> element for this block, may be nil
}

// Successful reports whether this propstat's status is in [200, 300).
func (p PropStat) Successful() bool {
	return p.Status >= 200 && p.Status < 300
}

// Response is one <response> element of a multistatus document.
type Response struct {
	Href      string
	PropStats []PropStat
}

// elementNamespaceURI resolves the namespace URI an element's prefix
// (e.Space) refers to by walking up the document looking for the xmlns
// declaration in scope. Servers are free to pick any prefix, so property
// lookup must never compare against a hardcoded prefix string.
func elementNamespaceURI(e *etree.Element) string {
	for n := e; n != nil; n = n.Parent() {
		for _, attr := range n.Attr {
			if e.Space == "" {
				if attr.Space == "" && attr.Key == "xmlns" {
					return attr.Value
				}
			} else if attr.Space == "xmlns" && attr.Key == e.Space {
				return attr.Value
			}
		}
	}
	return ""
}

// findChildByName returns the first child of el whose local name matches
// local and whose resolved namespace URI matches ns ("" matches any
// namespace).
func findChildByName(el *etree.Element, local, ns string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, child := range el.ChildElements() {
		if child.Tag != local {
			continue
		}
		if ns == "" || elementNamespaceURI(child) == ns {
			return child
		}
	}
	return nil
}

// firstSuccessfulProp returns the raw XML element named (local, ns) from the
// first propstat block reporting success, or nil.
func (r *Response) firstSuccessfulProp(local, ns string) *etree.Element {
	for _, ps := range r.PropStats {
		if !ps.Successful() || ps.Properties == nil {
			continue
		}
		if el := findChildByName(ps.Properties, local, ns); el != nil {
			return el
		}
	}
	return nil
}

// GetProperty returns the first text value of property (local, ns) from any
// successful propstat block, or "" if absent.
func (r *Response) GetProperty(local, ns string) string {
	el := r.firstSuccessfulProp(local, ns)
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

// GetPropertyElement returns the raw XML subtree for property (local, ns)
// from any successful propstat block, for structured properties like
// resourcetype or current-user-privilege-set.
func (r *Response) GetPropertyElement(local, ns string) *etree.Element {
	return r.firstSuccessfulProp(local, ns)
}

// FindHref returns the text of the first DAV:href descendant directly
// under el, used to pull the single <href> out of a structured property
// like current-user-principal or calendar-home-set.
func FindHref(el *etree.Element) string {
	hrefEl := findChildByName(el, "href", NSDAV)
	if hrefEl == nil {
		return ""
	}
	return strings.TrimSpace(hrefEl.Text())
}

// HasResourceType reports whether this response's <resourcetype> property
// has a child named (local, ns).
func (r *Response) HasResourceType(local, ns string) bool {
	rt := r.GetPropertyElement("resourcetype", NSDAV)
	if rt == nil {
		return false
	}
	return findChildByName(rt, local, ns) != nil
}

// IsCalendar reports whether this response advertises the CalDAV "calendar"
// resource type.
func (r *Response) IsCalendar() bool {
	return r.HasResourceType("calendar", NSCalDAV)
}

// IsCollection reports whether this response advertises the WebDAV
// "collection" resource type.
func (r *Response) IsCollection() bool {
	return r.HasResourceType("collection", NSDAV)
}

// MultiStatus is the parsed <multistatus> document returned by PROPFIND,
// PROPPATCH and REPORT.
type MultiStatus struct {
	Responses []*Response
	SyncToken string
}

// ParseMultiStatus parses a 207 Multi-Status response body. Malformed XML
// never panics; it is always reported as a *ParseError.
func ParseMultiStatus(body []byte) (*MultiStatus, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, &ParseError{Message: "malformed multistatus XML", Fragment: truncate(string(body), 200)}
	}

	root := doc.Root()
	if root == nil || root.Tag != "multistatus" {
		return nil, &ParseError{Message: "missing multistatus root element", Fragment: truncate(string(body), 200)}
	}

	ms := &MultiStatus{}
	for _, respEl := range root.ChildElements() {
		if respEl.Tag != "response" {
			continue
		}
		resp := &Response{}

		if hrefEl := findChildByName(respEl, "href", ""); hrefEl != nil {
			resp.Href = strings.TrimSpace(hrefEl.Text())
		}

		for _, psEl := range respEl.ChildElements() {
			if psEl.Tag != "propstat" {
				continue
			}
			ps := PropStat{}
			if statusEl := findChildByName(psEl, "status", ""); statusEl != nil {
				ps.Status = parseStatusLine(statusEl.Text())
			}
			if propEl := findChildByName(psEl, "prop", ""); propEl != nil {
				ps.Properties = propEl
			}
			resp.PropStats = append(resp.PropStats, ps)
		}

		ms.Responses = append(ms.Responses, resp)
	}

	if tokEl := findChildByName(root, "sync-token", NSDAV); tokEl != nil {
		ms.SyncToken = strings.TrimSpace(tokEl.Text())
	}

	return ms, nil
}

// parseStatusLine extracts the integer status code from strings shaped like
// "HTTP/1.1 200 OK". A missing or malformed status is treated as failure (0).
func parseStatusLine(s string) int {
	m := statusCodeRE.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return code
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
