package dav

import (
	"github.com/beevik/etree"
)

// propName is a (local name, namespace) pair requested by a PROPFIND.
type propName struct {
	local, ns string
}

// PropFindBuilder is a fluent accumulator of requested properties. It emits
// a complete PROPFIND request body with a deduplicated set of namespace
// declarations, always including DAV:.
type PropFindBuilder struct {
	props []propName
}

// NewPropFindBuilder returns an empty builder.
func NewPropFindBuilder() *PropFindBuilder {
	return &PropFindBuilder{}
}

// Want adds a requested property and returns the builder for chaining.
func (b *PropFindBuilder) Want(local, ns string) *PropFindBuilder {
	b.props = append(b.props, propName{local, ns})
	return b
}

// Build renders the accumulated properties into a complete PROPFIND
// request document.
func (b *PropFindBuilder) Build() []byte {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	root := doc.CreateElement("D:propfind")
	declareNamespace(root, NSDAV, "D")

	propEl := root.CreateElement("D:prop")

	seen := map[string]bool{NSDAV: true}
	for _, p := range b.props {
		if !seen[p.ns] {
			declareNamespace(root, p.ns, nsPrefix(p.ns))
			seen[p.ns] = true
		}
		propEl.CreateElement(qualifiedName(p.ns, p.local))
	}

	out, _ := doc.WriteToBytes()
	return out
}

func qualifiedName(ns, local string) string {
	if ns == "" || ns == NSDAV {
		return "D:" + local
	}
	return nsPrefix(ns) + ":" + local
}

func declareNamespace(root *etree.Element, ns, prefix string) {
	root.CreateAttr("xmlns:"+prefix, ns)
}

// CurrentUserPrincipalPropFind requests the DAV:current-user-principal
// property, used by discovery Stage P.
func CurrentUserPrincipalPropFind() []byte {
	return NewPropFindBuilder().Want("current-user-principal", NSDAV).Build()
}

// CalendarHomeSetPropFind requests the CalDAV calendar-home-set property
// plus the owning principal's display name, used by discovery Stage H.
func CalendarHomeSetPropFind() []byte {
	return NewPropFindBuilder().
		Want("calendar-home-set", NSCalDAV).
		Want("displayname", NSDAV).
		Build()
}

// CalendarPropertiesPropFind requests the full set of properties the
// calendar service needs to populate a Calendar value.
func CalendarPropertiesPropFind() []byte {
	return NewPropFindBuilder().
		Want("resourcetype", NSDAV).
		Want("displayname", NSDAV).
		Want("calendar-description", NSCalDAV).
		Want("calendar-timezone", NSCalDAV).
		Want("supported-calendar-component-set", NSCalDAV).
		Want("calendar-color", NSAppleICal).
		Want("getctag", NSCalendarServer).
		Want("current-user-privilege-set", NSDAV).
		Build()
}

// CalendarObjectPropFind requests the metadata properties needed to
// enumerate calendar objects without fetching their bodies.
func CalendarObjectPropFind() []byte {
	return NewPropFindBuilder().
		Want("getetag", NSDAV).
		Want("getlastmodified", NSDAV).
		Want("getcontentlength", NSDAV).
		Want("resourcetype", NSDAV).
		Build()
}
