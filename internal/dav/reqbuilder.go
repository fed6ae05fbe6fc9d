package dav

import "github.com/beevik/etree"

// Prop is one property name/value pair to set via PROPPATCH or
// MKCALENDAR's <D:set><D:prop> block.
type Prop struct {
	Local string
	NS    string
	Value string
}

// setPropsElement appends a <D:prop> child (with one element per prop) onto
// parent, used by PropPatchBody's <D:set>. MkcalendarBody builds the same
// <D:prop> shape inline so it can append the component set to it.
func setPropsElement(parent *etree.Element, props []Prop) {
	propEl := parent.CreateElement("D:prop")
	for _, p := range props {
		ns := p.NS
		if ns == "" {
			ns = NSDAV
		}
		el := propEl.CreateElement(qualifiedName(ns, p.Local))
		if p.Value != "" {
			el.SetText(p.Value)
		}
	}
}

// PropPatchBody builds a complete PROPPATCH request body setting props.
func PropPatchBody(props []Prop) []byte {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("D:propertyupdate")
	declareNamespace(root, NSDAV, "D")
	declareNamespace(root, NSCalDAV, "C")
	declareNamespace(root, NSAppleICal, "AI")

	setEl := root.CreateElement("D:set")
	setPropsElement(setEl, props)

	out, _ := doc.WriteToBytes()
	return out
}

// MkcalendarBody builds a MKCALENDAR request body with the given set
// properties, plus supported-calendar-component-set if components is
// non-empty.
func MkcalendarBody(props []Prop, components []string) []byte {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("C:mkcalendar")
	declareNamespace(root, NSDAV, "D")
	declareNamespace(root, NSCalDAV, "C")
	declareNamespace(root, NSAppleICal, "AI")

	setEl := root.CreateElement("D:set")
	propEl := setEl.CreateElement("D:prop")
	for _, p := range props {
		ns := p.NS
		if ns == "" {
			ns = NSDAV
		}
		el := propEl.CreateElement(qualifiedName(ns, p.Local))
		if p.Value != "" {
			el.SetText(p.Value)
		}
	}

	if len(components) > 0 {
		compSetEl := propEl.CreateElement("C:supported-calendar-component-set")
		for _, comp := range components {
			ce := compSetEl.CreateElement("C:comp")
			ce.CreateAttr("name", comp)
		}
	}

	out, _ := doc.WriteToBytes()
	return out
}

// TimeRange is a UTC time-range filter for calendar-query, in
// YYYYMMDDTHHMMSSZ basic format.
type TimeRange struct {
	Start string
	End   string
}

// CalendarQueryBody builds a calendar-query REPORT requesting calendar-data
// for VEVENT components, optionally restricted by a time-range and/or a
// prop-filter text-match (used by find-by-uid).
func CalendarQueryBody(tr *TimeRange, propFilterName, textMatch string) []byte {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("C:calendar-query")
	declareNamespace(root, NSDAV, "D")
	declareNamespace(root, NSCalDAV, "C")

	propEl := root.CreateElement("D:prop")
	propEl.CreateElement("D:getetag")
	propEl.CreateElement("C:calendar-data")

	filterEl := root.CreateElement("C:filter")
	vcalFilter := filterEl.CreateElement("C:comp-filter")
	vcalFilter.CreateAttr("name", "VCALENDAR")
	vevFilter := vcalFilter.CreateElement("C:comp-filter")
	vevFilter.CreateAttr("name", "VEVENT")

	if tr != nil {
		trEl := vevFilter.CreateElement("C:time-range")
		trEl.CreateAttr("start", tr.Start)
		trEl.CreateAttr("end", tr.End)
	}

	if propFilterName != "" {
		pfEl := vevFilter.CreateElement("C:prop-filter")
		pfEl.CreateAttr("name", propFilterName)
		tmEl := pfEl.CreateElement("C:text-match")
		tmEl.CreateAttr("collation", "i;octet")
		tmEl.SetText(textMatch)
	}

	out, _ := doc.WriteToBytes()
	return out
}

// CalendarMultigetBody builds a calendar-multiget REPORT for the given
// hrefs. Callers pass raw (unescaped) values; etree escapes element text
// on serialization.
func CalendarMultigetBody(hrefs []string) []byte {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("C:calendar-multiget")
	declareNamespace(root, NSDAV, "D")
	declareNamespace(root, NSCalDAV, "C")

	propEl := root.CreateElement("D:prop")
	propEl.CreateElement("D:getetag")
	propEl.CreateElement("C:calendar-data")

	for _, href := range hrefs {
		hrefEl := root.CreateElement("D:href")
		hrefEl.SetText(href)
	}

	out, _ := doc.WriteToBytes()
	return out
}
