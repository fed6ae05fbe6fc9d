// Package ical implements the iCalendar (RFC 5545) codec this client needs:
// line unfolding, property/parameter tokenization, date-time decoding and
// encoding, TEXT escaping, and VEVENT/VCALENDAR serialization.
//
// This is a hand-rolled subset, not a general-purpose iCalendar library: it
// only understands VEVENT, stores RRULE/RECURRENCE-ID/EXDATE as opaque
// strings rather than expanding recurrence, and collapses any DTSTART/DTEND
// with a TZID parameter into a naive UTC reinterpretation rather than
// applying real timezone/DST rules. Callers who need either of those should
// reach for a recurrence/timezone library and operate on the retained Raw
// payload directly.
package ical

import (
	"regexp"
	"strings"
	"time"
)

// foldRE matches a line break immediately followed by the single
// space/tab that RFC 5545 §3.1 uses to fold a long line. Only the break
// itself is removed; the following whitespace character is retained, since
// it is ordinary content that happened to fall right after the fold point.
var foldRE = regexp.MustCompile(`\r\n([ \t])|\n([ \t])`)

// unfold reverses RFC 5545 line folding and splits the result into
// non-empty logical lines.
func unfold(raw string) []string {
	joined := foldRE.ReplaceAllString(raw, "$1$2")
	joined = strings.ReplaceAll(joined, "\r\n", "\n")

	lines := strings.Split(joined, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimRight(l, "\r")
		if l == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

// paramToken is one `;PARAM=VALUE` or bare `;TOKEN` segment from a
// property's name part.
type paramToken struct {
	key       string
	value     string
	hasEquals bool
}

// splitProperty splits an unfolded content line into its name, parameters
// and raw value, breaking at the first colon; a colon inside a quoted
// parameter value is not treated specially.
func splitProperty(line string) (name string, params []paramToken, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", nil, ""
	}
	left, value := line[:idx], line[idx+1:]

	segments := strings.Split(left, ";")
	if len(segments) == 0 || segments[0] == "" {
		return "", nil, ""
	}
	name = strings.ToUpper(segments[0])

	for _, seg := range segments[1:] {
		if seg == "" {
			continue
		}
		if eq := strings.IndexByte(seg, '='); eq >= 0 {
			params = append(params, paramToken{
				key:       strings.ToUpper(seg[:eq]),
				value:     seg[eq+1:],
				hasEquals: true,
			})
		} else {
			params = append(params, paramToken{key: seg, hasEquals: false})
		}
	}
	return name, params, value
}

// decodeProperties scans the first VEVENT component of raw into a flat
// property map keyed three ways, per spec: the base NAME, one NAME;PARAM
// per parameter, and the bare NAME;VALUE form when a parameter lacks "="
// (accommodating VALUE=DATE written positionally by non-compliant
// servers). EXDATE is collected separately, preserving document order
// across every EXDATE line found.
func decodeProperties(raw string) (props map[string]string, exdates []string, foundEvent bool) {
	props = map[string]string{}

	var inEvent, doneEvent bool
	var depth int
	for _, line := range unfold(raw) {
		upper := strings.ToUpper(line)
		switch {
		case upper == "BEGIN:VEVENT":
			if doneEvent {
				// A second top-level VEVENT (e.g. a RECURRENCE-ID override
				// inlined alongside its recurring master) is left alone:
				// only the first is decoded, so its properties never merge
				// with the one already collected above.
				continue
			}
			if !inEvent {
				inEvent = true
				depth = 0
				foundEvent = true
			} else {
				depth++
			}
			continue
		case upper == "END:VEVENT":
			if doneEvent {
				continue
			}
			if inEvent && depth == 0 {
				inEvent = false
				doneEvent = true
			} else if depth > 0 {
				depth--
			}
			continue
		case strings.HasPrefix(upper, "BEGIN:"):
			if inEvent {
				depth++
			}
			continue
		case strings.HasPrefix(upper, "END:"):
			if inEvent && depth > 0 {
				depth--
			}
			continue
		}

		if !inEvent || depth > 0 {
			continue
		}

		name, params, value := splitProperty(line)
		if name == "" {
			continue
		}

		if name == "EXDATE" {
			for _, frag := range strings.Split(value, ",") {
				frag = strings.TrimSpace(frag)
				if frag != "" {
					exdates = append(exdates, frag)
				}
			}
			continue
		}

		props[name] = value
		for _, p := range params {
			if p.hasEquals {
				props[name+";"+p.key] = p.value
			} else {
				props[name+";VALUE"] = strings.ToUpper(p.key)
			}
		}
	}

	return props, exdates, foundEvent
}

func isDateValue(props map[string]string, name, raw string) bool {
	return props[name+";VALUE"] == "DATE" || len(raw) == 8
}

// Decode parses a calendar-data payload into its first VEVENT. Per the
// required-field policy, a missing UID or DTSTART (or no VEVENT at all)
// yields a nil Event and the names of what was missing, never an error —
// a batch fetch with one bad item still returns every good one.
func Decode(raw string) *DecodeResult {
	props, exdates, found := decodeProperties(raw)
	if !found {
		return &DecodeResult{Missing: []string{"VEVENT"}}
	}

	var missing []string
	uid := props["UID"]
	if uid == "" {
		missing = append(missing, "UID")
	}
	dtstart := props["DTSTART"]
	if dtstart == "" {
		missing = append(missing, "DTSTART")
	}
	if len(missing) > 0 {
		return &DecodeResult{Missing: missing}
	}

	start, allDay, err := decodeDateTime(dtstart, isDateValue(props, "DTSTART", dtstart))
	if err != nil {
		return &DecodeResult{Missing: []string{"DTSTART"}}
	}

	ev := &Event{
		UID:          uid,
		Start:        start,
		IsAllDay:     allDay,
		Summary:      "Untitled",
		RRule:        props["RRULE"],
		RecurrenceID: props["RECURRENCE-ID"],
		EXDate:       exdates,
		Raw:          raw,
	}

	if dtend := props["DTEND"]; dtend != "" {
		if end, _, err := decodeDateTime(dtend, isDateValue(props, "DTEND", dtend)); err == nil {
			ev.End = end
			ev.HasEnd = true
		}
	}

	if s := props["SUMMARY"]; s != "" {
		ev.Summary = UnescapeText(s)
	}
	if d := props["DESCRIPTION"]; d != "" {
		ev.Description = UnescapeText(d)
	}
	if l := props["LOCATION"]; l != "" {
		ev.Location = UnescapeText(l)
	}

	return &DecodeResult{Event: ev}
}

const prodID = "-//aerodav//caldav//EN"

// Encode serializes ev as a complete VCALENDAR envelope containing one
// VEVENT, per spec §4.4. Output lines are not folded; real-world servers
// universally accept lines longer than RFC 5545's recommended 75 octets.
func Encode(ev *Event) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:" + prodID + "\r\n")
	b.WriteString("BEGIN:VEVENT\r\n")
	b.WriteString("UID:" + ev.UID + "\r\n")
	b.WriteString("DTSTAMP:" + encodeDateTime(time.Now(), false) + "\r\n")

	b.WriteString(encodeDateField("DTSTART", ev.Start, ev.IsAllDay))
	if ev.HasEnd {
		b.WriteString(encodeDateField("DTEND", ev.End, ev.IsAllDay))
	}

	b.WriteString("SUMMARY:" + EscapeText(ev.Summary) + "\r\n")
	if ev.Description != "" {
		b.WriteString("DESCRIPTION:" + EscapeText(ev.Description) + "\r\n")
	}
	if ev.Location != "" {
		b.WriteString("LOCATION:" + EscapeText(ev.Location) + "\r\n")
	}
	if ev.RRule != "" {
		b.WriteString("RRULE:" + ev.RRule + "\r\n")
	}
	if ev.RecurrenceID != "" {
		b.WriteString("RECURRENCE-ID:" + ev.RecurrenceID + "\r\n")
	}
	if len(ev.EXDate) > 0 {
		b.WriteString("EXDATE:" + strings.Join(ev.EXDate, ",") + "\r\n")
	}

	b.WriteString("END:VEVENT\r\n")
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

func encodeDateField(name string, t time.Time, allDay bool) string {
	if allDay {
		return name + ";VALUE=DATE:" + encodeDateTime(t, true) + "\r\n"
	}
	return name + ":" + encodeDateTime(t, false) + "\r\n"
}
