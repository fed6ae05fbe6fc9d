package dav

import (
	"strings"
	"testing"
)

// hrefs and UIDs are passed through to these builders unescaped; etree
// escapes element text once, at serialization. A pre-escaping regression
// here would double-escape "&" into "&amp;amp;".
func TestCalendarMultigetBodyEscapesHrefOnce(t *testing.T) {
	body := CalendarMultigetBody([]string{"/calendars/alice/home/a&b.ics"})
	s := string(body)
	if !strings.Contains(s, "<D:href>/calendars/alice/home/a&amp;b.ics</D:href>") {
		t.Errorf("body does not contain singly-escaped href:\n%s", s)
	}
	if strings.Contains(s, "&amp;amp;") {
		t.Errorf("href was double-escaped:\n%s", s)
	}
}

func TestCalendarQueryBodyEscapesTextMatchOnce(t *testing.T) {
	body := CalendarQueryBody(nil, "UID", `a&b<c`)
	s := string(body)
	if !strings.Contains(s, `a&amp;b&lt;c`) {
		t.Errorf("body does not contain singly-escaped text-match:\n%s", s)
	}
	if strings.Contains(s, "&amp;amp;") {
		t.Errorf("text-match was double-escaped:\n%s", s)
	}
}
