package dav

import (
	"strings"
	"testing"
)

func TestPropFindBuilderDeduplicatesNamespaces(t *testing.T) {
	body := NewPropFindBuilder().
		Want("resourcetype", NSDAV).
		Want("displayname", NSDAV).
		Want("calendar-color", NSAppleICal).
		Build()

	s := string(body)
	if strings.Count(s, `xmlns:D="DAV:"`) != 1 {
		t.Errorf("expected exactly one DAV: namespace declaration, got:\n%s", s)
	}
	if !strings.Contains(s, "D:resourcetype") || !strings.Contains(s, "D:displayname") {
		t.Errorf("missing requested DAV properties:\n%s", s)
	}
	if !strings.Contains(s, "AI:calendar-color") {
		t.Errorf("missing Apple iCal namespaced property:\n%s", s)
	}
}

func TestCurrentUserPrincipalPropFind(t *testing.T) {
	s := string(CurrentUserPrincipalPropFind())
	if !strings.Contains(s, "D:current-user-principal") {
		t.Errorf("missing current-user-principal:\n%s", s)
	}
	if !strings.Contains(s, "D:propfind") {
		t.Errorf("missing propfind root:\n%s", s)
	}
}

func TestCalendarPropertiesPropFindIncludesFullSet(t *testing.T) {
	s := string(CalendarPropertiesPropFind())
	want := []string{
		"D:resourcetype", "D:displayname", "C:calendar-description",
		"C:calendar-timezone", "C:supported-calendar-component-set",
		"AI:calendar-color", "CS:getctag", "D:current-user-privilege-set",
	}
	for _, w := range want {
		if !strings.Contains(s, w) {
			t.Errorf("missing %q in:\n%s", w, s)
		}
	}
}
