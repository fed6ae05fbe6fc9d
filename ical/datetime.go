package ical

import (
	"fmt"
	"time"
)

const (
	utcDateTimeLayout   = "20060102T150405Z"
	localDateTimeLayout = "20060102T150405"
	dateOnlyLayout      = "20060102"
)

// decodeDateTime implements the three accepted input forms from spec §4.4:
//
//  1. YYYYMMDDTHHMMSSZ       -> UTC instant.
//  2. YYYYMMDD / VALUE=DATE  -> midnight UTC, all-day.
//  3. YYYYMMDDTHHMMSS(+TZID) -> civil time reinterpreted as naive UTC; the
//     library does not implement timezone/DST rules (see ical package doc).
//
// valueIsDate reflects the property's VALUE parameter, however it was
// spelled (explicit "VALUE=DATE" or the positional bare-form
// accommodation); see decodeProperties.
func decodeDateTime(raw string, valueIsDate bool) (t time.Time, allDay bool, err error) {
	if raw == "" {
		return time.Time{}, false, fmt.Errorf("ical: empty date-time value")
	}

	if valueIsDate || len(raw) == 8 {
		t, err = time.Parse(dateOnlyLayout, raw)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("ical: invalid date value %q: %w", raw, err)
		}
		return t.UTC(), true, nil
	}

	if t, err = time.Parse(utcDateTimeLayout, raw); err == nil {
		return t.UTC(), false, nil
	}

	if t, err = time.Parse(localDateTimeLayout, raw); err == nil {
		return t.UTC(), false, nil
	}

	return time.Time{}, false, fmt.Errorf("ical: unrecognized date-time value %q", raw)
}

// FormatUTC renders t as the basic-format UTC timestamp
// (YYYYMMDDTHHMMSSZ) used by calendar-query time-range filters.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(utcDateTimeLayout)
}

// encodeDateTime renders t per the serialization rules in spec §4.4: all-day
// values as 8-digit dates, everything else in UTC "...Z" form.
func encodeDateTime(t time.Time, allDay bool) string {
	if allDay {
		return t.UTC().Format(dateOnlyLayout)
	}
	return t.UTC().Format(utcDateTimeLayout)
}
