package ical

import "strings"

// textEncoder applies the RFC 5545 TEXT escaping rules in a single pass:
// backslash first, then LF, comma, semicolon — doing it in one pass over
// non-overlapping patterns is equivalent to applying them sequentially in
// that order, since the backslash rule's output contains no LF, comma or
// semicolon for a later rule to match.
var textEncoder = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	",", `\,`,
	";", `\;`,
)

var textDecoder = strings.NewReplacer(
	`\n`, "\n",
	`\N`, "\n",
	`\,`, ",",
	`\;`, ";",
	`\\`, `\`,
)

// EscapeText encodes a free-text value (SUMMARY, DESCRIPTION, LOCATION) for
// inclusion in a serialized iCalendar property value.
func EscapeText(s string) string {
	return textEncoder.Replace(s)
}

// UnescapeText decodes a TEXT property value parsed from the wire.
func UnescapeText(s string) string {
	return textDecoder.Replace(s)
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeXMLValue escapes a value for inline use in generated XML, e.g. an
// href or a UID embedded in a text-match filter.
func EscapeXMLValue(s string) string {
	return xmlEscaper.Replace(s)
}
