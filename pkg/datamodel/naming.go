package datamodel

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var identifierRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// initialisms are rendered fully upper-cased in Go identifiers.
var initialisms = map[string]struct{}{
	"id": {}, "uuid": {}, "url": {}, "uri": {}, "api": {}, "http": {},
	"json": {}, "sql": {}, "ip": {}, "html": {}, "xml": {},
}

// words splits an identifier on underscores, dashes and lower-to-upper transitions.
//
// "orderItem", "order_item" and "OrderItem" all split into ["order", "item"].
func words(s string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	rs := []rune(s)
	for i, r := range rs {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			// Split before an upper-case rune following a lower-case one, or before the last
			// upper-case rune of an acronym followed by a lower-case one (HTTPServer -> http, server).
			if i > 0 && (unicode.IsLower(rs[i-1]) || unicode.IsDigit(rs[i-1]) ||
				(unicode.IsUpper(rs[i-1]) && i+1 < len(rs) && unicode.IsLower(rs[i+1]))) {
				flush()
			}
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return out
}

// SnakeCase converts an identifier to snake_case.
func SnakeCase(s string) string {
	return strings.Join(words(s), "_")
}

// LowerCamel converts an identifier to lowerCamelCase.
func LowerCamel(s string) string {
	ws := words(s)
	if len(ws) == 0 {
		return ""
	}
	title := cases.Title(language.Und)
	var b strings.Builder
	b.WriteString(ws[0])
	for _, w := range ws[1:] {
		b.WriteString(title.String(w))
	}
	return b.String()
}

// GoName converts an identifier to an exported Go identifier, honoring common initialisms.
func GoName(s string) string {
	title := cases.Title(language.Und)
	var b strings.Builder
	for _, w := range words(s) {
		if _, ok := initialisms[w]; ok {
			b.WriteString(strings.ToUpper(w))
			continue
		}
		b.WriteString(title.String(w))
	}
	return b.String()
}
