// Package registry filters, sorts and pages the small in-memory lists the
// API serves.
package registry

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// Fold lower-cases s and strips Vietnamese diacritics so "Nguyễn Đức" and
// "nguyen duc" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, stripMarks, norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.NewReplacer("đ", "d", "Đ", "d").Replace(out)
	return strings.ToLower(strings.TrimSpace(out))
}

func matches(query string, fields ...string) bool {
	if query == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(Fold(f), query) {
			return true
		}
	}
	return false
}

// givenName returns the last word of a Vietnamese full name, which is how
// names are alphabetized.
func givenName(folded string) string {
	if i := strings.LastIndexByte(folded, ' '); i >= 0 {
		return folded[i+1:]
	}
	return folded
}

// CompareNames orders two full names by given name, then by the whole name.
func CompareNames(a, b string) int {
	fa, fb := Fold(a), Fold(b)
	if c := strings.Compare(givenName(fa), givenName(fb)); c != 0 {
		return c
	}
	return strings.Compare(fa, fb)
}
