// Package names folds person names into a form suitable for equality lookups.
package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

var folder = cases.Fold()

// Normalize folds a name for comparison: no diacritics, case folded,
// dashes and underscores turned into spaces, whitespace collapsed.
func Normalize(name string) string {
	name = RemoveDiacritics(name)
	name = folder.String(name)
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}
