package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nameStripper removes diacritics so "Café Robotics" and "Cafe Robotics"
// produce the same key.
var nameStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NameKey folds a company name into its deduplication key: trimmed, collapsed
// whitespace, diacritics stripped, case folded. Stores persist the key beside
// the name and match lookups against it; the stored name keeps its original
// form.
func NameKey(name string) string {
	s := strings.Join(strings.Fields(name), " ")
	if out, _, err := transform.String(nameStripper, s); err == nil {
		s = out
	}
	return cases.Fold().String(s)
}
