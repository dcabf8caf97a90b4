package discrepancy

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold strips diacritics so descriptions scanned out of PDFs compare
// cleanly ("Façade trim" vs "Facade trim").
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeText lowercases, trims, and diacritic-folds a string for
// comparison and keyword matching.
func normalizeText(s string) string {
	folded, _, err := transform.String(asciiFold, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// containsAny reports whether the normalized haystack contains any of the
// given keywords (themselves normalized).
func containsAny(haystack string, keywords []string) bool {
	h := normalizeText(haystack)
	for _, kw := range keywords {
		if strings.Contains(h, normalizeText(kw)) {
			return true
		}
	}
	return false
}
