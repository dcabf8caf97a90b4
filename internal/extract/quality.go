package extract

import (
	"strings"
	"unicode"
)

// DefaultTextQualityMin is the default gate below which text-path field
// extraction is skipped rather than spending LLM calls on noise. Call
// sites tune this in the 0.1–0.4 range.
const DefaultTextQualityMin = 0.3

// estimateKeywords are domain terms expected in a carrier estimate dump.
var estimateKeywords = []string{
	"claim", "estimate", "insured", "deductible", "rcv", "acv",
	"replacement", "coverage", "carrier", "policy", "line item", "total",
}

// roofKeywords are domain terms expected in a roof measurement report.
var roofKeywords = []string{
	"roof", "eave", "rake", "ridge", "hip", "valley", "pitch", "facet",
	"squares", "area", "measurement", "slope",
}

// TextQuality scores raw extracted text in [0,1] as a cheap gate before
// LLM extraction. Three signals, equally weighted: printable-character
// ratio, domain-keyword hits, and word count.
func TextQuality(text string, keywords []string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	// Printable ratio.
	printable := 0
	total := 0
	for _, r := range trimmed {
		total++
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			printable++
		}
	}
	printableScore := float64(printable) / float64(total)

	// Keyword presence, saturating at 5 hits.
	lower := strings.ToLower(trimmed)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	keywordScore := float64(hits) / 5
	if keywordScore > 1 {
		keywordScore = 1
	}

	// Word count, saturating at 100 words.
	words := len(strings.Fields(trimmed))
	wordScore := float64(words) / 100
	if wordScore > 1 {
		wordScore = 1
	}

	return (printableScore + keywordScore + wordScore) / 3
}

// EstimateTextQuality scores text against estimate-domain keywords.
func EstimateTextQuality(text string) float64 {
	return TextQuality(text, estimateKeywords)
}

// RoofTextQuality scores text against roof-report keywords.
func RoofTextQuality(text string) float64 {
	return TextQuality(text, roofKeywords)
}
