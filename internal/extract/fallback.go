package extract

import (
	"regexp"
	"strings"
)

// Fallback confidence levels. Pattern matches over raw text are usable but
// much weaker evidence than a structured model answer.
const (
	fallbackHitConfidence  = 0.3
	fallbackMissConfidence = 0.1
)

// Degraded per-field patterns applied directly to document text when the
// structured response cannot be parsed. Matches carry low confidence.
var estimateFieldPatterns = map[string]*regexp.Regexp{
	"property_address":        regexp.MustCompile(`(?im)^\s*(?:property|risk|insured location|loss location)[:\s]+(.+)$`),
	"claim_number":            regexp.MustCompile(`(?i)claim\s*(?:#|no\.?|number)[:\s]*([A-Z0-9][A-Z0-9-]{3,})`),
	"carrier":                 regexp.MustCompile(`(?im)^\s*([A-Z][A-Za-z&.\s]+(?:insurance|mutual|casualty|assurance)(?:\s+(?:company|co\.?|group))?)\s*$`),
	"date_of_loss":            regexp.MustCompile(`(?i)date\s+of\s+loss[:\s]*([\d]{1,4}[/-][\d]{1,2}[/-][\d]{1,4})`),
	"total_replacement_cost":  regexp.MustCompile(`(?i)(?:total\s+)?(?:rcv|replacement\s+cost(?:\s+value)?)[:\s]*\$?\s*([\d,]+\.?\d*)`),
	"total_actual_cash_value": regexp.MustCompile(`(?i)(?:total\s+)?(?:acv|actual\s+cash\s+value)[:\s]*\$?\s*([\d,]+\.?\d*)`),
	"deductible":              regexp.MustCompile(`(?i)deductible[:\s]*\$?\s*([\d,]+\.?\d*)`),
}

var roofFieldPatterns = map[string]*regexp.Regexp{
	"total_area":       regexp.MustCompile(`(?i)total(?:\s+roof)?\s+area[^\d]{0,20}([\d,]+\.?\d*)`),
	"eave_length":      regexp.MustCompile(`(?i)\beaves?\b[^\d]{0,20}([\d,]+\.?\d*)`),
	"rake_length":      regexp.MustCompile(`(?i)\brakes?\b[^\d]{0,20}([\d,]+\.?\d*)`),
	"ridge_hip_length": regexp.MustCompile(`(?i)\bridges?(?:\s*/?\s*hips?)?\b[^\d]{0,20}([\d,]+\.?\d*)`),
	"valley_length":    regexp.MustCompile(`(?i)\bvalleys?\b[^\d]{0,20}([\d,]+\.?\d*)`),
	"story_count":      regexp.MustCompile(`(?i)(?:number\s+of\s+stories|stories|story\s+count)[^\d]{0,10}(\d+)`),
	"pitch":            regexp.MustCompile(`(?i)(?:predominant\s+)?pitch[^\d]{0,10}(\d+\s*/\s*12)`),
	"facet_count":      regexp.MustCompile(`(?i)\bfacets?\b[^\d]{0,10}(\d+)`),
}

func fallbackEstimateField(key, docText string) fieldAnswer {
	return fallbackField(estimateFieldPatterns[key], docText)
}

func fallbackRoofField(key, docText string) fieldAnswer {
	return fallbackField(roofFieldPatterns[key], docText)
}

func fallbackField(re *regexp.Regexp, docText string) fieldAnswer {
	if re == nil {
		return fieldAnswer{Confidence: fallbackMissConfidence, Rationale: "no fallback pattern for field"}
	}
	m := re.FindStringSubmatch(docText)
	if m == nil {
		return fieldAnswer{Confidence: fallbackMissConfidence, Rationale: "fallback pattern did not match"}
	}
	return fieldAnswer{
		Value:      strings.TrimSpace(m[1]),
		Confidence: fallbackHitConfidence,
		Rationale:  "fallback pattern match over raw text",
	}
}
