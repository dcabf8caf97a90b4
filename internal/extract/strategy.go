// Package extract implements the two document-extraction agents and the
// machinery they share: the text-quality gate, the text and vision LLM
// paths, and per-field fusion of the two.
package extract

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Strategy selects which extraction path(s) run for a document.
type Strategy string

const (
	// TextOnly runs only the text path; its failure is terminal for the stage.
	TextOnly Strategy = "TEXT_ONLY"
	// VisionOnly runs only the vision path; its failure is terminal for the stage.
	VisionOnly Strategy = "VISION_ONLY"
	// Hybrid runs both paths; vision always contributes.
	Hybrid Strategy = "HYBRID"
	// Fallback runs text first; vision runs only when the text result's
	// aggregate confidence is below the stage threshold (cheap path first).
	Fallback Strategy = "FALLBACK"
)

// ParseStrategy parses a strategy name case-insensitively. Empty input
// yields Fallback.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToUpper(strings.TrimSpace(s))) {
	case TextOnly:
		return TextOnly, nil
	case VisionOnly:
		return VisionOnly, nil
	case Hybrid:
		return Hybrid, nil
	case Fallback, "":
		return Fallback, nil
	default:
		return "", eris.Errorf("extract: unknown strategy %q", s)
	}
}
