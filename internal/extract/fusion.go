package extract

import (
	"fmt"

	"github.com/jglaspey/supplement-cli/internal/model"
)

// FuseFields selects between two candidate extractions of the same logical
// field, one per path. Selection order:
//
//  1. If a validity predicate is supplied and exactly one candidate's value
//     passes it, that candidate wins regardless of confidence.
//  2. Higher confidence wins.
//  3. On a confidence tie, the non-nil value wins.
//
// The winner is rewritten to source=hybrid with a rationale mentioning both
// inputs, preserving auditability of the fusion decision.
func FuseFields[T any](a, b model.ExtractedField[T], valid func(T) bool) model.ExtractedField[T] {
	winner := pick(a, b, valid)

	winner.Source = model.SourceHybrid
	winner.Rationale = fmt.Sprintf("fused %s(%.2f) with %s(%.2f): %s",
		a.Source, a.Confidence, b.Source, b.Confidence, winner.Rationale)
	winner.Attempts = a.Attempts + b.Attempts
	winner.Confidence = model.Clamp01(winner.Confidence)
	return winner
}

func pick[T any](a, b model.ExtractedField[T], valid func(T) bool) model.ExtractedField[T] {
	if valid != nil {
		aOK := fieldValid(a, valid)
		bOK := fieldValid(b, valid)
		if aOK != bOK {
			if aOK {
				return a
			}
			return b
		}
	}

	if a.Confidence > b.Confidence {
		return a
	}
	if b.Confidence > a.Confidence {
		return b
	}

	// Tie: prefer the candidate carrying a value.
	if a.IsNull() && !b.IsNull() {
		return b
	}
	return a
}

func fieldValid[T any](f model.ExtractedField[T], valid func(T) bool) bool {
	v, ok := f.Get()
	return ok && valid(v)
}

// PositiveNumber is the validity predicate for money and measurement fields.
func PositiveNumber(v float64) bool { return v > 0 }

// PositiveCount is the validity predicate for story/facet counts.
func PositiveCount(v int) bool { return v > 0 }

// NonEmptyString is the validity predicate for identifier fields.
func NonEmptyString(v string) bool { return v != "" }

// FuseLineItems applies the all-or-nothing collection policy: line items
// are never merged element-by-element. If the text path was trusted
// (adequate quality) and yielded a non-empty list, text wins; otherwise a
// non-empty vision list is used; otherwise an empty list at zero confidence.
func FuseLineItems(text, vision model.ExtractedField[[]model.LineItem], textTrusted bool) model.ExtractedField[[]model.LineItem] {
	if textTrusted {
		if items, ok := text.Get(); ok && len(items) > 0 {
			return text
		}
	}
	if items, ok := vision.Get(); ok && len(items) > 0 {
		return vision
	}
	empty := model.NewField([]model.LineItem{}, 0, model.SourceFallback, "no usable line items from either path")
	empty.Confidence = 0
	return empty
}
