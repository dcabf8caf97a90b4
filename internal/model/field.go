package model

import "fmt"

// FieldSource identifies which extraction path produced a field value.
type FieldSource string

const (
	SourceText     FieldSource = "text"
	SourceVision   FieldSource = "vision"
	SourceHybrid   FieldSource = "hybrid"
	SourceFallback FieldSource = "fallback"
)

// absentConfidenceCeiling is the maximum confidence a field may carry when
// its value is nil and the absence is not a verified finding.
const absentConfidenceCeiling = 0.2

// ExtractedField wraps a single uncertain value with its confidence,
// provenance, and audit trail. It is the unit of data exchanged between
// every pipeline stage.
type ExtractedField[T any] struct {
	Value      *T          `json:"value"`
	Confidence float64     `json:"confidence"`
	Rationale  string      `json:"rationale,omitempty"`
	Source     FieldSource `json:"source"`
	Attempts   int         `json:"attempts"`
}

// NewField builds a populated field with confidence clamped to [0,1].
func NewField[T any](value T, confidence float64, source FieldSource, rationale string) ExtractedField[T] {
	return ExtractedField[T]{
		Value:      &value,
		Confidence: Clamp01(confidence),
		Rationale:  rationale,
		Source:     source,
		Attempts:   1,
	}
}

// AbsentField builds a nil-valued field. Confidence is capped at the
// absent ceiling unless verified is true, which marks a legitimately-absent
// field (the document was checked and the value is genuinely not there).
func AbsentField[T any](confidence float64, source FieldSource, rationale string, verified bool) ExtractedField[T] {
	c := Clamp01(confidence)
	if !verified && c > absentConfidenceCeiling {
		c = absentConfidenceCeiling
	}
	return ExtractedField[T]{
		Confidence: c,
		Rationale:  rationale,
		Source:     source,
		Attempts:   1,
	}
}

// IsNull reports whether the field carries no value.
func (f ExtractedField[T]) IsNull() bool {
	return f.Value == nil
}

// Get returns the value and whether it is present.
func (f ExtractedField[T]) Get() (T, bool) {
	if f.Value == nil {
		var zero T
		return zero, false
	}
	return *f.Value, true
}

// OrZero returns the value or the zero value when absent.
func (f ExtractedField[T]) OrZero() T {
	if f.Value == nil {
		var zero T
		return zero
	}
	return *f.Value
}

// String renders the field for logs and reports.
func (f ExtractedField[T]) String() string {
	if f.Value == nil {
		return fmt.Sprintf("<absent> [%s, %.0f%%]", f.Source, f.Confidence*100)
	}
	return fmt.Sprintf("%v [%s, %.0f%%]", *f.Value, f.Source, f.Confidence*100)
}

// Clamp01 clamps v to the inclusive range [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
