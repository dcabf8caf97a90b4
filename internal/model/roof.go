package model

// RoofMeasurementRecord is the fused structured form of a roof-measurement
// report (EagleView, Hover, or similar). Linear measurements are in feet,
// areas in square feet.
type RoofMeasurementRecord struct {
	TotalArea      ExtractedField[float64] `json:"total_area"`
	EaveLength     ExtractedField[float64] `json:"eave_length"`
	RakeLength     ExtractedField[float64] `json:"rake_length"`
	RidgeHipLength ExtractedField[float64] `json:"ridge_hip_length"`
	ValleyLength   ExtractedField[float64] `json:"valley_length"`
	StoryCount     ExtractedField[int]     `json:"story_count"`
	Pitch          ExtractedField[string]  `json:"pitch"`
	FacetCount     ExtractedField[int]     `json:"facet_count"`
}

// RoofFieldKeys lists the field keys extracted from roof reports, in
// prompt-issue order.
var RoofFieldKeys = []string{
	"total_area",
	"eave_length",
	"rake_length",
	"ridge_hip_length",
	"valley_length",
	"story_count",
	"pitch",
	"facet_count",
}

// HasData reports whether the record carries at least one non-nil field.
func (r *RoofMeasurementRecord) HasData() bool {
	if r == nil {
		return false
	}
	return !r.TotalArea.IsNull() || !r.EaveLength.IsNull() || !r.RakeLength.IsNull() ||
		!r.RidgeHipLength.IsNull() || !r.ValleyLength.IsNull() ||
		!r.StoryCount.IsNull() || !r.Pitch.IsNull() || !r.FacetCount.IsNull()
}

// AggregateConfidence averages confidence across all fields.
func (r *RoofMeasurementRecord) AggregateConfidence() float64 {
	fields := []float64{
		r.TotalArea.Confidence,
		r.EaveLength.Confidence,
		r.RakeLength.Confidence,
		r.RidgeHipLength.Confidence,
		r.ValleyLength.Confidence,
		r.StoryCount.Confidence,
		r.Pitch.Confidence,
		r.FacetCount.Confidence,
	}
	var sum float64
	for _, c := range fields {
		sum += c
	}
	return sum / float64(len(fields))
}

// TotalSquares converts total area to roofing squares (1 SQ = 100 sq ft).
func (r *RoofMeasurementRecord) TotalSquares() float64 {
	return r.TotalArea.OrZero() / 100
}
