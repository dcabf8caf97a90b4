package model

// ComparisonStatus classifies a single field-level comparison between the
// two fused records.
type ComparisonStatus string

const (
	ComparisonMatch             ComparisonStatus = "MATCH"
	ComparisonMismatch          ComparisonStatus = "MISMATCH"
	ComparisonMissingInEstimate ComparisonStatus = "MISSING_IN_A"
	ComparisonMissingInRoof     ComparisonStatus = "MISSING_IN_B"
	ComparisonPartialMatch      ComparisonStatus = "PARTIAL_MATCH"
	ComparisonNeedsVerification ComparisonStatus = "NEEDS_VERIFICATION"
)

// ComparisonPoint is one field-level outcome of comparing the estimate
// record against the roof-measurement record.
type ComparisonPoint struct {
	Field          string           `json:"field"`
	EstimateValue  any              `json:"estimate_value"`
	RoofValue      any              `json:"roof_value"`
	EstimateSource string           `json:"estimate_source"`
	RoofSource     string           `json:"roof_source"`
	Status         ComparisonStatus `json:"status"`
	Note           string           `json:"note,omitempty"`
	Confidence     float64          `json:"confidence"`
}

// DiscrepancyReport aggregates all comparison points for one job.
// OverallConsistency is clamped to [0.05, 0.95]; the engine never claims
// perfect agreement or total disagreement.
type DiscrepancyReport struct {
	JobID              string            `json:"job_id"`
	Points             []ComparisonPoint `json:"points"`
	Summary            string            `json:"summary"`
	Warnings           []string          `json:"warnings,omitempty"`
	OverallConsistency float64           `json:"overall_consistency"`
}
