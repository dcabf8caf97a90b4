package model

// RecommendationPriority ranks how urgently a supplement item should be
// pursued with the carrier.
type RecommendationPriority string

const (
	PriorityHigh   RecommendationPriority = "high"
	PriorityMedium RecommendationPriority = "medium"
	PriorityLow    RecommendationPriority = "low"
)

// SupplementRecommendation is a suggested additional line item, produced by
// the rule engine from the fused extraction data.
type SupplementRecommendation struct {
	ID          string                  `json:"id"`
	Description string                  `json:"description"`
	Quantity    ExtractedField[float64] `json:"quantity"`
	Unit        string                  `json:"unit"`
	Reasoning   string                  `json:"reasoning"`
	Confidence  float64                 `json:"confidence"`
	Category    string                  `json:"category"`
	Priority    RecommendationPriority  `json:"priority"`
	Evidence    []string                `json:"evidence,omitempty"`
}
