package model

import "strings"

// LineItem is a single scope line from a carrier estimate. Line items are
// parsed atomically; uncertainty lives on the containing list, not on
// individual cells.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	UnitPrice   float64 `json:"unit_price,omitempty"`
	TotalPrice  float64 `json:"total_price,omitempty"`
}

// EstimateRecord is the fused structured form of a carrier damage estimate.
type EstimateRecord struct {
	PropertyAddress      ExtractedField[string]     `json:"property_address"`
	ClaimNumber          ExtractedField[string]     `json:"claim_number"`
	Carrier              ExtractedField[string]     `json:"carrier"`
	DateOfLoss           ExtractedField[string]     `json:"date_of_loss"`
	TotalReplacementCost ExtractedField[float64]    `json:"total_replacement_cost"`
	TotalActualCashValue ExtractedField[float64]    `json:"total_actual_cash_value"`
	Deductible           ExtractedField[float64]    `json:"deductible"`
	LineItems            ExtractedField[[]LineItem] `json:"line_items"`
}

// EstimateFieldKeys lists the scalar field keys extracted from estimates,
// in prompt-issue order.
var EstimateFieldKeys = []string{
	"property_address",
	"claim_number",
	"carrier",
	"date_of_loss",
	"total_replacement_cost",
	"total_actual_cash_value",
	"deductible",
}

// HasData reports whether the record carries at least one non-nil field.
// The orchestrator uses this to decide between FAILED and FAILED_PARTIAL.
func (r *EstimateRecord) HasData() bool {
	if r == nil {
		return false
	}
	if !r.PropertyAddress.IsNull() || !r.ClaimNumber.IsNull() || !r.Carrier.IsNull() ||
		!r.DateOfLoss.IsNull() || !r.TotalReplacementCost.IsNull() ||
		!r.TotalActualCashValue.IsNull() || !r.Deductible.IsNull() {
		return true
	}
	items, ok := r.LineItems.Get()
	return ok && len(items) > 0
}

// AggregateConfidence averages confidence across the scalar fields.
// Used for FALLBACK strategy gating and reporting.
func (r *EstimateRecord) AggregateConfidence() float64 {
	fields := []float64{
		r.PropertyAddress.Confidence,
		r.ClaimNumber.Confidence,
		r.Carrier.Confidence,
		r.DateOfLoss.Confidence,
		r.TotalReplacementCost.Confidence,
		r.TotalActualCashValue.Confidence,
		r.Deductible.Confidence,
	}
	var sum float64
	for _, c := range fields {
		sum += c
	}
	return sum / float64(len(fields))
}

// FindLineItems returns the line items whose description contains any of
// the given keywords (case-insensitive).
func (r *EstimateRecord) FindLineItems(keywords ...string) []LineItem {
	items, ok := r.LineItems.Get()
	if !ok {
		return nil
	}
	var out []LineItem
	for _, it := range items {
		desc := strings.ToLower(it.Description)
		for _, kw := range keywords {
			if strings.Contains(desc, strings.ToLower(kw)) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// ShingleAreaSquareFeet sums quantities of roofing-material line items,
// converting squares (SQ) to square feet. Returns 0 when no roofing line
// items are present.
func (r *EstimateRecord) ShingleAreaSquareFeet() float64 {
	var total float64
	for _, it := range r.FindLineItems("shingle", "roofing", "laminated", "composition") {
		switch strings.ToUpper(strings.TrimSpace(it.Unit)) {
		case "SQ", "SQS", "SQUARE", "SQUARES":
			total += it.Quantity * 100
		case "SF", "SQFT":
			total += it.Quantity
		}
	}
	return total
}
