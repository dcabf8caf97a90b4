package rules

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/jglaspey/supplement-cli/internal/model"
)

// iceWaterWidthFeet is the code-required membrane width applied along each
// valley when converting valley footage to coverage area.
const iceWaterWidthFeet = 3.0

// DefaultRules is the built-in supplement rule table, evaluated in order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:        "starter-strip",
			Name:      "Starter shingles along eaves",
			Category:  "roofing",
			Priority:  model.PriorityHigh,
			Condition: func(c Context) bool {
				return c.Roof != nil && missingForLength(c, c.Roof.EaveLength, "starter")
			},
			Action: func(c Context) *model.SupplementRecommendation {
				eave := c.Roof.EaveLength
				return lengthRecommendation(eave,
					"Starter shingle strip along eaves",
					fmt.Sprintf("roof report measures %.0f LF of eaves but the estimate has no starter line item", eave.OrZero()),
				)
			},
		},
		{
			ID:        "drip-edge",
			Name:      "Drip edge along eaves and rakes",
			Category:  "roofing",
			Priority:  model.PriorityMedium,
			Condition: func(c Context) bool {
				return c.Roof != nil && missingForLength(c, c.Roof.EaveLength, "drip edge")
			},
			Action: func(c Context) *model.SupplementRecommendation {
				eave := c.Roof.EaveLength
				total := eave.OrZero() + c.Roof.RakeLength.OrZero()
				rec := lengthRecommendation(eave,
					"Drip edge along eaves and rakes",
					fmt.Sprintf("%.0f LF of roof edge measured with no drip edge line item", total),
				)
				rec.Quantity = model.NewField(total, rec.Quantity.Confidence, eave.Source, "eave length plus rake length")
				return rec
			},
		},
		{
			ID:        "ridge-cap",
			Name:      "Ridge cap shingles",
			Category:  "roofing",
			Priority:  model.PriorityHigh,
			Condition: func(c Context) bool {
				return c.Roof != nil && missingForLength(c, c.Roof.RidgeHipLength, "ridge cap", "hip cap")
			},
			Action: func(c Context) *model.SupplementRecommendation {
				ridge := c.Roof.RidgeHipLength
				return lengthRecommendation(ridge,
					"Ridge cap shingles along ridges and hips",
					fmt.Sprintf("roof report measures %.0f LF of ridge/hip but the estimate has no ridge cap line item", ridge.OrZero()),
				)
			},
		},
		{
			ID:       "valley-ice-water",
			Name:     "Ice & water barrier in valleys",
			Category: "roofing",
			Priority: model.PriorityMedium,
			Condition: func(c Context) bool {
				return c.Roof != nil && missingForLength(c, c.Roof.ValleyLength, "ice & water", "ice and water", "ice/water")
			},
			Action: func(c Context) *model.SupplementRecommendation {
				valley := c.Roof.ValleyLength
				area := valley.OrZero() * iceWaterWidthFeet
				return &model.SupplementRecommendation{
					Description: "Ice & water barrier in valleys",
					Quantity: model.NewField(area, valley.Confidence*inferenceDiscount, valley.Source,
						fmt.Sprintf("%.0f LF of valley at %.0f ft membrane width", valley.OrZero(), iceWaterWidthFeet)),
					Unit:       "SF",
					Reasoning:  fmt.Sprintf("roof report measures %.0f LF of valleys with no ice & water line item", valley.OrZero()),
					Confidence: model.Clamp01(valley.Confidence * inferenceDiscount),
					Evidence:   []string{fmt.Sprintf("valley_length=%.0f LF (%s)", valley.OrZero(), valley.Source)},
				}
			},
		},
		{
			ID:       "steep-pitch-labor",
			Name:     "Steep pitch labor charge",
			Category: "labor",
			Priority: model.PriorityMedium,
			Condition: func(c Context) bool {
				if c.Roof == nil || c.Estimate == nil {
					return false
				}
				rise, ok := pitchRise(c.Roof.Pitch.OrZero())
				return ok && rise >= 7 && c.Roof.TotalSquares() > 0 &&
					len(c.Estimate.FindLineItems("steep", "high roof")) == 0
			},
			Action: func(c Context) *model.SupplementRecommendation {
				pitch := c.Roof.Pitch
				squares := c.Roof.TotalSquares()
				conf := minConfidence(pitch.Confidence, c.Roof.TotalArea.Confidence) * inferenceDiscount
				return &model.SupplementRecommendation{
					Description: fmt.Sprintf("Additional labor for steep pitch (%s)", pitch.OrZero()),
					Quantity:    model.NewField(squares, conf, pitch.Source, "total roof squares at steep-pitch rate"),
					Unit:        "SQ",
					Reasoning:   fmt.Sprintf("predominant pitch %s is at or above 7/12 and the estimate carries no steep charge", pitch.OrZero()),
					Confidence:  model.Clamp01(conf),
					Evidence: []string{
						fmt.Sprintf("pitch=%s (%s)", pitch.OrZero(), pitch.Source),
						fmt.Sprintf("total_area=%.0f sq ft", c.Roof.TotalArea.OrZero()),
					},
				}
			},
		},
		{
			ID:       "shingle-area-shortfall",
			Name:     "Shingle quantity below measured roof area",
			Category: "roofing",
			Priority: model.PriorityHigh,
			Condition: func(c Context) bool {
				shortfall, ok := areaShortfall(c)
				return ok && shortfall > 0
			},
			Action: func(c Context) *model.SupplementRecommendation {
				shortfall, _ := areaShortfall(c)
				conf := c.Roof.TotalArea.Confidence * inferenceDiscount
				return &model.SupplementRecommendation{
					Description: "Additional shingle squares to cover measured roof area",
					Quantity:    model.NewField(shortfall/100, conf, c.Roof.TotalArea.Source, "measured area minus estimated shingle area"),
					Unit:        "SQ",
					Reasoning: fmt.Sprintf("measured roof area exceeds the area implied by estimate line items by %.0f sq ft",
						shortfall),
					Confidence: model.Clamp01(conf),
					Evidence: []string{
						fmt.Sprintf("roof total_area=%.0f sq ft", c.Roof.TotalArea.OrZero()),
						fmt.Sprintf("estimate shingle area=%.0f sq ft", c.Estimate.ShingleAreaSquareFeet()),
					},
				}
			},
		},
	}
}

// missingForLength is the shared condition shape: the roof measurement is
// present and positive, and no estimate line item mentions any keyword.
func missingForLength(c Context, length model.ExtractedField[float64], keywords ...string) bool {
	if c.Roof == nil || c.Estimate == nil {
		return false
	}
	if length.OrZero() <= 0 {
		return false
	}
	return len(c.Estimate.FindLineItems(keywords...)) == 0
}

// lengthRecommendation builds the common length-driven recommendation with
// quantity equal to the measurement and confidence discounted from it.
func lengthRecommendation(length model.ExtractedField[float64], description, reasoning string) *model.SupplementRecommendation {
	conf := model.Clamp01(length.Confidence * inferenceDiscount)
	return &model.SupplementRecommendation{
		Description: description,
		Quantity:    model.NewField(length.OrZero(), conf, length.Source, "taken from roof report measurement"),
		Unit:        "LF",
		Reasoning:   reasoning,
		Confidence:  conf,
		Evidence:    []string{fmt.Sprintf("measured %.0f LF (%s)", length.OrZero(), length.Source)},
	}
}

var pitchPattern = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*[/:]\s*12\s*$`)

// pitchRise parses "7/12"-style pitch notation and returns the rise.
func pitchRise(pitch string) (float64, bool) {
	m := pitchPattern.FindStringSubmatch(pitch)
	if m == nil {
		return 0, false
	}
	rise, err := strconv.ParseFloat(m[1], 64)
	return rise, err == nil
}

// areaShortfall returns measured-minus-estimated roof area when both sides
// exist and the discrepancy engine flagged the pair as disagreeing.
func areaShortfall(c Context) (float64, bool) {
	if c.Roof == nil || c.Estimate == nil || c.Report == nil {
		return 0, false
	}
	for _, p := range c.Report.Points {
		if p.Field != "total_area" {
			continue
		}
		if p.Status != model.ComparisonMismatch && p.Status != model.ComparisonPartialMatch {
			return 0, false
		}
		return c.Roof.TotalArea.OrZero() - c.Estimate.ShingleAreaSquareFeet(), true
	}
	return 0, false
}

func minConfidence(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
