// Package discrepancy cross-checks the fused estimate record against the
// fused roof-measurement record and produces a confidence-weighted
// consistency score.
package discrepancy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/jglaspey/supplement-cli/internal/agent"
	"github.com/jglaspey/supplement-cli/internal/model"
	"github.com/jglaspey/supplement-cli/internal/resilience"
)

// Empirically tuned scoring constants. Preserved as-is; behavior parity
// matters more than retuning.
const (
	weightMatch             = 2.0
	weightPartialMatch      = 0.5
	weightMismatch          = -1.5
	weightMissing           = -0.75
	weightNeedsVerification = -0.5

	// mismatchDiscount penalizes a mismatch point to 70% of the lower
	// input confidence.
	mismatchDiscount = 0.7

	// verificationConfidence is the fixed confidence of a both-sides-null
	// point.
	verificationConfidence = 0.25

	// warningPenalty is subtracted from the consistency score per warning.
	warningPenalty = 0.05

	// Ratio thresholds for numeric cross-checks: over ratioWarn raises a
	// warning, over ratioSevere is a mismatch.
	ratioWarn   = 0.10
	ratioSevere = 0.20

	// The score never claims certainty in either direction.
	scoreFloor = 0.05
	scoreCeil  = 0.95
)

// Input carries both fused records. Roof may be nil; the engine degrades to
// estimate-only analysis.
type Input struct {
	JobID    string
	Estimate *model.EstimateRecord
	Roof     *model.RoofMeasurementRecord
}

// Engine is the discrepancy-analysis stage. Deterministic; no LLM calls.
type Engine struct {
	cfg agent.Config
}

// NewEngine builds the discrepancy stage.
func NewEngine(cfg agent.Config) *Engine {
	if cfg.Name == "" {
		cfg.Name = "discrepancy_analysis"
	}
	if len(cfg.Capabilities) == 0 {
		cfg.Capabilities = []string{"cross_check", "consistency_scoring"}
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() agent.Config { return e.cfg }

func (e *Engine) Plan(ctx context.Context, in Input, tc model.TaskContext) (agent.Plan, error) {
	return agent.Plan{Subtasks: []agent.Subtask{
		{Name: "roof_area_check", EstimatedDuration: time.Millisecond, Confidence: 1},
		{Name: "linear_measurement_checks", EstimatedDuration: time.Millisecond, Confidence: 1},
		{Name: "consistency_scoring", EstimatedDuration: time.Millisecond, Confidence: 1},
	}}, nil
}

func (e *Engine) Act(ctx context.Context, in Input, tc model.TaskContext) (agent.Result[*model.DiscrepancyReport], error) {
	start := time.Now()
	var zero agent.Result[*model.DiscrepancyReport]

	if !in.Estimate.HasData() {
		return zero, resilience.WithKind(
			eris.New("discrepancy: no estimate data to analyze"), resilience.KindOrchestration)
	}

	return agent.Result[*model.DiscrepancyReport]{
		Data:           Analyze(in.JobID, in.Estimate, in.Roof),
		ProcessingTime: time.Since(start),
	}, nil
}

func (e *Engine) Validate(ctx context.Context, res agent.Result[*model.DiscrepancyReport], tc model.TaskContext) model.ValidationResult {
	r := res.Data
	if r == nil {
		return model.Invalid(0, "no discrepancy report produced")
	}
	if r.OverallConsistency < scoreFloor || r.OverallConsistency > scoreCeil {
		return model.Invalid(0.5, "consistency score outside bounds")
	}
	return model.Valid(0.95, r.Warnings...)
}

// linearCheck ties one roof linear measurement to the estimate line items
// that should account for it.
type linearCheck struct {
	field    string
	label    string
	roof     model.ExtractedField[float64]
	keywords []string
}

// Analyze builds the full discrepancy report. Pure function over the two
// records; roof may be nil.
func Analyze(jobID string, est *model.EstimateRecord, roof *model.RoofMeasurementRecord) *model.DiscrepancyReport {
	var points []model.ComparisonPoint
	var warnings []string

	if !roof.HasData() {
		warnings = append(warnings, "roof report not supplied; measurement cross-checks skipped")
	} else {
		p, w := compareArea(est, roof)
		points = append(points, p)
		warnings = append(warnings, w...)

		for _, chk := range []linearCheck{
			{"eave_length", "eave length", roof.EaveLength, []string{"starter", "drip edge", "eave"}},
			{"rake_length", "rake length", roof.RakeLength, []string{"rake"}},
			{"ridge_hip_length", "ridge/hip length", roof.RidgeHipLength, []string{"ridge", "hip"}},
			{"valley_length", "valley length", roof.ValleyLength, []string{"valley"}},
		} {
			p, w := compareLinear(est, chk)
			points = append(points, p)
			warnings = append(warnings, w...)
		}
	}

	score := consistencyScore(points, len(warnings))

	return &model.DiscrepancyReport{
		JobID:              jobID,
		Points:             points,
		Warnings:           warnings,
		OverallConsistency: score,
		Summary: fmt.Sprintf("%d comparison points, %d warnings, consistency %.2f",
			len(points), len(warnings), score),
	}
}

// compareArea checks total roof area against the shingle area implied by
// the estimate's roofing line items.
func compareArea(est *model.EstimateRecord, roof *model.RoofMeasurementRecord) (model.ComparisonPoint, []string) {
	p := model.ComparisonPoint{
		Field:          "total_area",
		EstimateSource: string(est.LineItems.Source),
		RoofSource:     string(roof.TotalArea.Source),
	}

	estArea := est.ShingleAreaSquareFeet()
	roofArea, roofOK := roof.TotalArea.Get()

	switch {
	case estArea <= 0 && !roofOK:
		p.Status = model.ComparisonNeedsVerification
		p.Confidence = verificationConfidence
		p.Note = "no roof area available on either side"
		return p, nil
	case estArea <= 0:
		p.RoofValue = roofArea
		p.Status = model.ComparisonMissingInEstimate
		p.Confidence = roof.TotalArea.Confidence
		p.Note = "roof area measured but estimate has no roofing line items"
		return p, nil
	case !roofOK:
		p.EstimateValue = estArea
		p.Status = model.ComparisonMissingInRoof
		p.Confidence = est.LineItems.Confidence
		p.Note = "estimate implies a roof area but the report did not measure one"
		return p, nil
	}

	p.EstimateValue = estArea
	p.RoofValue = roofArea
	return classifyRatio(p, "roof area", estArea, roofArea,
		est.LineItems.Confidence, roof.TotalArea.Confidence, "sq ft")
}

// compareLinear checks one roof linear measurement against the summed
// footage of matching estimate line items.
func compareLinear(est *model.EstimateRecord, chk linearCheck) (model.ComparisonPoint, []string) {
	p := model.ComparisonPoint{
		Field:          chk.field,
		EstimateSource: string(est.LineItems.Source),
		RoofSource:     string(chk.roof.Source),
	}

	estLen := linearFootage(est, chk.keywords)
	roofLen, roofOK := chk.roof.Get()

	switch {
	case estLen <= 0 && !roofOK:
		p.Status = model.ComparisonNeedsVerification
		p.Confidence = verificationConfidence
		p.Note = fmt.Sprintf("no %s on either side", chk.label)
		return p, nil
	case estLen <= 0:
		p.RoofValue = roofLen
		p.Status = model.ComparisonMissingInEstimate
		p.Confidence = chk.roof.Confidence
		p.Note = fmt.Sprintf("%s measured in roof report but no matching line item", chk.label)
		return p, nil
	case !roofOK:
		p.EstimateValue = estLen
		p.Status = model.ComparisonMissingInRoof
		p.Confidence = est.LineItems.Confidence
		p.Note = fmt.Sprintf("estimate carries %s items the roof report did not measure", chk.label)
		return p, nil
	}

	p.EstimateValue = estLen
	p.RoofValue = roofLen
	return classifyRatio(p, chk.label, estLen, roofLen,
		est.LineItems.Confidence, chk.roof.Confidence, "LF")
}

// classifyRatio applies the shared ratio thresholds to a numeric pair. The
// roof measurement is the reference value.
func classifyRatio(p model.ComparisonPoint, label string, estVal, roofVal, estConf, roofConf float64, unit string) (model.ComparisonPoint, []string) {
	diff := math.Abs(estVal-roofVal) / roofVal

	switch {
	case diff <= ratioWarn:
		p.Status = model.ComparisonMatch
		p.Confidence = (estConf + roofConf) / 2
		p.Note = fmt.Sprintf("within %.0f%% tolerance", ratioWarn*100)
		return p, nil

	case diff <= ratioSevere:
		p.Status = model.ComparisonPartialMatch
		p.Confidence = (estConf + roofConf) / 2
		p.Note = fmt.Sprintf("differs by %.0f%%", diff*100)
		return p, []string{fmt.Sprintf("%s discrepancy: estimate implies %.0f %s vs measured %.0f %s (%.0f%% difference)",
			label, estVal, unit, roofVal, unit, diff*100)}

	default:
		p.Status = model.ComparisonMismatch
		p.Confidence = mismatchDiscount * math.Min(estConf, roofConf)
		p.Note = fmt.Sprintf("differs by %.0f%%", diff*100)
		return p, []string{fmt.Sprintf("significant %s discrepancy: estimate implies %.0f %s vs measured %.0f %s (%.0f%% difference)",
			label, estVal, unit, roofVal, unit, diff*100)}
	}
}

// linearFootage sums the quantities of linear-footage line items whose
// description matches any keyword.
func linearFootage(est *model.EstimateRecord, keywords []string) float64 {
	items, ok := est.LineItems.Get()
	if !ok {
		return 0
	}
	var total float64
	for _, it := range items {
		if normalizeText(it.Unit) != "lf" {
			continue
		}
		if containsAny(it.Description, keywords) {
			total += it.Quantity
		}
	}
	return total
}

// consistencyScore folds the points into a single [0.05, 0.95] score:
// confidence-weighted status sum, normalized against the all-MATCH maximum,
// then a fixed penalty per warning.
func consistencyScore(points []model.ComparisonPoint, warningCount int) float64 {
	score := 0.5
	if len(points) > 0 {
		var raw, best float64
		for _, p := range points {
			raw += statusWeight(p.Status) * p.Confidence
			best += weightMatch * p.Confidence
		}
		if best > 0 {
			score = raw / best
		}
	}

	score -= warningPenalty * float64(warningCount)

	if score < scoreFloor {
		return scoreFloor
	}
	if score > scoreCeil {
		return scoreCeil
	}
	return score
}

func statusWeight(s model.ComparisonStatus) float64 {
	switch s {
	case model.ComparisonMatch:
		return weightMatch
	case model.ComparisonPartialMatch:
		return weightPartialMatch
	case model.ComparisonMismatch:
		return weightMismatch
	case model.ComparisonMissingInEstimate, model.ComparisonMissingInRoof:
		return weightMissing
	default:
		return weightNeedsVerification
	}
}
