package pipeline

import (
	"fmt"
	"strings"

	"github.com/jglaspey/supplement-cli/internal/model"
)

// FormatReport generates the human-readable analysis report for a job.
func FormatReport(jobID string, input model.JobInput, result *model.JobResult, usage model.TokenUsage) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Supplement Analysis: %s\n", jobID)
	fmt.Fprintf(&b, "Estimate: %s\n", input.EstimateDoc)
	if input.RoofDoc != "" {
		fmt.Fprintf(&b, "Roof report: %s\n", input.RoofDoc)
	} else {
		b.WriteString("Roof report: not supplied\n")
	}
	b.WriteString("\n")

	// Summary.
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Recommendations: %d\n", len(result.Recommendations))
	if result.Discrepancy != nil {
		fmt.Fprintf(&b, "- Measurement consistency: %.0f%%\n", result.Discrepancy.OverallConsistency*100)
	}
	if result.Supervision != nil {
		fmt.Fprintf(&b, "- Overall confidence: %.0f%%\n", result.Supervision.OverallConfidence*100)
	}
	fmt.Fprintf(&b, "- Token usage: %d input, %d output\n", usage.InputTokens, usage.OutputTokens)
	fmt.Fprintf(&b, "- Estimated cost: $%.4f\n\n", usage.Cost)

	// Stage results.
	b.WriteString("## Stages\n")
	for _, s := range result.Stages {
		fmt.Fprintf(&b, "- %s: %s (%dms)\n", s.Name, s.Status, s.Duration)
		if s.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", s.Error)
		}
		if s.SkipReason != "" {
			fmt.Fprintf(&b, "  Skipped: %s\n", s.SkipReason)
		}
	}
	b.WriteString("\n")

	// Estimate fields.
	b.WriteString("## Carrier Estimate\n")
	if !result.Estimate.HasData() {
		b.WriteString("No estimate data extracted.\n\n")
	} else {
		e := result.Estimate
		writeField(&b, "Property address", e.PropertyAddress)
		writeField(&b, "Claim number", e.ClaimNumber)
		writeField(&b, "Carrier", e.Carrier)
		writeField(&b, "Date of loss", e.DateOfLoss)
		writeMoney(&b, "Total RCV", e.TotalReplacementCost)
		writeMoney(&b, "Total ACV", e.TotalActualCashValue)
		writeMoney(&b, "Deductible", e.Deductible)
		if items, ok := e.LineItems.Get(); ok {
			fmt.Fprintf(&b, "- **Line items**: %d [%s, %.0f%%]\n",
				len(items), e.LineItems.Source, e.LineItems.Confidence*100)
		} else {
			b.WriteString("- **Line items**: none extracted\n")
		}
		b.WriteString("\n")
	}

	// Roof measurements.
	b.WriteString("## Roof Measurements\n")
	if !result.Roof.HasData() {
		b.WriteString("No roof measurements available.\n\n")
	} else {
		r := result.Roof
		writeField(&b, "Total area (sq ft)", r.TotalArea)
		writeField(&b, "Eave length (ft)", r.EaveLength)
		writeField(&b, "Rake length (ft)", r.RakeLength)
		writeField(&b, "Ridge/hip length (ft)", r.RidgeHipLength)
		writeField(&b, "Valley length (ft)", r.ValleyLength)
		writeField(&b, "Stories", r.StoryCount)
		writeField(&b, "Pitch", r.Pitch)
		writeField(&b, "Facets", r.FacetCount)
		b.WriteString("\n")
	}

	// Discrepancies.
	if result.Discrepancy != nil && len(result.Discrepancy.Points) > 0 {
		b.WriteString("## Measurement Cross-Checks\n")
		for _, p := range result.Discrepancy.Points {
			fmt.Fprintf(&b, "- %s: %s [%.0f%%]", p.Field, p.Status, p.Confidence*100)
			if p.Note != "" {
				fmt.Fprintf(&b, " %s", p.Note)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	// Recommendations.
	b.WriteString("## Recommended Supplement Items\n")
	if len(result.Recommendations) == 0 {
		b.WriteString("No supplement items recommended.\n\n")
	} else {
		for _, rec := range result.Recommendations {
			fmt.Fprintf(&b, "- **%s** [%s, %.0f%%]", rec.Description, rec.Priority, rec.Confidence*100)
			if qty, ok := rec.Quantity.Get(); ok {
				fmt.Fprintf(&b, ": %.1f %s", qty, rec.Unit)
			}
			b.WriteString("\n")
			fmt.Fprintf(&b, "  %s\n", rec.Reasoning)
		}
		b.WriteString("\n")
	}

	// Supervisor findings.
	if result.Supervision != nil {
		b.WriteString("## Review\n")
		fmt.Fprintf(&b, "Final status: %s\n", result.Supervision.FinalStatus)
		for _, issue := range result.Supervision.Issues {
			fmt.Fprintf(&b, "- [%s] %s\n", issue.Severity, issue.Message)
		}
		for _, s := range result.Supervision.Suggestions {
			fmt.Fprintf(&b, "- Suggestion: %s\n", s)
		}
		if result.Supervision.Narrative != "" {
			b.WriteString("\n")
			b.WriteString(result.Supervision.Narrative)
			b.WriteString("\n")
		}
	}

	return b.String()
}

func writeField[T any](b *strings.Builder, label string, f model.ExtractedField[T]) {
	if f.IsNull() {
		fmt.Fprintf(b, "- **%s**: (not found) [%.0f%%]\n", label, f.Confidence*100)
		return
	}
	fmt.Fprintf(b, "- **%s**: %v [%s, %.0f%%]\n", label, f.OrZero(), f.Source, f.Confidence*100)
}

func writeMoney(b *strings.Builder, label string, f model.ExtractedField[float64]) {
	if f.IsNull() {
		fmt.Fprintf(b, "- **%s**: (not found) [%.0f%%]\n", label, f.Confidence*100)
		return
	}
	fmt.Fprintf(b, "- **%s**: $%.2f [%s, %.0f%%]\n", label, f.OrZero(), f.Source, f.Confidence*100)
}
