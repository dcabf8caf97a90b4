package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/jglaspey/supplement-cli/internal/model"
)

func workbookFixture() *model.JobResult {
	return &model.JobResult{
		Recommendations: []model.SupplementRecommendation{
			{
				ID:          "drip-edge",
				Description: "Drip edge",
				Quantity:    model.NewField(260.0, 0.8, model.SourceHybrid, "eave plus rake"),
				Unit:        "LF",
				Reasoning:   "no drip edge line item for 260 ft of perimeter",
				Confidence:  0.79,
				Category:    "edge_metal",
				Priority:    model.PriorityMedium,
			},
		},
		Discrepancy: &model.DiscrepancyReport{
			Points: []model.ComparisonPoint{
				{Field: "total_area", EstimateValue: 3250.0, RoofValue: 3250.0, Status: model.ComparisonMatch, Confidence: 0.9},
				{Field: "eave_length", RoofValue: 150.0, Status: model.ComparisonMissingInEstimate, Confidence: 0.6, Note: "no starter or drip edge scoped"},
			},
		},
	}
}

func TestBuildWorkbook(t *testing.T) {
	t.Parallel()

	f, err := BuildWorkbook(workbookFixture())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	recs := f.Sheets[0]
	assert.Equal(t, "Recommendations", recs.Name)
	require.Len(t, recs.Rows, 2)
	assert.Equal(t, "Item", recs.Rows[0].Cells[0].String())
	assert.Equal(t, "Drip edge", recs.Rows[1].Cells[0].String())
	assert.Equal(t, "medium", recs.Rows[1].Cells[3].String())

	checks := f.Sheets[1]
	assert.Equal(t, "Cross-Checks", checks.Name)
	require.Len(t, checks.Rows, 3)
	assert.Equal(t, "total_area", checks.Rows[1].Cells[0].String())
	assert.Equal(t, string(model.ComparisonMissingInEstimate), checks.Rows[2].Cells[3].String())
	// Missing estimate value renders as an empty cell, not a zero.
	assert.Equal(t, "", checks.Rows[2].Cells[1].String())
}

func TestExportXLSXRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "job.xlsx")
	require.NoError(t, ExportXLSX(workbookFixture(), path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)
	assert.Equal(t, "Drip edge", f.Sheets[0].Rows[1].Cells[0].String())
}
