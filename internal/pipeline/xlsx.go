package pipeline

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/jglaspey/supplement-cli/internal/model"
)

// BuildWorkbook assembles the adjuster-facing workbook: one sheet of
// recommended supplement items, one sheet of measurement cross-checks.
func BuildWorkbook(result *model.JobResult) (*xlsx.File, error) {
	f := xlsx.NewFile()

	recs, err := f.AddSheet("Recommendations")
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add recommendations sheet")
	}
	addRow(recs, "Item", "Quantity", "Unit", "Priority", "Category", "Confidence", "Reasoning")
	for _, rec := range result.Recommendations {
		row := recs.AddRow()
		row.AddCell().SetString(rec.Description)
		if qty, ok := rec.Quantity.Get(); ok {
			row.AddCell().SetFloatWithFormat(qty, "0.0")
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(rec.Unit)
		row.AddCell().SetString(string(rec.Priority))
		row.AddCell().SetString(rec.Category)
		row.AddCell().SetFloatWithFormat(rec.Confidence, "0%")
		row.AddCell().SetString(rec.Reasoning)
	}

	checks, err := f.AddSheet("Cross-Checks")
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add cross-checks sheet")
	}
	addRow(checks, "Field", "Estimate", "Roof Report", "Status", "Confidence", "Note")
	if result.Discrepancy != nil {
		for _, p := range result.Discrepancy.Points {
			row := checks.AddRow()
			row.AddCell().SetString(p.Field)
			setAnyCell(row.AddCell(), p.EstimateValue)
			setAnyCell(row.AddCell(), p.RoofValue)
			row.AddCell().SetString(string(p.Status))
			row.AddCell().SetFloatWithFormat(p.Confidence, "0%")
			row.AddCell().SetString(p.Note)
		}
	}

	return f, nil
}

// ExportXLSX writes the workbook for a finished job to path.
func ExportXLSX(result *model.JobResult, path string) error {
	f, err := BuildWorkbook(result)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "xlsx: save %s", path)
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func setAnyCell(cell *xlsx.Cell, v any) {
	switch x := v.(type) {
	case nil:
		cell.SetString("")
	case float64:
		cell.SetFloatWithFormat(x, "0.0")
	case string:
		cell.SetString(x)
	default:
		cell.SetValue(x)
	}
}
