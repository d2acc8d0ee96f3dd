package utils

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const progressSheet = "Progress"

// ProgressRow is one member line of the progress workbook.
type ProgressRow struct {
	Username  string
	Role      string
	Assigned  int64
	Annotated int64
}

// WriteProgressReport renders rows as an xlsx workbook with one sheet and a
// bold header row.
func WriteProgressReport(w io.Writer, rows []ProgressRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", progressSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := []interface{}{"Username", "Role", "Assigned", "Annotated", "Completion"}
	if err := f.SetSheetRow(progressSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetCellStyle(progressSheet, "A1", "E1", bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	percent, err := f.NewStyle(&excelize.Style{NumFmt: 10}) // 0.00%
	if err != nil {
		return fmt.Errorf("failed to create percent style: %w", err)
	}

	for i, row := range rows {
		completion := 0.0
		if row.Assigned > 0 {
			completion = float64(row.Annotated) / float64(row.Assigned)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{row.Username, row.Role, row.Assigned, row.Annotated, completion}
		if err := f.SetSheetRow(progressSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
		pctCell, _ := excelize.CoordinatesToCellName(5, i+2)
		if err := f.SetCellStyle(progressSheet, pctCell, pctCell, percent); err != nil {
			return fmt.Errorf("failed to style row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(progressSheet, "A", "A", 24); err != nil {
		return err
	}
	return f.Write(w)
}
