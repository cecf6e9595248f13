package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// WriteExcel writes the table as a single-sheet xlsx workbook with a bold,
// frozen header row.
func WriteExcel(w io.Writer, t Table, sheet string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	} else if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		start, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		if err := f.SetSheetRow(sheet, start, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil && len(t.Headers) > 0 {
		last, cerr := excelize.CoordinatesToCellName(len(t.Headers), 1)
		if cerr == nil {
			f.SetCellStyle(sheet, "A1", last, boldStyle)
		}
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
