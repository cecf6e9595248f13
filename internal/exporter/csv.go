package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Table is a flat, stringly-typed export payload shared by every format.
type Table struct {
	Headers []string
	Rows    [][]string
}

// utf8BOM keeps Excel from misreading UTF-8 CSV files, which matters for
// Kinyarwanda place names.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV writes the table as UTF-8 CSV with a BOM.
func WriteCSV(w io.Writer, t Table) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write BOM: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
