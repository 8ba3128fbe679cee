package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// EncodeXLSX writes table to a single-sheet workbook.
func EncodeXLSX(table Table) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if table.Sheet != "" {
		if err := f.SetSheetName(sheet, table.Sheet); err != nil {
			return nil, fmt.Errorf("rename sheet: %w", err)
		}
		sheet = table.Sheet
	}

	header := toRow(table.Header)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range table.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		values := toRow(row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func toRow(cells []string) []interface{} {
	row := make([]interface{}, len(cells))
	for i, cell := range cells {
		row[i] = cell
	}
	return row
}
