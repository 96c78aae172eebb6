package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter writes statements as spreadsheet-friendly CSV.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render writes the column header, every entry and the totals row. The
// caption block is left out so the file stays a single table.
func (e *CSVExporter) Render(statement Statement) ([]byte, error) {
	if err := statement.validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	records := make([][]string, 0, len(statement.Rows)+2)
	records = append(records, statement.headers())
	records = append(records, statement.Rows...)
	if len(statement.Totals) > 0 {
		records = append(records, statement.Totals)
	}
	if err := writer.WriteAll(records); err != nil {
		return nil, fmt.Errorf("write statement csv: %w", err)
	}
	return buf.Bytes(), nil
}
