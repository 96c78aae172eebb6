package export

import "fmt"

// Column describes one statement column. Weight sizes the column relative to
// its siblings in the PDF layout.
type Column struct {
	Name   string
	Weight float64
	Align  string
}

// Statement is a ledger-style report: a caption block, one row per entry and
// a closing totals row aligned with Columns.
type Statement struct {
	Title   string
	Subject string
	Period  string
	Columns []Column
	Rows    [][]string
	Totals  []string
}

func (s Statement) validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("statement requires at least one column")
	}
	for i, row := range s.Rows {
		if len(row) != len(s.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(s.Columns))
		}
	}
	if len(s.Totals) > 0 && len(s.Totals) != len(s.Columns) {
		return fmt.Errorf("totals have %d cells, want %d", len(s.Totals), len(s.Columns))
	}
	return nil
}

func (s Statement) headers() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}
