package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageMargin = 10.0
	// landscape A4 width minus both margins
	printableWidth = 297.0 - 2*pageMargin
	rowHeight      = 7.0
)

// PDFExporter prints statements on landscape A4.
type PDFExporter struct {
	now func() time.Time
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{now: time.Now}
}

// Render prints the caption block, the entry table and a bold totals row.
// The table header repeats on every page.
func (e *PDFExporter) Render(statement Statement) ([]byte, error) {
	if err := statement.validate(); err != nil {
		return nil, err
	}
	widths := columnWidths(statement.Columns)

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			tableHeader(pdf, statement.Columns, widths)
		}
	})
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pageMargin)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 9, statement.Title, "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	if statement.Subject != "" {
		pdf.CellFormat(0, 6, statement.Subject, "", 1, "L", false, 0, "")
	}
	if statement.Period != "" {
		pdf.CellFormat(0, 6, "Period: "+statement.Period, "", 1, "L", false, 0, "")
	}
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 5, "Generated "+e.now().UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	tableHeader(pdf, statement.Columns, widths)
	pdf.SetFont("Arial", "", 9)
	for i, row := range statement.Rows {
		fill := i%2 == 1
		pdf.SetFillColor(245, 245, 245)
		for j, value := range row {
			pdf.CellFormat(widths[j], rowHeight, value, "LR", 0, statement.Columns[j].Align, fill, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(statement.Totals) > 0 {
		pdf.SetFont("Arial", "B", 9)
		for j, value := range statement.Totals {
			pdf.CellFormat(widths[j], rowHeight+1, value, "1", 0, statement.Columns[j].Align, false, 0, "")
		}
		pdf.Ln(-1)
	} else {
		pdf.CellFormat(printableWidth, 0, "", "T", 1, "", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render statement pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func tableHeader(pdf *gofpdf.Fpdf, columns []Column, widths []float64) {
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(220, 220, 220)
	for i, col := range columns {
		pdf.CellFormat(widths[i], rowHeight+1, col.Name, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
}

// columnWidths spreads the printable width by weight. A zero weight counts as 1.
func columnWidths(columns []Column) []float64 {
	var total float64
	weights := make([]float64, len(columns))
	for i, col := range columns {
		weights[i] = col.Weight
		if weights[i] <= 0 {
			weights[i] = 1
		}
		total += weights[i]
	}
	widths := make([]float64, len(columns))
	for i, w := range weights {
		widths[i] = printableWidth * w / total
	}
	return widths
}
