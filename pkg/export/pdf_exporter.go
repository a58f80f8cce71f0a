package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Certificate describes the content rendered onto a completion certificate.
type Certificate struct {
	LearnerName string
	UnitTitle   string
	Division    string
	CompletedAt time.Time
	SerialID    string
}

// PDFExporter renders completion certificates and tabular PDFs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderCertificate produces a landscape A4 completion certificate.
func (e *PDFExporter) RenderCertificate(cert Certificate) ([]byte, error) {
	if cert.LearnerName == "" || cert.UnitTitle == "" {
		return nil, fmt.Errorf("certificate requires learner name and unit title")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 28)
	pdf.CellFormat(0, 18, "CERTIFICATE OF COMPLETION", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 13)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 12, cert.LearnerName, "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 13)
	pdf.CellFormat(0, 8, "has completed the unit", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, cert.UnitTitle, "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 11)
	detail := fmt.Sprintf("Division: %s", strings.Title(strings.ToLower(cert.Division)))
	pdf.CellFormat(0, 7, detail, "", 1, "C", false, 0, "")
	if !cert.CompletedAt.IsZero() {
		pdf.CellFormat(0, 7, "Completed on "+cert.CompletedAt.Format("2 January 2006"), "", 1, "C", false, 0, "")
	}
	if cert.SerialID != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 5, "Serial: "+cert.SerialID, "", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderTable creates a PDF document with an optional title and table body.
func (e *PDFExporter) RenderTable(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			value := row[header]
			pdf.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
