package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"eval360/internal/domain/evaluation"
)

// ResultsDocument is everything the downloadable results report renders.
type ResultsDocument struct {
	Title       string
	SubjectName string
	Department  string
	GeneratedAt time.Time
	Rows        []evaluation.CriterionResult
}

// BuildResultsPDF renders the per-criterion peer/self table as a PDF.
func BuildResultsPDF(doc ResultsDocument) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Evaluation Results")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Evaluation: %s", doc.Title))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Subject: %s", doc.SubjectName))
	pdf.Ln(7)
	if doc.Department != "" {
		pdf.Cell(0, 8, fmt.Sprintf("Department: %s", doc.Department))
		pdf.Ln(7)
	}
	pdf.Cell(0, 8, fmt.Sprintf("Generated: %s", doc.GeneratedAt.Format("2006-01-02")))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(90, 8, "Criterion", "1", 0, "L", false, 0, "")
	pdf.CellFormat(45, 8, "Peer Average", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 8, "Self Score", "1", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	for _, row := range doc.Rows {
		pdf.CellFormat(90, 8, row.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 8, fmt.Sprintf("%.2f", row.PeerAverage), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 8, fmt.Sprintf("%.2f", row.SelfScore), "1", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
