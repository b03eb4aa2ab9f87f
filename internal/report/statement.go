// Package report renders the filtered transaction view as a PDF statement.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"bilancio/internal/core"
)

// MaxRows caps the table; longer statements end with a truncation row.
const MaxRows = 500

// Statement is the data printed on one PDF.
type Statement struct {
	Title        string
	Filter       core.Filter
	Transactions []core.Transaction
	Summary      core.Summary
	GeneratedAt  time.Time
}

var colW = []float64{16, 40, 88, 38}

// WriteStatement renders s as an A4 PDF into w.
func WriteStatement(w io.Writer, s Statement) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(false, 14)
	pdf.AddPage()

	title := s.Title
	if title == "" {
		title = "Bilancio Statement"
	}
	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr(title))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(80, 80, 80)
	pdf.Cell(0, 6, "Filters: "+describeFilter(s.Filter))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Transactions: %d", s.Summary.Count))
	pdf.Ln(10)

	pdf.SetDrawColor(200, 200, 200)
	pdf.SetFillColor(248, 248, 248)
	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Helvetica", "B", 11)
	sumW := []float64{60.6, 60.6, 60.6}
	pdf.CellFormat(sumW[0], 10, "Income", "1", 0, "C", true, 0, "")
	pdf.CellFormat(sumW[1], 10, "Expense", "1", 0, "C", true, 0, "")
	pdf.CellFormat(sumW[2], 10, "Balance", "1", 1, "C", true, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(sumW[0], 10, core.FormatAmount(s.Summary.Income), "1", 0, "C", false, 0, "")
	pdf.CellFormat(sumW[1], 10, core.FormatAmount(s.Summary.Expense), "1", 0, "C", false, 0, "")
	pdf.CellFormat(sumW[2], 10, core.FormatAmount(s.Summary.Balance), "1", 1, "C", false, 0, "")
	pdf.Ln(6)

	tableHeader(pdf)
	for i, t := range s.Transactions {
		if i >= MaxRows {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.CellFormat(0, 8, fmt.Sprintf("... %d more not shown", len(s.Transactions)-MaxRows), "1", 1, "C", false, 0, "")
			break
		}
		if pdf.GetY() > 270 {
			pdf.AddPage()
			tableHeader(pdf)
		}

		pdf.CellFormat(colW[0], 8, fmt.Sprint(t.ID), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colW[1], 8, tr(trimTo(t.Timestamp, 22)), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colW[2], 8, tr(trimTo(t.Title, 48)), "1", 0, "L", false, 0, "")
		if t.IsExpense() {
			pdf.SetTextColor(170, 30, 30)
		} else {
			pdf.SetTextColor(20, 120, 40)
		}
		pdf.CellFormat(colW[3], 8, core.FormatAmount(t.Amount), "1", 1, "R", false, 0, "")
		pdf.SetTextColor(30, 30, 30)
	}

	generated := s.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	pdf.SetY(-18)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 10, "Generated by Bilancio - "+generated.Format(time.RFC3339), "", 0, "C", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render statement pdf: %w", err)
	}
	return nil
}

func tableHeader(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(245, 245, 245)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(colW[0], 8, "ID", "1", 0, "C", true, 0, "")
	pdf.CellFormat(colW[1], 8, "DATE", "1", 0, "C", true, 0, "")
	pdf.CellFormat(colW[2], 8, "TITLE", "1", 0, "L", true, 0, "")
	pdf.CellFormat(colW[3], 8, "AMOUNT", "1", 1, "R", true, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(30, 30, 30)
}

func describeFilter(f core.Filter) string {
	parts := []string{
		"amount=" + orAll(string(f.Amount)),
		"direction=" + orAll(string(f.Direction)),
		"period=" + orAll(string(f.Period)),
	}
	return strings.Join(parts, ", ")
}

func orAll(s string) string {
	if s == "" {
		return "all"
	}
	return s
}

func trimTo(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
