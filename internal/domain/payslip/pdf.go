package payslip

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"payslip/internal/domain/payroll"
)

// WritePDF lays out one payslip on an A4 page, followed by the PAYE band
// breakdown when lines is non-empty.
func WritePDF(w io.Writer, rec payroll.Record, lines []payroll.TaxLine) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Payslip "+rec.Input.Name, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s", rec.Input.Name))
	pdf.Ln(7)
	if rec.Input.Role != "" {
		pdf.Cell(0, 8, fmt.Sprintf("Role: %s", rec.Input.Role))
		pdf.Ln(7)
	}
	if period := period(rec.Input); period != "" {
		pdf.Cell(0, 8, fmt.Sprintf("Period: %s", period))
		pdf.Ln(7)
	}
	pdf.Ln(4)

	amounts := []struct {
		label string
		value string
		bold  bool
	}{
		{payroll.ColumnBasicSalary, payroll.FormatAmount(rec.Input.BasicSalary), false},
		{payroll.ColumnAllowances, payroll.FormatAmount(rec.Input.Allowances), false},
		{payroll.ColumnGrossPay, payroll.FormatAmount(rec.Derived.GrossPay), true},
		{payroll.ColumnSSNIT, payroll.FormatAmount(rec.Derived.StatutoryContribution), false},
		{payroll.ColumnTaxable, payroll.FormatAmount(rec.Derived.TaxableIncome), false},
		{payroll.ColumnPAYE, payroll.FormatAmount(rec.Derived.Tax), false},
		{payroll.ColumnDeductions, payroll.FormatAmount(rec.Input.Deductions), false},
		{payroll.ColumnNetPay, payroll.FormatAmount(rec.Derived.NetPay), true},
	}
	for _, a := range amounts {
		style := ""
		if a.bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 12)
		pdf.CellFormat(80, 8, a.label, "B", 0, "L", false, 0, "")
		pdf.CellFormat(50, 8, a.value, "B", 1, "R", false, 0, "")
	}

	if len(lines) > 0 {
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, "PAYE breakdown")
		pdf.Ln(9)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(30, 7, "Band", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 7, "Rate", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 7, "Amount", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 7, "Tax", "1", 1, "C", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, line := range lines {
			pdf.CellFormat(30, 7, fmt.Sprint(line.Band), "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 7, line.Rate.Mul(hundred).StringFixed(1)+"%", "1", 0, "R", false, 0, "")
			pdf.CellFormat(40, 7, payroll.FormatAmount(line.Amount), "1", 0, "R", false, 0, "")
			pdf.CellFormat(40, 7, line.Tax.StringFixed(4), "1", 1, "R", false, 0, "")
		}
	}

	return pdf.Output(w)
}

func period(in payroll.EmployeeInput) string {
	var parts []string
	if in.Month != "" {
		parts = append(parts, in.Month)
	}
	if in.Year != 0 {
		parts = append(parts, fmt.Sprint(in.Year))
	}
	return strings.Join(parts, " ")
}
