package payroll

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// StandardPlaceholders are the fields every payslip template is expected to use.
var StandardPlaceholders = []string{
	ColumnName, ColumnBasicSalary, ColumnAllowances, ColumnGrossPay, ColumnPAYE,
	ColumnDeductions, ColumnNetPay, ColumnSSNIT, ColumnTaxable, ColumnYear, ColumnRole, ColumnMonth,
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Fields flattens a record into placeholder name -> formatted value. Extra
// input columns are included verbatim; standard fields override them.
func (r Record) Fields() map[string]string {
	fields := make(map[string]string, len(r.Cells)+len(StandardPlaceholders))
	for k, v := range r.Cells {
		fields[k] = v
	}
	year := ""
	if r.Input.Year != 0 {
		year = strconv.Itoa(r.Input.Year)
	}
	fields[ColumnName] = r.Input.Name
	fields[ColumnBasicSalary] = FormatAmount(r.Input.BasicSalary)
	fields[ColumnAllowances] = FormatAmount(r.Input.Allowances)
	fields[ColumnDeductions] = FormatAmount(r.Input.Deductions)
	fields[ColumnMonth] = r.Input.Month
	fields[ColumnYear] = year
	fields[ColumnRole] = r.Input.Role
	fields[ColumnGrossPay] = FormatAmount(r.Derived.GrossPay)
	fields[ColumnSSNIT] = FormatAmount(r.Derived.StatutoryContribution)
	fields[ColumnTaxable] = FormatAmount(r.Derived.TaxableIncome)
	fields[ColumnPAYE] = FormatAmount(r.Derived.Tax)
	fields[ColumnNetPay] = FormatAmount(r.Derived.NetPay)
	return fields
}

// OutputTable appends the derived columns to the input table. Failed lines
// keep their input cells with blank derived cells, and an Error column is
// added only when at least one line failed.
func OutputTable(in Table, result BatchResult) Table {
	byLine := make(map[int]Record, len(result.Records))
	for _, rec := range result.Records {
		byLine[rec.Line] = rec
	}
	failed := make(map[int]RowFailure, len(result.Failures))
	for _, f := range result.Failures {
		failed[f.Line] = f
	}

	columns := append(append([]string{}, in.Columns...), DerivedColumns...)
	if len(failed) > 0 {
		columns = append(columns, ColumnError)
	}
	out := Table{Columns: columns}
	for i, raw := range in.Rows {
		line := i + 2
		rec, ok := byLine[line]
		f, bad := failed[line]
		if !ok && !bad {
			continue
		}
		row := make([]string, 0, len(columns))
		for j := range in.Columns {
			row = append(row, cellAt(raw, j))
		}
		if ok {
			row = append(row,
				FormatAmount(rec.Derived.GrossPay),
				FormatAmount(rec.Derived.StatutoryContribution),
				FormatAmount(rec.Derived.TaxableIncome),
				FormatAmount(rec.Derived.Tax),
				FormatAmount(rec.Derived.NetPay),
			)
		} else {
			row = append(row, "", "", "", "", "")
		}
		if len(failed) > 0 {
			row = append(row, f.Message())
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func RegisterLines(records []Record) []RegisterLine {
	lines := make([]RegisterLine, 0, len(records))
	for _, rec := range records {
		year := ""
		if rec.Input.Year != 0 {
			year = strconv.Itoa(rec.Input.Year)
		}
		lines = append(lines, RegisterLine{
			Line:        rec.Line,
			Name:        rec.Input.Name,
			Role:        rec.Input.Role,
			Month:       rec.Input.Month,
			Year:        year,
			BasicSalary: FormatAmount(rec.Input.BasicSalary),
			Allowances:  FormatAmount(rec.Input.Allowances),
			GrossPay:    FormatAmount(rec.Derived.GrossPay),
			SSNIT:       FormatAmount(rec.Derived.StatutoryContribution),
			Taxable:     FormatAmount(rec.Derived.TaxableIncome),
			PAYE:        FormatAmount(rec.Derived.Tax),
			Deductions:  FormatAmount(rec.Input.Deductions),
			NetPay:      FormatAmount(rec.Derived.NetPay),
		})
	}
	return lines
}
