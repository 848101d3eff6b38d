package payroll

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ParseTable checks that every required column is present and returns one Row
// per non-blank data line. Line numbers count the header as line 1.
func ParseTable(t Table) ([]Row, error) {
	index := map[string]int{}
	for i, col := range t.Columns {
		canonical, ok := columnAliases[normalizeHeader(col)]
		if !ok {
			continue
		}
		if _, seen := index[canonical]; !seen {
			index[canonical] = i
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Columns: missing}
	}

	rows := make([]Row, 0, len(t.Rows))
	for i, raw := range t.Rows {
		if blankRow(raw) {
			continue
		}
		cells := make(map[string]string, len(t.Columns)+len(index))
		for j, col := range t.Columns {
			header := strings.TrimSpace(col)
			if header == "" {
				continue
			}
			cells[header] = cellAt(raw, j)
		}
		for canonical, j := range index {
			cells[canonical] = cellAt(raw, j)
		}
		rows = append(rows, Row{Line: i + 2, Cells: cells})
	}
	return rows, nil
}

// Input parses the row's cells. Blank allowances and deductions count as zero;
// a blank basic salary or name is rejected.
func (r Row) Input() (EmployeeInput, error) {
	var in EmployeeInput
	in.Name = strings.TrimSpace(r.Cells[ColumnName])
	if in.Name == "" {
		return in, r.fieldError(ColumnName, "", "is required")
	}
	var err error
	if in.BasicSalary, err = parseAmount(r.Cells[ColumnBasicSalary], true); err != nil {
		return in, r.fieldError(ColumnBasicSalary, r.Cells[ColumnBasicSalary], err.Error())
	}
	if in.Allowances, err = parseAmount(r.Cells[ColumnAllowances], false); err != nil {
		return in, r.fieldError(ColumnAllowances, r.Cells[ColumnAllowances], err.Error())
	}
	if in.Deductions, err = parseAmount(r.Cells[ColumnDeductions], false); err != nil {
		return in, r.fieldError(ColumnDeductions, r.Cells[ColumnDeductions], err.Error())
	}
	if in.Year, err = parseYear(r.Cells[ColumnYear]); err != nil {
		return in, r.fieldError(ColumnYear, r.Cells[ColumnYear], err.Error())
	}
	in.Month = normalizeMonth(r.Cells[ColumnMonth])
	in.Role = strings.TrimSpace(r.Cells[ColumnRole])
	return in, nil
}

func (r Row) fieldError(field, value, reason string) *FieldError {
	return &FieldError{Row: r.Line, Field: field, Value: strings.TrimSpace(value), Reason: reason}
}

type Processor struct {
	Config  Config
	Policy  string
	Workers int
}

// Process derives every row independently and keeps input order. Under the
// partial policy invalid rows become failures; under fail-fast the first
// invalid row, by line, aborts the batch.
func (p Processor) Process(ctx context.Context, rows []Row) (BatchResult, error) {
	if err := p.Config.Validate(); err != nil {
		return BatchResult{}, err
	}
	type outcome struct {
		record Record
		err    error
	}
	outcomes := make([]outcome, len(rows))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i := range rows {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			record, err := p.processRow(rows[i])
			outcomes[i] = outcome{record: record, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	for i, o := range outcomes {
		if o.err == nil {
			result.Records = append(result.Records, o.record)
			continue
		}
		if p.Policy == PolicyFailFast {
			return BatchResult{}, fmt.Errorf("batch aborted: %w", o.err)
		}
		result.Failures = append(result.Failures, RowFailure{
			Line:  rows[i].Line,
			Name:  strings.TrimSpace(rows[i].Cells[ColumnName]),
			Err:   o.err,
			Cells: rows[i].Cells,
		})
	}
	return result, nil
}

// ProcessInputs runs already-parsed inputs through the same pipeline. Lines
// are numbered from 1.
func (p Processor) ProcessInputs(ctx context.Context, inputs []EmployeeInput) (BatchResult, error) {
	rows := make([]Row, len(inputs))
	for i, in := range inputs {
		rows[i] = rowFromInput(i+1, in)
	}
	return p.Process(ctx, rows)
}

func (p Processor) processRow(row Row) (Record, error) {
	input, err := row.Input()
	if err != nil {
		return Record{}, err
	}
	derived, err := Derive(input, p.Config)
	if err != nil {
		var fe *FieldError
		if errors.As(err, &fe) && fe.Row == 0 {
			fe.Row = row.Line
		}
		return Record{}, err
	}
	return Record{Line: row.Line, Input: input, Derived: derived, Cells: row.Cells}, nil
}

func (p Processor) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func rowFromInput(line int, in EmployeeInput) Row {
	cells := map[string]string{
		ColumnName:        in.Name,
		ColumnBasicSalary: in.BasicSalary.String(),
		ColumnAllowances:  in.Allowances.String(),
		ColumnDeductions:  in.Deductions.String(),
		ColumnMonth:       in.Month,
		ColumnRole:        in.Role,
	}
	if in.Year != 0 {
		cells[ColumnYear] = fmt.Sprint(in.Year)
	}
	return Row{Line: line, Cells: cells}
}

func parseAmount(raw string, required bool) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		if required {
			return decimal.Zero, errors.New("is required")
		}
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, errors.New("must be numeric")
	}
	if value.IsNegative() {
		return decimal.Zero, errors.New("must not be negative")
	}
	return value, nil
}

// parseYear accepts spreadsheet floats such as "2024.0".
func parseYear(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || !value.IsInteger() || value.IsNegative() {
		return 0, errors.New("must be a whole year")
	}
	return int(value.IntPart()), nil
}

func normalizeMonth(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(raw))
}

func normalizeHeader(header string) string {
	header = strings.ToLower(strings.TrimSpace(header))
	header = strings.ReplaceAll(header, "_", " ")
	return strings.Join(strings.Fields(header), " ")
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
