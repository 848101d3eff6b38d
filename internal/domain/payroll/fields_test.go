package payroll

import (
	"context"
	"testing"
)

func processSample(t *testing.T) (Table, BatchResult) {
	t.Helper()
	table := sampleTable()
	rows, err := ParseTable(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := Processor{Config: ghanaConfig(t)}.Process(context.Background(), rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return table, result
}

func TestRecordFields(t *testing.T) {
	_, result := processSample(t)
	fields := result.Records[0].Fields()
	want := map[string]string{
		ColumnName:        "Ama",
		ColumnBasicSalary: "1000.00",
		ColumnGrossPay:    "1200.00",
		ColumnSSNIT:       "66.00",
		ColumnTaxable:     "1134.00",
		ColumnPAYE:        "89.20",
		ColumnNetPay:      "994.80",
		ColumnMonth:       "January",
		ColumnYear:        "2024",
		"Department":      "Finance",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Fatalf("field %s: expected %q, got %q", k, v, fields[k])
		}
	}
	for _, name := range StandardPlaceholders {
		if _, ok := fields[name]; !ok {
			t.Fatalf("missing standard field %s", name)
		}
	}
}

func TestOutputTable(t *testing.T) {
	table, result := processSample(t)
	out := OutputTable(table, result)

	wantCols := len(table.Columns) + len(DerivedColumns) + 1
	if len(out.Columns) != wantCols || out.Columns[len(out.Columns)-1] != ColumnError {
		t.Fatalf("unexpected columns %v", out.Columns)
	}
	if len(out.Rows) != 3 {
		t.Fatalf("expected 3 output rows, got %d", len(out.Rows))
	}
	first := out.Rows[0]
	if first[0] != "Ama" || first[len(table.Columns)+3] != "89.20" || first[len(table.Columns)+4] != "994.80" {
		t.Fatalf("unexpected first row %v", first)
	}
	failed := out.Rows[1]
	if failed[0] != "Kofi" || failed[len(table.Columns)] != "" || failed[len(failed)-1] == "" {
		t.Fatalf("unexpected failed row %v", failed)
	}
}

func TestOutputTableWithoutFailuresHasNoErrorColumn(t *testing.T) {
	table := Table{
		Columns: []string{"Name", "Basic Salary", "Allowances", "Deductions"},
		Rows:    [][]string{{"Ama", "1000", "200", "50"}},
	}
	rows, err := ParseTable(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := Processor{Config: ghanaConfig(t)}.Process(context.Background(), rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := OutputTable(table, result)
	if out.Columns[len(out.Columns)-1] != ColumnNetPay {
		t.Fatalf("expected Net Pay as last column, got %v", out.Columns)
	}
}

func TestRegisterLines(t *testing.T) {
	_, result := processSample(t)
	lines := RegisterLines(result.Records)
	if len(lines) != 2 {
		t.Fatalf("expected 2 register lines, got %d", len(lines))
	}
	if lines[0].Deductions != "50.00" || lines[0].NetPay != "994.80" || lines[1].Name != "Esi" {
		t.Fatalf("unexpected register lines %+v", lines)
	}
}

func TestTotals(t *testing.T) {
	_, result := processSample(t)
	totals := result.Totals()
	want := result.Records[0].Derived.NetPay.Add(result.Records[1].Derived.NetPay)
	if !totals.NetPay.Equal(want) {
		t.Fatalf("expected net total %s, got %s", want, totals.NetPay)
	}
}
