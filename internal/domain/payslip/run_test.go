package payslip

import (
	"context"
	"testing"

	"payslip/internal/domain/payroll"
)

func TestRenderRunRecordsOutcomes(t *testing.T) {
	schedule, err := payroll.LoadSchedule("")
	if err != nil {
		t.Fatalf("load schedule: %v", err)
	}
	svc := payroll.NewService(payroll.NewMemoryStore(), nil, 2)
	run, result, err := svc.Run(context.Background(), payroll.RunRequest{
		Source:   "test.csv",
		Schedule: schedule,
		Table: payroll.Table{
			Columns: []string{"Name", "Basic Salary", "Allowances", "Deductions"},
			Rows: [][]string{
				{"Ama", "1000", "200", "50"},
				{"Kofi", "abc", "", ""},
				{"Esi", "2500", "", ""},
			},
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	tmpl, _ := ParseTemplate("slip.txt", []byte("{Name} {Net Pay}"), nil)
	r := NewRenderer(Options{OutputDir: t.TempDir(), Template: tmpl, Table: schedule.Table}, nil, nil)
	summary, err := RenderRun(context.Background(), svc, run.ID, r, result.Records)
	if err != nil {
		t.Fatalf("render run: %v", err)
	}
	if summary.Rendered != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	stored, err := svc.Get(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != payroll.RunStatusCompleted || stored.CompletedAt == nil {
		t.Fatalf("expected completed run, got %+v", stored)
	}
	row, err := svc.Row(context.Background(), run.ID, 4)
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if row.PayslipPath == "" {
		t.Fatalf("expected payslip path on line 4")
	}
	failed, _ := svc.Row(context.Background(), run.ID, 3)
	if failed.PayslipPath != "" || failed.Error == "" {
		t.Fatalf("expected failed line untouched, got %+v", failed)
	}
}
