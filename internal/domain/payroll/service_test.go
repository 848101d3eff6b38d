package payroll

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"payslip/internal/platform/metrics"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewService(store, metrics.New(prometheus.NewRegistry()), 4), store
}

func TestServiceRunStoresRows(t *testing.T) {
	svc, _ := newTestService(t)
	schedule, err := LoadSchedule("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	run, result, err := svc.Run(ctx, RunRequest{Source: "sample.csv", Table: sampleTable(), Schedule: schedule})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != RunStatusProcessed || run.Policy != PolicyPartial || run.RowCount != 3 || run.FailedCount != 1 {
		t.Fatalf("unexpected run %+v", run)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}

	rows, err := svc.Rows(ctx, run.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 || rows[0].Line != 2 || rows[1].Line != 4 || rows[2].Line != 5 {
		t.Fatalf("expected rows in line order, got %+v", rows)
	}
	if rows[1].Derived != nil || rows[1].Field != ColumnBasicSalary {
		t.Fatalf("expected failed row with field, got %+v", rows[1])
	}

	row, err := svc.Row(ctx, run.ID, 5)
	if err != nil || row.Input.Name != "Esi" {
		t.Fatalf("expected Esi on line 5, got %+v (%v)", row, err)
	}
	if _, err := svc.Row(ctx, run.ID, 3); !errors.Is(err, ErrRowNotFound) {
		t.Fatalf("expected ErrRowNotFound, got %v", err)
	}
}

func TestServiceResultRebuildsOutput(t *testing.T) {
	svc, _ := newTestService(t)
	schedule, _ := LoadSchedule("")
	ctx := context.Background()
	run, _, err := svc.Run(ctx, RunRequest{Source: "sample.csv", Table: sampleTable(), Schedule: schedule})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, table, result, err := svc.Result(ctx, run.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := OutputTable(table, result)
	if len(out.Rows) != 3 {
		t.Fatalf("expected 3 output rows, got %d", len(out.Rows))
	}
	if out.Rows[1][0] != "Kofi" || out.Rows[1][1] != "abc" {
		t.Fatalf("expected failed input cells kept, got %v", out.Rows[1])
	}
}

func TestServiceRunSchemaErrorStoresNothing(t *testing.T) {
	svc, _ := newTestService(t)
	schedule, _ := LoadSchedule("")
	ctx := context.Background()
	_, _, err := svc.Run(ctx, RunRequest{Table: Table{Columns: []string{"Name"}}, Schedule: schedule})
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
	if n, _ := svc.store.CountRuns(ctx); n != 0 {
		t.Fatalf("expected no stored runs, got %d", n)
	}
}

func TestServiceRunFailFastStoresNothing(t *testing.T) {
	svc, store := newTestService(t)
	schedule, _ := LoadSchedule("")
	ctx := context.Background()
	_, _, err := svc.Run(ctx, RunRequest{Table: sampleTable(), Schedule: schedule, Policy: PolicyFailFast})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if n, _ := store.CountRuns(ctx); n != 0 {
		t.Fatalf("expected no stored runs, got %d", n)
	}
}

func TestServiceGetAndStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Get(ctx, "not-a-uuid"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	schedule, _ := LoadSchedule("")
	run, _, err := svc.Run(ctx, RunRequest{Table: sampleTable(), Schedule: schedule})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.MarkStatus(ctx, run.ID, RunStatusCompleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := svc.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != RunStatusCompleted || got.CompletedAt == nil {
		t.Fatalf("expected completed run, got %+v", got)
	}
	if err := svc.SetPayslip(ctx, run.ID, 2, "/tmp/a.txt", "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runs, total, err := svc.List(ctx, 10, 0)
	if err != nil || total != 1 || len(runs) != 1 {
		t.Fatalf("expected one run listed, got %d/%d (%v)", len(runs), total, err)
	}
}

func TestServiceJobRuns(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	schedule, _ := LoadSchedule("")
	run, _, err := svc.Run(ctx, RunRequest{Table: sampleTable(), Schedule: schedule})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jobID, err := store.CreateJobRun(ctx, "render_payslips", run.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.CreateJobRun(ctx, "render_payslips", "other-run"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.UpdateJobRun(ctx, jobID, "completed", []byte(`{"rendered":2}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobRuns, err := svc.JobRuns(ctx, run.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobRuns) != 1 || jobRuns[0].ID != jobID {
		t.Fatalf("expected the run's job only, got %+v", jobRuns)
	}
	if jobRuns[0].Status != "completed" || jobRuns[0].CompletedAt == nil || string(jobRuns[0].Details) != `{"rendered":2}` {
		t.Fatalf("unexpected job run %+v", jobRuns[0])
	}
	if _, err := svc.JobRuns(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
