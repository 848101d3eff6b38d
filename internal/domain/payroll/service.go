package payroll

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"payslip/internal/platform/metrics"
)

var tracer = otel.Tracer("payslip/internal/domain/payroll")

type Service struct {
	store   StoreAPI
	metrics *metrics.Collector
	workers int
}

func NewService(store StoreAPI, collector *metrics.Collector, workers int) *Service {
	return &Service{store: store, metrics: collector, workers: workers}
}

type RunRequest struct {
	Source   string
	Table    Table
	Schedule Schedule
	Policy   string
}

// Run validates the table, derives every row and stores the outcome. A schema
// error or a fail-fast row error stores nothing.
func (s *Service) Run(ctx context.Context, req RunRequest) (Run, BatchResult, error) {
	ctx, span := tracer.Start(ctx, "payroll.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("payroll.source", req.Source),
		attribute.String("payroll.schedule", req.Schedule.Name),
		attribute.Int("payroll.rows", len(req.Table.Rows)),
	)

	policy := req.Policy
	if policy == "" {
		policy = PolicyPartial
	}
	rows, err := ParseTable(req.Table)
	if err != nil {
		s.fail(span, "schema_error", err)
		return Run{}, BatchResult{}, err
	}
	processor := Processor{Config: req.Schedule.Config(), Policy: policy, Workers: s.workers}
	result, err := processor.Process(ctx, rows)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrInvalidInput) {
			outcome = "invalid_input"
		}
		s.fail(span, outcome, err)
		return Run{}, BatchResult{}, err
	}

	run := Run{
		ID:               uuid.NewString(),
		Status:           RunStatusProcessed,
		Source:           req.Source,
		Schedule:         req.Schedule.Name,
		ContributionRate: req.Schedule.ContributionRate,
		Policy:           policy,
		RowCount:         len(rows),
		FailedCount:      len(result.Failures),
		Totals:           result.Totals(),
		Columns:          req.Table.Columns,
		CreatedAt:        time.Now().UTC(),
	}
	for _, f := range result.Failures {
		slog.Warn("payroll row rejected", "runId", run.ID, "line", f.Line, "name", f.Name, "field", f.Field(), "err", f.Err)
	}
	if err := s.store.CreateRun(ctx, run, RunRows(result)); err != nil {
		s.fail(span, "store_error", err)
		return Run{}, BatchResult{}, err
	}

	s.metrics.Run("processed")
	s.metrics.Rows(len(result.Records), len(result.Failures))
	span.SetAttributes(attribute.String("payroll.run_id", run.ID), attribute.Int("payroll.failed", run.FailedCount))
	slog.Info("payroll run processed", "runId", run.ID, "rows", run.RowCount, "failed", run.FailedCount, "schedule", run.Schedule)
	return run, result, nil
}

func (s *Service) Get(ctx context.Context, runID string) (Run, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return Run{}, ErrRunNotFound
	}
	return s.store.GetRun(ctx, runID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Run, int, error) {
	total, err := s.store.CountRuns(ctx)
	if err != nil {
		return nil, 0, err
	}
	runs, err := s.store.ListRuns(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

func (s *Service) Rows(ctx context.Context, runID string) ([]RunRow, error) {
	if _, err := s.Get(ctx, runID); err != nil {
		return nil, err
	}
	return s.store.ListRows(ctx, runID)
}

// Row returns one stored line of a run.
func (s *Service) Row(ctx context.Context, runID string, line int) (RunRow, error) {
	rows, err := s.Rows(ctx, runID)
	if err != nil {
		return RunRow{}, err
	}
	for _, row := range rows {
		if row.Line == line {
			return row, nil
		}
	}
	return RunRow{}, ErrRowNotFound
}

// Result rebuilds the batch result and the input table of a stored run.
func (s *Service) Result(ctx context.Context, runID string) (Run, Table, BatchResult, error) {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return Run{}, Table{}, BatchResult{}, err
	}
	rows, err := s.store.ListRows(ctx, runID)
	if err != nil {
		return Run{}, Table{}, BatchResult{}, err
	}
	table, result := fromRunRows(run.Columns, rows)
	return run, table, result, nil
}

// JobRuns lists the background jobs recorded against a run, newest first.
func (s *Service) JobRuns(ctx context.Context, runID string) ([]JobRun, error) {
	if _, err := s.Get(ctx, runID); err != nil {
		return nil, err
	}
	return s.store.ListJobRuns(ctx, runID)
}

func (s *Service) MarkStatus(ctx context.Context, runID, status string) error {
	var completed *time.Time
	if status == RunStatusCompleted || status == RunStatusFailed {
		now := time.Now().UTC()
		completed = &now
	}
	return s.store.UpdateRunStatus(ctx, runID, status, completed)
}

func (s *Service) SetPayslip(ctx context.Context, runID string, line int, payslipPath, pdfPath, renderErr string) error {
	return s.store.SetRowPayslip(ctx, runID, line, payslipPath, pdfPath, renderErr)
}

func (s *Service) fail(span trace.Span, outcome string, err error) {
	s.metrics.Run(outcome)
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
}

// RunRows merges records and failures into line order for storage.
func RunRows(result BatchResult) []RunRow {
	rows := make([]RunRow, 0, len(result.Records)+len(result.Failures))
	i, j := 0, 0
	for i < len(result.Records) || j < len(result.Failures) {
		if j >= len(result.Failures) || (i < len(result.Records) && result.Records[i].Line < result.Failures[j].Line) {
			rec := result.Records[i]
			derived := rec.Derived
			rows = append(rows, RunRow{Line: rec.Line, Input: rec.Input, Derived: &derived, Cells: rec.Cells})
			i++
			continue
		}
		f := result.Failures[j]
		rows = append(rows, RunRow{Line: f.Line, Input: EmployeeInput{Name: f.Name}, Error: f.Message(), Field: f.Field(), Cells: f.Cells})
		j++
	}
	return rows
}

func fromRunRows(columns []string, rows []RunRow) (Table, BatchResult) {
	table := Table{Columns: columns}
	var result BatchResult
	for _, row := range rows {
		if row.Line < 2 {
			continue
		}
		for len(table.Rows) < row.Line-1 {
			table.Rows = append(table.Rows, nil)
		}
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = row.Cells[strings.TrimSpace(col)]
		}
		table.Rows[row.Line-2] = cells
		if row.Derived == nil {
			result.Failures = append(result.Failures, RowFailure{Line: row.Line, Name: row.Input.Name, Err: errors.New(row.Error), Cells: row.Cells})
			continue
		}
		result.Records = append(result.Records, Record{Line: row.Line, Input: row.Input, Derived: *row.Derived, Cells: row.Cells})
	}
	return table, result
}
