package payslip

import (
	"context"
	"log/slog"

	"payslip/internal/domain/payroll"
)

// RunStore records render outcomes against a stored run.
type RunStore interface {
	SetPayslip(ctx context.Context, runID string, line int, payslipPath, pdfPath, renderErr string) error
	MarkStatus(ctx context.Context, runID, status string) error
}

type Summary struct {
	RunID    string   `json:"runId"`
	Rendered int      `json:"rendered"`
	Failed   int      `json:"failed"`
	Results  []Result `json:"results,omitempty"`
}

// RenderRun renders the derived records of a run and stores each outcome.
// The run ends completed even when single payslips fail; only an unusable
// output directory marks it failed.
func RenderRun(ctx context.Context, store RunStore, runID string, r *Renderer, records []payroll.Record) (Summary, error) {
	summary := Summary{RunID: runID}
	if err := store.MarkStatus(ctx, runID, payroll.RunStatusRendering); err != nil {
		return summary, err
	}
	results, err := r.RenderAll(ctx, records)
	if err != nil {
		if markErr := store.MarkStatus(context.WithoutCancel(ctx), runID, payroll.RunStatusFailed); markErr != nil {
			slog.Warn("mark run failed", "runId", runID, "err", markErr)
		}
		return summary, err
	}
	for _, res := range results {
		renderErr := ""
		if res.Err != nil {
			renderErr = res.Err.Error()
			summary.Failed++
		} else {
			summary.Rendered++
		}
		if err := store.SetPayslip(ctx, runID, res.Line, res.DocumentPath, res.PDFPath, renderErr); err != nil {
			slog.Warn("record payslip failed", "runId", runID, "line", res.Line, "err", err)
		}
	}
	summary.Results = results
	if err := store.MarkStatus(ctx, runID, payroll.RunStatusCompleted); err != nil {
		return summary, err
	}
	return summary, nil
}
