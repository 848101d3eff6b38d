package payroll

import (
	"context"
	"time"
)

type StoreAPI interface {
	CreateRun(ctx context.Context, run Run, rows []RunRow) error
	GetRun(ctx context.Context, runID string) (Run, error)
	CountRuns(ctx context.Context) (int, error)
	ListRuns(ctx context.Context, limit, offset int) ([]Run, error)
	ListRows(ctx context.Context, runID string) ([]RunRow, error)
	UpdateRunStatus(ctx context.Context, runID, status string, completedAt *time.Time) error
	SetRowPayslip(ctx context.Context, runID string, line int, payslipPath, pdfPath, renderErr string) error
	CreateJobRun(ctx context.Context, jobType, runID string) (string, error)
	UpdateJobRun(ctx context.Context, jobID, status string, detailsJSON []byte) error
	ListJobRuns(ctx context.Context, runID string) ([]JobRun, error)
}
