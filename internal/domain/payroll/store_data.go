package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store persists runs in Postgres. Amounts travel as text and are cast to
// numeric in SQL so no driver-side decimal codec is needed.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) CreateRun(ctx context.Context, run Run, rows []RunRow) error {
	columnsJSON, err := json.Marshal(run.Columns)
	if err != nil {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
    INSERT INTO payroll_runs (id, status, source, schedule, contribution_rate, policy, row_count, failed_count,
                              total_gross, total_ssnit, total_tax, total_net, columns_json, created_at)
    VALUES ($1,$2,$3,$4,$5::text::numeric,$6,$7,$8,$9::text::numeric,$10::text::numeric,$11::text::numeric,$12::text::numeric,$13,$14)
  `, run.ID, run.Status, run.Source, run.Schedule, run.ContributionRate.String(), run.Policy, run.RowCount, run.FailedCount,
		run.Totals.GrossPay.String(), run.Totals.StatutoryContribution.String(), run.Totals.Tax.String(), run.Totals.NetPay.String(),
		columnsJSON, run.CreatedAt); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		cellsJSON, err := json.Marshal(row.Cells)
		if err != nil {
			return err
		}
		var gross, ssnit, taxable, paye, net *string
		if row.Derived != nil {
			gross = textPtr(row.Derived.GrossPay)
			ssnit = textPtr(row.Derived.StatutoryContribution)
			taxable = textPtr(row.Derived.TaxableIncome)
			paye = textPtr(row.Derived.Tax)
			net = textPtr(row.Derived.NetPay)
		}
		batch.Queue(`
      INSERT INTO payroll_run_rows (run_id, line, name, role, month, year,
                                    basic_salary, allowances, deductions,
                                    gross_pay, ssnit, taxable, paye, net_pay,
                                    error, field, cells_json)
      VALUES ($1,$2,$3,$4,$5,$6,
              $7::text::numeric,$8::text::numeric,$9::text::numeric,
              $10::text::numeric,$11::text::numeric,$12::text::numeric,$13::text::numeric,$14::text::numeric,
              $15,$16,$17)
    `, run.ID, row.Line, row.Input.Name, row.Input.Role, row.Input.Month, row.Input.Year,
			row.Input.BasicSalary.String(), row.Input.Allowances.String(), row.Input.Deductions.String(),
			gross, ssnit, taxable, paye, net,
			nullIfEmpty(row.Error), nullIfEmpty(row.Field), cellsJSON)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	run, err := scanRun(s.DB.QueryRow(ctx, runSelect+` WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

func (s *Store) CountRuns(ctx context.Context) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM payroll_runs").Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]Run, error) {
	rows, err := s.DB.Query(ctx, runSelect+`
    ORDER BY created_at DESC
    LIMIT $1 OFFSET $2
  `, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) ListRows(ctx context.Context, runID string) ([]RunRow, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT line, name, COALESCE(role, ''), COALESCE(month, ''), COALESCE(year, 0),
           basic_salary::text, allowances::text, deductions::text,
           gross_pay::text, ssnit::text, taxable::text, paye::text, net_pay::text,
           COALESCE(error, ''), COALESCE(field, ''), cells_json,
           COALESCE(payslip_path, ''), COALESCE(pdf_path, ''), COALESCE(render_error, '')
    FROM payroll_run_rows
    WHERE run_id = $1
    ORDER BY line
  `, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var row RunRow
		var basic, allowances, deductions string
		var gross, ssnit, taxable, paye, net *string
		var cellsJSON []byte
		if err := rows.Scan(&row.Line, &row.Input.Name, &row.Input.Role, &row.Input.Month, &row.Input.Year,
			&basic, &allowances, &deductions,
			&gross, &ssnit, &taxable, &paye, &net,
			&row.Error, &row.Field, &cellsJSON,
			&row.PayslipPath, &row.PDFPath, &row.RenderError); err != nil {
			return nil, err
		}
		row.Input.BasicSalary = decimal.RequireFromString(basic)
		row.Input.Allowances = decimal.RequireFromString(allowances)
		row.Input.Deductions = decimal.RequireFromString(deductions)
		if gross != nil {
			row.Derived = &DerivedPayroll{
				GrossPay:              decimal.RequireFromString(*gross),
				StatutoryContribution: decimal.RequireFromString(*ssnit),
				TaxableIncome:         decimal.RequireFromString(*taxable),
				Tax:                   decimal.RequireFromString(*paye),
				NetPay:                decimal.RequireFromString(*net),
			}
		}
		if len(cellsJSON) > 0 {
			if err := json.Unmarshal(cellsJSON, &row.Cells); err != nil {
				row.Cells = map[string]string{}
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRunStatus(ctx context.Context, runID, status string, completedAt *time.Time) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE payroll_runs
    SET status = $1, completed_at = COALESCE($2, completed_at)
    WHERE id = $3
  `, status, completedAt, runID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *Store) SetRowPayslip(ctx context.Context, runID string, line int, payslipPath, pdfPath, renderErr string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE payroll_run_rows
    SET payslip_path = $1, pdf_path = $2, render_error = $3
    WHERE run_id = $4 AND line = $5
  `, nullIfEmpty(payslipPath), nullIfEmpty(pdfPath), nullIfEmpty(renderErr), runID, line)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRowNotFound
	}
	return nil
}

func (s *Store) CreateJobRun(ctx context.Context, jobType, runID string) (string, error) {
	var id string
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, run_id, status)
    VALUES ($1,$2,$3)
    RETURNING id
  `, jobType, nullIfEmpty(runID), "running").Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) UpdateJobRun(ctx context.Context, jobID, status string, detailsJSON []byte) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, detailsJSON, jobID)
	return err
}

func (s *Store) ListJobRuns(ctx context.Context, runID string) ([]JobRun, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, job_type, COALESCE(run_id::text, ''), status, details_json, started_at, completed_at
    FROM job_runs
    WHERE run_id = $1
    ORDER BY started_at DESC
  `, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRun
	for rows.Next() {
		var job JobRun
		var details []byte
		if err := rows.Scan(&job.ID, &job.JobType, &job.RunID, &job.Status, &details, &job.StartedAt, &job.CompletedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			job.Details = json.RawMessage(details)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

const runSelect = `
    SELECT id::text, status, source, schedule, contribution_rate::text, policy, row_count, failed_count,
           total_gross::text, total_ssnit::text, total_tax::text, total_net::text, columns_json,
           created_at, completed_at
    FROM payroll_runs`

func scanRun(row pgx.Row) (Run, error) {
	var run Run
	var rate, gross, ssnit, tax, net string
	var columnsJSON []byte
	if err := row.Scan(&run.ID, &run.Status, &run.Source, &run.Schedule, &rate, &run.Policy, &run.RowCount, &run.FailedCount,
		&gross, &ssnit, &tax, &net, &columnsJSON, &run.CreatedAt, &run.CompletedAt); err != nil {
		return Run{}, err
	}
	run.ContributionRate = decimal.RequireFromString(rate)
	run.Totals = Totals{
		GrossPay:              decimal.RequireFromString(gross),
		StatutoryContribution: decimal.RequireFromString(ssnit),
		Tax:                   decimal.RequireFromString(tax),
		NetPay:                decimal.RequireFromString(net),
	}
	if err := json.Unmarshal(columnsJSON, &run.Columns); err != nil {
		run.Columns = nil
	}
	return run, nil
}

func textPtr(d decimal.Decimal) *string {
	s := d.String()
	return &s
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
