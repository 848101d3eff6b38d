package payroll

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps runs in process. It backs the server when no database is
// configured.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]Run
	rows map[string][]RunRow
	jobs map[string]JobRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: map[string]Run{},
		rows: map[string][]RunRow{},
		jobs: map[string]JobRun{},
	}
}

func (m *MemoryStore) CreateRun(ctx context.Context, run Run, rows []RunRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	copied := make([]RunRow, len(rows))
	copy(copied, rows)
	m.rows[run.ID] = copied
	return nil
}

func (m *MemoryStore) GetRun(ctx context.Context, runID string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return run, nil
}

func (m *MemoryStore) CountRuns(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs), nil
}

func (m *MemoryStore) ListRuns(ctx context.Context, limit, offset int) ([]Run, error) {
	m.mu.RLock()
	runs := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	m.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if offset >= len(runs) {
		return nil, nil
	}
	end := len(runs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return runs[offset:end], nil
}

func (m *MemoryStore) ListRows(ctx context.Context, runID string) ([]RunRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, ok := m.rows[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	out := make([]RunRow, len(rows))
	copy(out, rows)
	return out, nil
}

func (m *MemoryStore) UpdateRunStatus(ctx context.Context, runID, status string, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	run.Status = status
	if completedAt != nil {
		run.CompletedAt = completedAt
	}
	m.runs[runID] = run
	return nil
}

func (m *MemoryStore) SetRowPayslip(ctx context.Context, runID string, line int, payslipPath, pdfPath, renderErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.rows[runID]
	for i := range rows {
		if rows[i].Line == line {
			rows[i].PayslipPath = payslipPath
			rows[i].PDFPath = pdfPath
			rows[i].RenderError = renderErr
			return nil
		}
	}
	return ErrRowNotFound
}

func (m *MemoryStore) CreateJobRun(ctx context.Context, jobType, runID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.jobs[id] = JobRun{ID: id, JobType: jobType, RunID: runID, Status: "running", StartedAt: time.Now().UTC()}
	return id, nil
}

func (m *MemoryStore) UpdateJobRun(ctx context.Context, jobID, status string, detailsJSON []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	job.Status = status
	job.Details = detailsJSON
	job.CompletedAt = &now
	m.jobs[jobID] = job
	return nil
}

func (m *MemoryStore) ListJobRuns(ctx context.Context, runID string) ([]JobRun, error) {
	m.mu.RLock()
	var out []JobRun
	for _, job := range m.jobs {
		if job.RunID == runID {
			out = append(out, job)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}
