package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
)

const JobRenderPayslips = "render_payslips"

var (
	ErrQueueFull = errors.New("job queue full")
	ErrAbandoned = errors.New("job abandoned at shutdown")
)

// Recorder persists job runs. Failures to record are logged, never fatal.
type Recorder interface {
	CreateJobRun(ctx context.Context, jobType, runID string) (string, error)
	UpdateJobRun(ctx context.Context, jobID, status string, detailsJSON []byte) error
}

type Service struct {
	recorder Recorder
	queue    chan job
	wg       sync.WaitGroup
}

type job struct {
	Type  string
	RunID string
	Run   func(context.Context) (any, error)
}

func New(recorder Recorder, size int) *Service {
	if size <= 0 {
		size = 128
	}
	return &Service{recorder: recorder, queue: make(chan job, size)}
}

// Start runs workers until ctx is done.
func (s *Service) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.worker(ctx)
		}()
	}
}

// Wait blocks until every worker has stopped.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Abandon records every job still queued as failed and passes its run to
// onDrop. Call it after Wait, once no worker reads the queue.
func (s *Service) Abandon(ctx context.Context, onDrop func(ctx context.Context, jobType, runID string)) int {
	dropped := 0
	for {
		select {
		case j := <-s.queue:
			dropped++
			j.Run = func(context.Context) (any, error) { return nil, ErrAbandoned }
			_, _ = s.runJob(ctx, j)
			slog.Warn("queued job abandoned", "jobType", j.Type, "runId", j.RunID)
			if onDrop != nil {
				onDrop(ctx, j.Type, j.RunID)
			}
		default:
			return dropped
		}
	}
}

func (s *Service) Enqueue(jobType, runID string, run func(context.Context) (any, error)) error {
	select {
	case s.queue <- job{Type: jobType, RunID: runID, Run: run}:
		return nil
	default:
		slog.Warn("job queue full", "jobType", jobType, "runId", runID)
		return ErrQueueFull
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, runID string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, RunID: runID, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "runId", j.RunID, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	jobID := ""
	if s.recorder != nil {
		id, err := s.recorder.CreateJobRun(ctx, j.Type, j.RunID)
		if err != nil {
			slog.Warn("job run insert failed", "err", err)
		}
		jobID = id
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
		details = map[string]any{"error": err.Error(), "details": details}
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if jobID != "" {
		if updErr := s.recorder.UpdateJobRun(ctx, jobID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}
