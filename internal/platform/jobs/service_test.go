package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu       sync.Mutex
	statuses map[string]string
	created  int
}

func (f *fakeRecorder) CreateJobRun(_ context.Context, jobType, runID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return jobType + ":" + runID, nil
}

func (f *fakeRecorder) UpdateJobRun(_ context.Context, jobID, status string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = map[string]string{}
	}
	f.statuses[jobID] = status
	return nil
}

func (f *fakeRecorder) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

func TestRunNowRecordsOutcome(t *testing.T) {
	rec := &fakeRecorder{}
	svc := New(rec, 1)

	out, err := svc.RunNow(context.Background(), JobRenderPayslips, "r1", func(context.Context) (any, error) {
		return map[string]int{"rendered": 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"rendered": 3}, out)
	assert.Equal(t, "completed", rec.status(JobRenderPayslips+":r1"))

	_, err = svc.RunNow(context.Background(), JobRenderPayslips, "r2", func(context.Context) (any, error) {
		return nil, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, "failed", rec.status(JobRenderPayslips+":r2"))
}

func TestWorkerDrainsQueue(t *testing.T) {
	rec := &fakeRecorder{}
	svc := New(rec, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx, 2)

	done := make(chan struct{})
	require.NoError(t, svc.Enqueue(JobRenderPayslips, "r1", func(context.Context) (any, error) {
		close(done)
		return nil, nil
	}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
	assert.Eventually(t, func() bool {
		return rec.status(JobRenderPayslips+":r1") == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	svc.Wait()
}

func TestEnqueueFull(t *testing.T) {
	svc := New(nil, 1)
	noop := func(context.Context) (any, error) { return nil, nil }
	require.NoError(t, svc.Enqueue(JobRenderPayslips, "a", noop))
	assert.ErrorIs(t, svc.Enqueue(JobRenderPayslips, "b", noop), ErrQueueFull)
}

func TestAbandonFailsQueuedJobs(t *testing.T) {
	rec := &fakeRecorder{}
	svc := New(rec, 4)
	ran := false
	run := func(context.Context) (any, error) {
		ran = true
		return nil, nil
	}
	require.NoError(t, svc.Enqueue(JobRenderPayslips, "r1", run))
	require.NoError(t, svc.Enqueue(JobRenderPayslips, "r2", run))

	var dropped []string
	n := svc.Abandon(context.Background(), func(_ context.Context, jobType, runID string) {
		assert.Equal(t, JobRenderPayslips, jobType)
		dropped = append(dropped, runID)
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"r1", "r2"}, dropped)
	assert.False(t, ran)
	assert.Equal(t, "failed", rec.status(JobRenderPayslips+":r1"))
	assert.Equal(t, "failed", rec.status(JobRenderPayslips+":r2"))
	assert.Zero(t, svc.Abandon(context.Background(), nil))
}
