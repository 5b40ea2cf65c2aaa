package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

func TestRetryBackoffDoublesUpToCap(t *testing.T) {
	require.Equal(t, 5*time.Second, retryBackoff(0))
	require.Equal(t, 10*time.Second, retryBackoff(1))
	require.Equal(t, 20*time.Second, retryBackoff(2))
	require.Equal(t, 5*time.Minute, retryBackoff(20))
}

type fakeRunStore struct {
	created     []model.JobRun
	transitions []model.JobRunState
}

func (f *fakeRunStore) CreateJobRun(_ context.Context, run model.JobRun) error {
	f.created = append(f.created, run)
	return nil
}

func (f *fakeRunStore) TransitionJobRun(_ context.Context, _ string, state model.JobRunState, _ time.Time, _ string) error {
	f.transitions = append(f.transitions, state)
	return nil
}

func TestRunOnceSucceeds(t *testing.T) {
	runs := &fakeRunStore{}
	s := &Scheduler{
		Log:  zap.NewNop(),
		Runs: runs,
		Handlers: map[string]JobHandler{
			"job-a": func(ctx context.Context) error { return nil },
		},
	}
	job := model.Job{Name: "job-a", HardLimit: time.Second}

	s.runOnce(context.Background(), job, 0)

	require.Len(t, runs.created, 1)
	require.Equal(t, []model.JobRunState{model.RunSucceeded}, runs.transitions)
}

func TestRunOnceFailureSchedulesRetryWhenBudgetRemains(t *testing.T) {
	runs := &fakeRunStore{}
	s := &Scheduler{
		Log:  zap.NewNop(),
		Runs: runs,
		Handlers: map[string]JobHandler{
			"job-a": func(ctx context.Context) error { return errors.New("boom") },
		},
	}
	job := model.Job{Name: "job-a", HardLimit: time.Second, RetryCount: 3}

	s.runOnce(context.Background(), job, 0)

	require.Equal(t, []model.JobRunState{model.RunFailed}, runs.transitions)
}

func TestRunOnceNoHandlerIsNoop(t *testing.T) {
	runs := &fakeRunStore{}
	s := &Scheduler{Log: zap.NewNop(), Runs: runs, Handlers: map[string]JobHandler{}}
	job := model.Job{Name: "job-a"}

	s.runOnce(context.Background(), job, 0)

	require.Empty(t, runs.created)
}
