package scheduler

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

func TestDefaultCatalogHasAllSevenJobs(t *testing.T) {
	catalog := DefaultCatalog()
	require.Len(t, catalog, 7)

	names := map[string]bool{}
	for _, j := range catalog {
		names[j.Name] = true
		require.True(t, j.Enabled)
	}
	for _, want := range []string{
		JobFixturePoll, JobLiveTrigger, JobPrematchSnapshot,
		JobFrameMaker, JobFinalizer, JobWeeklyRefresh, JobRetentionMaintenance,
	} {
		require.True(t, names[want], "missing job %s", want)
	}
}

func TestDispatchSkipsDisabledJob(t *testing.T) {
	dispatcher, err := NewDispatcher(zap.NewNop())
	require.NoError(t, err)
	defer dispatcher.Release()

	var calls atomic.Int32
	s := &Scheduler{
		Log:        zap.NewNop(),
		Dispatcher: dispatcher,
		Handlers: map[string]JobHandler{
			"job-a": func(ctx context.Context) error { calls.Add(1); return nil },
		},
	}
	s.SetJobs([]model.Job{{Name: "job-a", Queue: QueueMaintenance, Enabled: false}})

	s.dispatch(context.Background(), model.Job{Name: "job-a", Queue: QueueMaintenance, Enabled: false})

	require.Zero(t, calls.Load())
}

func TestDispatchUnknownQueueDoesNotPanic(t *testing.T) {
	dispatcher, err := NewDispatcher(zap.NewNop())
	require.NoError(t, err)
	defer dispatcher.Release()

	s := &Scheduler{Log: zap.NewNop(), Dispatcher: dispatcher, Handlers: map[string]JobHandler{}}
	s.SetJobs([]model.Job{{Name: "job-a", Queue: "not-a-real-queue", Enabled: true}})

	s.dispatch(context.Background(), model.Job{Name: "job-a", Queue: "not-a-real-queue", Enabled: true})
}

func TestJobByNameReflectsHotReload(t *testing.T) {
	s := &Scheduler{Log: zap.NewNop()}
	s.SetJobs([]model.Job{{Name: "job-a", Enabled: true}})

	job, ok := s.jobByName("job-a")
	require.True(t, ok)
	require.True(t, job.Enabled)

	s.SetJobs([]model.Job{{Name: "job-a", Enabled: false}})

	job, ok = s.jobByName("job-a")
	require.True(t, ok)
	require.False(t, job.Enabled)
}
