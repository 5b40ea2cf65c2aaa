package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

// JobHandler é o trabalho real associado a um nome de job, registrado
// pelo processo hospedeiro (cmd/scheduler, em buildHandlers, liga os jobs
// do catálogo a live.Loop.Trigger, frame.Aggregator.RunCycle, e assim por
// diante).
type JobHandler func(ctx context.Context) error

// runStore é o subconjunto de persistência de job_run usado pelo runner,
// extraído como interface para permitir um fake nos testes sem Postgres.
type runStore interface {
	CreateJobRun(ctx context.Context, run model.JobRun) error
	TransitionJobRun(ctx context.Context, runID string, state model.JobRunState, endedAt time.Time, errMsg string) error
}

// retryBackoff calcula o atraso antes da próxima tentativa: base 5s,
// dobrando por tentativa, com teto em 5 minutos.
func retryBackoff(attempt int) time.Duration {
	const base = 5 * time.Second
	const maxDelay = 5 * time.Minute
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return d
}

// runOnce executa o handler de job sob um deadline de HardLimit, grava a
// execução já em RUNNING (nenhuma linha passa por PENDING), a move para o
// estado terminal ao final, e agenda um retry como nova execução, também
// criada em RUNNING, com backoff exponencial se falhar e ainda houver
// tentativas restantes declaradas em RetryCount.
func (s *Scheduler) runOnce(ctx context.Context, job model.Job, attempt int) {
	handler, ok := s.Handlers[job.Name]
	if !ok {
		s.Log.Warn("no handler registered for job", zap.String("job", job.Name))
		return
	}

	run := model.JobRun{ID: uuid.NewString(), JobName: job.Name, State: model.RunRunning, Attempt: attempt, StartedAt: time.Now()}
	if s.Runs != nil {
		if err := s.Runs.CreateJobRun(ctx, run); err != nil {
			s.Log.Warn("create job run failed", zap.Error(err))
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if job.HardLimit > 0 {
		runCtx, cancel = context.WithTimeout(ctx, job.HardLimit)
		defer cancel()
	}

	err := handler(runCtx)
	endedAt := time.Now()

	var state model.JobRunState
	errMsg := ""
	switch {
	case err == nil:
		state = model.RunSucceeded
	case runCtx.Err() == context.DeadlineExceeded:
		state = model.RunTimedOut
		errMsg = "hard time limit exceeded"
	case runCtx.Err() == context.Canceled:
		state = model.RunCancelled
		errMsg = "cancelled"
	default:
		state = model.RunFailed
		errMsg = err.Error()
	}

	if s.Runs != nil {
		if terr := s.Runs.TransitionJobRun(ctx, run.ID, state, endedAt, errMsg); terr != nil {
			s.Log.Warn("transition job run failed", zap.Error(terr))
		}
	}

	if state == model.RunFailed && attempt < job.RetryCount {
		delay := retryBackoff(attempt)
		s.Log.Info("scheduling retry",
			zap.String("job", job.Name), zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
		time.AfterFunc(delay, func() { s.runOnce(context.Background(), job, attempt+1) })
	}
}
