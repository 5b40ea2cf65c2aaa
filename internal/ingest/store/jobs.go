package store

import (
	"context"
	"time"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

// UpsertJob grava a definição declarada de um job, mutável pela superfície
// de operação (habilitar/desabilitar, mudar schedule). Chamado uma vez no
// bootstrap do dispatcher para cada entrada do catálogo, e de novo sempre
// que a superfície de operação edita um job.
func (s *TickStore) UpsertJob(ctx context.Context, j model.Job) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO job
			  (name, kind, spec, queue, priority, enabled, soft_limit_ms, hard_limit_ms, retry_count)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (name) DO UPDATE SET
			  kind           = EXCLUDED.kind,
			  spec           = EXCLUDED.spec,
			  queue          = EXCLUDED.queue,
			  priority       = EXCLUDED.priority,
			  enabled        = EXCLUDED.enabled,
			  soft_limit_ms  = EXCLUDED.soft_limit_ms,
			  hard_limit_ms  = EXCLUDED.hard_limit_ms,
			  retry_count    = EXCLUDED.retry_count
		`, j.Name, j.Kind, j.Spec, j.Queue, j.Priority, j.Enabled,
			j.SoftLimit.Milliseconds(), j.HardLimit.Milliseconds(), j.RetryCount)
		return err
	})
}

// Jobs lista o catálogo declarado completo, lido pelo dispatcher a cada
// reconstrução de schedule e exposto pela superfície de operação.
func (s *TickStore) Jobs(ctx context.Context) ([]model.Job, error) {
	var out []model.Job
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT name, kind, spec, queue, priority, enabled, soft_limit_ms, hard_limit_ms, retry_count
			FROM job ORDER BY name
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var j model.Job
			var softMs, hardMs int64
			if err := rows.Scan(&j.Name, &j.Kind, &j.Spec, &j.Queue, &j.Priority, &j.Enabled, &softMs, &hardMs, &j.RetryCount); err != nil {
				return err
			}
			j.SoftLimit = time.Duration(softMs) * time.Millisecond
			j.HardLimit = time.Duration(hardMs) * time.Millisecond
			out = append(out, j)
		}
		return rows.Err()
	})
	return out, err
}

// CreateJobRun grava uma nova execução no estado de run.State; o runner do
// scheduler a cria já em RUNNING, e TransitionJobRun a leva depois a
// {SUCCEEDED, FAILED, TIMED_OUT, CANCELLED}.
func (s *TickStore) CreateJobRun(ctx context.Context, run model.JobRun) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO job_run (id, job_name, state, attempt, started_at, ended_at, err)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, run.ID, run.JobName, run.State, run.Attempt, run.StartedAt, nullableTime(run.EndedAt), run.Err)
		return err
	})
}

// TransitionJobRun move um job_run para um novo estado terminal ou
// intermediário, gravando o instante de término e a causa de falha quando
// aplicável.
func (s *TickStore) TransitionJobRun(ctx context.Context, runID string, state model.JobRunState, endedAt time.Time, errMsg string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			UPDATE job_run SET state = $2, ended_at = $3, err = $4 WHERE id = $1
		`, runID, state, nullableTime(endedAt), errMsg)
		return err
	})
}

// RecentJobRuns lista as últimas execuções de um job, mais recente primeiro,
// até limit linhas.
func (s *TickStore) RecentJobRuns(ctx context.Context, jobName string, limit int) ([]model.JobRun, error) {
	var out []model.JobRun
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT id, job_name, state, attempt, started_at, ended_at, err
			FROM job_run WHERE job_name = $1
			ORDER BY started_at DESC LIMIT $2
		`, jobName, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var r model.JobRun
			var endedAt *time.Time
			if err := rows.Scan(&r.ID, &r.JobName, &r.State, &r.Attempt, &r.StartedAt, &endedAt, &r.Err); err != nil {
				return err
			}
			if endedAt != nil {
				r.EndedAt = *endedAt
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
