package model

import "time"

// JobKind distingue jobs com expressão cron de jobs de intervalo fixo.
type JobKind string

const (
	JobKindCron     JobKind = "cron"
	JobKindInterval JobKind = "interval"
)

// Job é uma unidade declarada de trabalho agendado, mutável pela superfície
// de operação.
type Job struct {
	Name       string
	Kind       JobKind
	Spec       string // expressão cron, ou string de duração para jobs de intervalo
	Queue      string
	Priority   int
	Enabled    bool
	SoftLimit  time.Duration
	HardLimit  time.Duration
	RetryCount int
}

// JobRunState é o ciclo de vida de uma execução despachada de um Job.
type JobRunState string

const (
	RunPending   JobRunState = "PENDING"
	RunRunning   JobRunState = "RUNNING"
	RunSucceeded JobRunState = "SUCCEEDED"
	RunFailed    JobRunState = "FAILED"
	RunTimedOut  JobRunState = "TIMED_OUT"
	RunCancelled JobRunState = "CANCELLED"
)

// JobRun é uma tentativa despachada de um Job.
type JobRun struct {
	ID        string
	JobName   string
	State     JobRunState
	Attempt   int
	StartedAt time.Time
	EndedAt   time.Time
	Err       string
}
