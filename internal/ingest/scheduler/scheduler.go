package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

// Scheduler é a fonte única de verdade de o que roda quando: mantém o
// catálogo de jobs (hot-reloadable via SetJobs, efetivo na próxima
// reconstrução de schedule), um cron.Cron para os jobs cron e um
// time.Ticker por job de intervalo, no mesmo estilo multi-ticker de
// jonnyspicer-hyperkaehler/internal/scheduler/scheduler.go's Run(ctx),
// generalizado de três tickers fixos para o catálogo declarado completo.
type Scheduler struct {
	Log        *zap.Logger
	Runs       runStore
	Dispatcher *Dispatcher
	Handlers   map[string]JobHandler

	// AuditQueues, quando preenchida, publica um Envelope em Kafka por
	// dispatch bem-sucedido, ao lado (nunca no lugar) da execução local do
	// job: um stream de auditoria externo do que foi disparado e quando,
	// consumível por sistemas fora deste processo. Chave é o nome da
	// classe de carga (QueueLive, QueueFixtures, ...).
	AuditQueues map[string]*Queue

	jobs atomic.Pointer[[]model.Job]

	mu        sync.Mutex
	cron      *cron.Cron
	cancelFns []context.CancelFunc
	running   bool
}

// NewScheduler cria um Scheduler com o catálogo inicial dado.
func NewScheduler(log *zap.Logger, runs runStore, dispatcher *Dispatcher, handlers map[string]JobHandler, jobs []model.Job) *Scheduler {
	s := &Scheduler{Log: log, Runs: runs, Dispatcher: dispatcher, Handlers: handlers}
	s.SetJobs(jobs)
	return s
}

// SetJobs substitui o catálogo corrente. Se o scheduler já está em
// execução, reconstrói cron e tickers dentro de um ciclo (<=1s): jobs
// desabilitados deixam de ser reagendados e não acumulam backlog.
func (s *Scheduler) SetJobs(jobs []model.Job) {
	cp := make([]model.Job, len(jobs))
	copy(cp, jobs)
	s.jobs.Store(&cp)

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		s.rebuild()
	}
}

func (s *Scheduler) currentJobs() []model.Job {
	p := s.jobs.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (s *Scheduler) jobByName(name string) (model.Job, bool) {
	for _, j := range s.currentJobs() {
		if j.Name == name {
			return j, true
		}
	}
	return model.Job{}, false
}

// Run inicia todos os jobs habilitados do catálogo e bloqueia até ctx ser
// cancelado, parando cron e tickers antes de retornar.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.rebuildLocked(ctx)

	<-ctx.Done()

	s.mu.Lock()
	s.running = false
	if s.cron != nil {
		s.cron.Stop()
	}
	for _, cancel := range s.cancelFns {
		cancel()
	}
	s.cancelFns = nil
	s.mu.Unlock()
}

// rebuild reconstrói o schedule corrente enquanto o scheduler já está em
// execução, chamado por SetJobs num hot reload.
func (s *Scheduler) rebuild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
	}
	for _, cancel := range s.cancelFns {
		cancel()
	}
	s.cancelFns = nil
	s.rebuildLocked(context.Background())
}

func (s *Scheduler) rebuildLocked(ctx context.Context) {
	s.cron = cron.New()
	for _, job := range s.currentJobs() {
		if !job.Enabled {
			continue
		}
		job := job
		switch job.Kind {
		case model.JobKindCron:
			if _, err := s.cron.AddFunc(job.Spec, func() { s.dispatch(ctx, job) }); err != nil {
				s.Log.Error("invalid cron spec", zap.String("job", job.Name), zap.String("spec", job.Spec), zap.Error(err))
			}
		case model.JobKindInterval:
			interval, err := time.ParseDuration(job.Spec)
			if err != nil {
				s.Log.Error("invalid interval spec", zap.String("job", job.Name), zap.String("spec", job.Spec), zap.Error(err))
				continue
			}
			jobCtx, cancel := context.WithCancel(ctx)
			s.cancelFns = append(s.cancelFns, cancel)
			go s.runInterval(jobCtx, job, interval)
		}
	}
	s.cron.Start()
}

func (s *Scheduler) runInterval(ctx context.Context, job model.Job, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatch(ctx, job)
		}
	}
}

// dispatch confere se o job ainda está habilitado no catálogo corrente
// (pode ter sido desligado depois que a goroutine do ticker nasceu) e
// submete sua execução ao pool da fila correspondente. O Envelope
// carimbado aqui, no instante do disparo, viaja dentro da closure
// submetida: se o pool da fila estiver saturado e a execução só começar
// depois de SoftLimit ter decorrido, o job é descartado e contado em vez
// de rodar atrasado — o mesmo teste de expiração de queue.go's
// Envelope.Expired, aplicado no caminho que de fato executa o trabalho, não
// só no stream de auditoria.
func (s *Scheduler) dispatch(ctx context.Context, job model.Job) {
	current, ok := s.jobByName(job.Name)
	if !ok || !current.Enabled {
		return
	}

	env := Envelope{JobName: current.Name, EnqueuedAt: time.Now(), TTL: current.SoftLimit}
	run := func() {
		if env.Expired(time.Now()) {
			dispatchDropped.WithLabelValues(current.Queue, current.Name).Inc()
			s.Log.Warn("dispatch dropped: ttl exceeded before run",
				zap.String("job", current.Name), zap.String("queue", current.Queue), zap.Duration("ttl", current.SoftLimit))
			return
		}
		s.runOnce(ctx, current, 0)
	}

	if err := s.Dispatcher.Submit(ctx, current.Queue, run); err != nil {
		s.Log.Warn("dispatch failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	if q, ok := s.AuditQueues[current.Queue]; ok {
		if err := q.Enqueue(ctx, current.Name, current.SoftLimit); err != nil {
			s.Log.Warn("dispatch audit enqueue failed", zap.String("job", job.Name), zap.Error(err))
		}
	}
}
