package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-odds-ingestion/internal/ingest/fanout"
	"github.com/radieske/live-odds-ingestion/internal/ingest/frame"
	"github.com/radieske/live-odds-ingestion/internal/ingest/live"
	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
	"github.com/radieske/live-odds-ingestion/internal/ingest/operator"
	"github.com/radieske/live-odds-ingestion/internal/ingest/scheduler"
	"github.com/radieske/live-odds-ingestion/internal/ingest/store"
	"github.com/radieske/live-odds-ingestion/internal/ingest/upstream"
	"github.com/radieske/live-odds-ingestion/internal/shared/cache"
	"github.com/radieske/live-odds-ingestion/internal/shared/config"
	"github.com/radieske/live-odds-ingestion/internal/shared/logger"
	"github.com/radieske/live-odds-ingestion/internal/shared/metrics"
)

// main monta o processo único que possui todo o ciclo de ingestão: o
// scheduler dispara live_trigger, frame_maker, fixture_poll,
// prematch_snapshot, finalizer, weekly_refresh e retention_maintenance no
// cadence declarado pelo catálogo, cada um invocando diretamente o método
// de ciclo do componente correspondente (nunca um laço de ticker próprio,
// que duplicaria o disparo).
func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := store.Connect(ctx, store.PoolConfig{DSN: cfg.TickStoreDSN, MinConns: 2, MaxConns: 10})
	if err != nil {
		log.Fatal("connect tick store failed", zap.Error(err))
	}
	defer pool.Close()
	tickStore := store.NewTickStore(pool)

	redisClient, err := cache.ConnectRedis(cfg.BusDSN)
	if err != nil {
		log.Fatal("connect redis failed", zap.Error(err))
	}
	liveCache := live.NewCache(redisClient)

	governor := upstream.NewGovernor(upstream.GovernorConfig{
		MaxRPS: cfg.UpstreamMaxRPS, MaxRPM: cfg.UpstreamMaxRPM, MaxRPD: cfg.UpstreamMaxRPD, Burst: cfg.UpstreamBurst,
		AcquireTimeout: cfg.UpstreamAcquireTimeout,
	})
	upstreamClient := upstream.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamKey, governor,
		upstream.WithLogger(log),
		upstream.WithRequestTimeout(cfg.UpstreamReqTimeout),
		upstream.WithRetry(cfg.UpstreamRetryAttempt, cfg.UpstreamRetryDelay, cfg.UpstreamMaxBackoff),
	)

	hub := fanout.NewHub(nil)
	hub.Store = tickStore
	hub.Horizon = 24 * time.Hour
	hub.RingSize = cfg.CatchupRingSize
	hub.SlowConsumerGrace = cfg.SlowConsumerGrace
	hub.Log = log
	hub.Broker = fanout.NewBroker(redisClient, log)

	loop := live.NewLoop(upstreamClient, tickStore, liveCache, log, live.Config{
		EnabledLeagues: cfg.EnabledLeagues,
		OddsInterval:   cfg.OddsPollInterval,
		EventsInterval: cfg.EventsPollInterval,
		StatsInterval:  cfg.StatsPollInterval,
		Concurrency:    cfg.LiveWorkerConcurrent,
	})
	loop.OnBatchWritten = func(fixtureID int64, kind model.TickKind, batch any, n int) {
		hub.Publish(fixtureID, msgTypeForKind(kind), batch)
	}
	loop.OnFixtureClosed = func(fixtureID int64) {
		hub.Publish(fixtureID, fanout.TypeFixtureClosed, nil)
	}

	aggregator := &frame.Aggregator{Store: tickStore, Log: log, Interval: cfg.FrameInterval}
	aggregator.OnFrameWritten = func(fixtureID int64, bucketStart time.Time) {
		log.Debug("frame written", zap.Int64("fixture_id", fixtureID), zap.Time("bucket_start", bucketStart))
	}
	aggregator.OnLateTicksDropped = func(kind string, n int64) {
		log.Warn("late ticks dropped", zap.String("kind", kind), zap.Int64("count", n))
	}
	aggregator.OnLagSeconds = func(seconds float64) {
		log.Warn("frame aggregator lagging", zap.Float64("seconds", seconds))
	}

	dispatcher, err := scheduler.NewDispatcher(log)
	if err != nil {
		log.Fatal("build dispatcher failed", zap.Error(err))
	}
	defer dispatcher.Release()

	handlers := buildHandlers(log, tickStore, upstreamClient, loop, aggregator, cfg)

	jobs, err := tickStore.Jobs(ctx)
	if err != nil {
		log.Fatal("load job catalog failed", zap.Error(err))
	}
	if len(jobs) == 0 {
		jobs = scheduler.DefaultCatalog()
		for _, j := range jobs {
			if err := tickStore.UpsertJob(ctx, j); err != nil {
				log.Fatal("bootstrap job catalog failed", zap.String("job", j.Name), zap.Error(err))
			}
		}
	}

	sched := scheduler.NewScheduler(log, tickStore, dispatcher, handlers, jobs)
	sched.AuditQueues = buildAuditQueues(log, cfg)

	api := &operator.API{
		Store:      tickStore,
		Governor:   governor,
		Dispatcher: dispatcher,
		Aggregator: aggregator,
		Log:        log,
		OnJobsUpdated: func(updated []model.Job) {
			sched.SetJobs(updated)
		},
		OnLeaguesUpdated: func(leagueIDs []int64) {
			next := loopConfigWithLeagues(cfg, leagueIDs)
			loop.SetConfig(next)
		},
	}

	go sched.Run(ctx)

	var httpSrv *http.Server
	if cfg.HTTPPort != "" {
		httpSrv = &http.Server{Addr: ":" + cfg.HTTPPort, Handler: api.Router()}
		go func() {
			log.Info("operator http listening", zap.String("addr", httpSrv.Addr))
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("operator http server failed", zap.Error(err))
			}
		}()
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return tickStore.Ping(ctx)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	if httpSrv != nil {
		_ = httpSrv.Shutdown(shutdownCtx)
	}
}

func loopConfigWithLeagues(cfg config.Config, leagueIDs []int64) live.Config {
	return live.Config{
		EnabledLeagues: leagueIDs,
		OddsInterval:   cfg.OddsPollInterval,
		EventsInterval: cfg.EventsPollInterval,
		StatsInterval:  cfg.StatsPollInterval,
		Concurrency:    cfg.LiveWorkerConcurrent,
	}
}

func msgTypeForKind(kind model.TickKind) fanout.MessageType {
	switch kind {
	case model.KindOdds:
		return fanout.TypeOddsUpdate
	case model.KindEvent:
		return fanout.TypeEventUpdate
	default:
		return fanout.TypeStatsUpdate
	}
}
