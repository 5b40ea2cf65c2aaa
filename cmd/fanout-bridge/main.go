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
	"github.com/radieske/live-odds-ingestion/internal/ingest/store"
	"github.com/radieske/live-odds-ingestion/internal/shared/cache"
	"github.com/radieske/live-odds-ingestion/internal/shared/config"
	"github.com/radieske/live-odds-ingestion/internal/shared/logger"
	"github.com/radieske/live-odds-ingestion/internal/shared/metrics"
)

// main sobe o processo dedicado de distribuição por WebSocket: nenhum job
// do scheduler roda aqui, só o Hub local recebendo o relay publicado pelo
// processo scheduler via Redis Pub/Sub e entregando a cada assinante
// conectado.
func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := store.Connect(ctx, store.PoolConfig{DSN: cfg.TickStoreDSN, MinConns: 2, MaxConns: 5})
	if err != nil {
		log.Fatal("connect tick store failed", zap.Error(err))
	}
	defer pool.Close()
	tickStore := store.NewTickStore(pool)

	redisClient, err := cache.ConnectRedis(cfg.BusDSN)
	if err != nil {
		log.Fatal("connect redis failed", zap.Error(err))
	}

	hub := fanout.NewHub(nil)
	hub.Log = log
	hub.Store = tickStore
	hub.Horizon = 24 * time.Hour
	hub.RingSize = cfg.CatchupRingSize
	hub.SlowConsumerGrace = cfg.SlowConsumerGrace

	broker := fanout.NewBroker(redisClient, log)
	broker.Subscribe(ctx, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream", hub.HandleWS)
	httpSrv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux}
	go func() {
		log.Info("fanout ws listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("fanout http server failed", zap.Error(err))
		}
	}()

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
	_ = httpSrv.Shutdown(shutdownCtx)
}
