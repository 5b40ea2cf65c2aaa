package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig configura o pool de conexões do tick store.
type PoolConfig struct {
	DSN         string
	MinConns    int32
	MaxConns    int32
	HealthCheck time.Duration
}

// Connect cria o pgxpool.Pool compartilhado usado por todos os writers e
// readers do tick store.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse tick store dsn: %w", err)
	}

	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.HealthCheck > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheck
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create tick store pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping tick store: %w", err)
	}

	return pool, nil
}

// Utilization retorna a fração de conexões do pool em uso, para o watchdog
// de recurso compartilhado.
func Utilization(pool *pgxpool.Pool) float64 {
	stat := pool.Stat()
	max := stat.MaxConns()
	if max == 0 {
		return 0
	}
	return float64(stat.AcquiredConns()) / float64(max)
}
