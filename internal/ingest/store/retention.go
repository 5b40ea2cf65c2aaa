package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetentionPolicy replica as janelas de compressão e expurgo do worker de
// frames original: odds comprime aos 7 dias e é apagado aos 30; eventos
// comprime aos 7 e apaga aos 90; estatísticas comprime aos 7 e apaga aos
// 60; frames materializados não comprimem e são apagados aos 90.
type RetentionPolicy struct {
	OddsCompressAfter  time.Duration
	OddsDeleteAfter    time.Duration
	EventCompressAfter time.Duration
	EventDeleteAfter   time.Duration
	StatCompressAfter  time.Duration
	StatDeleteAfter    time.Duration
	FrameDeleteAfter   time.Duration
}

// DefaultRetentionPolicy retorna as janelas declaradas pelo contrato de
// retenção do tick store.
func DefaultRetentionPolicy() RetentionPolicy {
	day := 24 * time.Hour
	return RetentionPolicy{
		OddsCompressAfter:  7 * day,
		OddsDeleteAfter:    30 * day,
		EventCompressAfter: 7 * day,
		EventDeleteAfter:   90 * day,
		StatCompressAfter:  7 * day,
		StatDeleteAfter:    60 * day,
		FrameDeleteAfter:   90 * day,
	}
}

// RunMaintenance executa uma passada de compressão e expurgo sobre as
// quatro tabelas do tick store, registrando no log cada contagem de linhas
// afetadas. Chamado pelo job cron `retention_maintenance`.
func (s *TickStore) RunMaintenance(ctx context.Context, policy RetentionPolicy, log *zap.Logger) error {
	now := time.Now()

	if err := s.compressOldChunks(ctx, "live_odds_tick", now.Add(-policy.OddsCompressAfter), log); err != nil {
		return err
	}
	if err := s.compressOldChunks(ctx, "live_event_tick", now.Add(-policy.EventCompressAfter), log); err != nil {
		return err
	}
	if err := s.compressOldChunks(ctx, "live_stat_tick", now.Add(-policy.StatCompressAfter), log); err != nil {
		return err
	}

	deletes := []struct {
		table  string
		column string
		before time.Time
	}{
		{"live_odds_tick", "instant", now.Add(-policy.OddsDeleteAfter)},
		{"live_event_tick", "instant", now.Add(-policy.EventDeleteAfter)},
		{"live_stat_tick", "instant", now.Add(-policy.StatDeleteAfter)},
		{"match_live_frame", "bucket_start", now.Add(-policy.FrameDeleteAfter)},
	}
	for _, d := range deletes {
		n, err := s.deleteOlderThan(ctx, d.table, d.column, d.before)
		if err != nil {
			return err
		}
		log.Info("retention delete completed",
			zap.String("table", d.table), zap.Time("before", d.before), zap.Int64("rows", n))
	}
	return nil
}

// deleteOlderThan remove linhas de table cuja column seja anterior a
// before, em lotes, para não prender o pool numa transação longa.
func (s *TickStore) deleteOlderThan(ctx context.Context, table, column string, before time.Time) (int64, error) {
	var total int64
	for {
		var affected int64
		err := withRetry(ctx, func(ctx context.Context) error {
			tag, err := s.pool.Exec(ctx,
				"DELETE FROM "+table+" WHERE "+column+" < $1 AND ctid IN ("+
					"SELECT ctid FROM "+table+" WHERE "+column+" < $1 LIMIT 10000)", before)
			if err != nil {
				return err
			}
			affected = tag.RowsAffected()
			return nil
		})
		if err != nil {
			return total, err
		}
		total += affected
		if affected < 10000 {
			return total, nil
		}
	}
}

// compressOldChunks invoca a política de compressão do TimescaleDB sobre os
// chunks de table mais antigos que before. Tabelas sem hypertable
// configurada simplesmente não têm chunks a comprimir e a chamada é uma
// no-op custosa; aceitável na cadência diária do job de manutenção.
func (s *TickStore) compressOldChunks(ctx context.Context, table string, before time.Time, log *zap.Logger) error {
	_, err := s.pool.Exec(ctx, `
		SELECT compress_chunk(c, if_not_compressed => true)
		FROM show_chunks($1, older_than => $2) c
	`, table, before)
	if err != nil {
		log.Warn("compress_chunk skipped", zap.String("table", table), zap.Error(err))
	}
	return nil
}
