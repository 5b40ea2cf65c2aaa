// Package store implementa a camada de persistência do tick store: insert
// em lote append-only com dedup por chave natural, leitura dos ticks mais
// recentes e dos frames materializados, e a manutenção de retenção.
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

// ErrInvalidPrice é retornado quando um OddsTick ou PrematchOdds traz um
// preço não positivo.
var ErrInvalidPrice = errors.Wrapf(ErrValidation, "price must be > 0")

// ErrInvalidPossession é retornado quando um StatTick traz possession_pct
// fora de [0, 100].
var ErrInvalidPossession = errors.Wrapf(ErrValidation, "possession_pct must be in [0, 100]")

// TickStore é a fachada de persistência sobre o pool de conexões pgx.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore constrói um TickStore sobre um pool já conectado.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

// Ping verifica a conectividade do pool, usado pelo probe de saúde do
// operador.
func (s *TickStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Utilization retorna a fração de conexões do pool em uso, usada pelo
// probe de saúde do operador.
func (s *TickStore) Utilization() float64 {
	return Utilization(s.pool)
}

const retryAttempts = 3

// withRetry retenta op até retryAttempts vezes enquanto classify(err) for
// ErrTransient, conforme a política de storage transiente do contrato de
// erros (nunca retenta ErrFatal).
func withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		classified := classify(err)
		lastErr = classified
		if !isTransient(classified) {
			return classified
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return lastErr
}

func isTransient(err error) bool {
	return classifyIs(err, ErrTransient)
}

// InsertOddsTicks grava um lote de ticks de odds. Duplicatas pela chave
// natural (FixtureID, Bookmaker, Market, Outcome, Instant) são ignoradas
// silenciosamente via ON CONFLICT DO NOTHING.
func (s *TickStore) InsertOddsTicks(ctx context.Context, ticks []model.OddsTick) (int64, error) {
	for _, t := range ticks {
		if t.Price <= 0 {
			return 0, ErrInvalidPrice
		}
	}
	if len(ticks) == 0 {
		return 0, nil
	}

	var inserted int64
	err := withRetry(ctx, func(ctx context.Context) error {
		batch := &pgx.Batch{}
		for _, t := range ticks {
			batch.Queue(`
				INSERT INTO live_odds_tick
				  (fixture_id, bookmaker, market, outcome, instant, price, match_minute)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
				ON CONFLICT (fixture_id, bookmaker, market, outcome, instant) DO NOTHING
			`, t.FixtureID, t.Bookmaker, t.Market, t.Outcome, t.Instant, t.Price, t.MatchMinute)
		}
		results := s.pool.SendBatch(ctx, batch)
		defer results.Close()
		inserted = 0
		for range ticks {
			tag, err := results.Exec()
			if err != nil {
				return err
			}
			inserted += tag.RowsAffected()
		}
		return results.Close()
	})
	return inserted, err
}

// InsertEventTicks grava um lote de ticks de eventos, com a mesma
// semântica de dedup de InsertOddsTicks.
func (s *TickStore) InsertEventTicks(ctx context.Context, ticks []model.EventTick) (int64, error) {
	if len(ticks) == 0 {
		return 0, nil
	}
	var inserted int64
	err := withRetry(ctx, func(ctx context.Context) error {
		batch := &pgx.Batch{}
		for _, t := range ticks {
			batch.Queue(`
				INSERT INTO live_event_tick
				  (fixture_id, instant, match_minute, extra_minute, type, detail, team_id, player_id, assist_id, comment)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
				ON CONFLICT (fixture_id, instant, type, team_id) DO NOTHING
			`, t.FixtureID, t.Instant, t.MatchMinute, t.ExtraMinute, t.Type, t.Detail, t.TeamID, t.PlayerID, t.AssistID, t.Comment)
		}
		results := s.pool.SendBatch(ctx, batch)
		defer results.Close()
		inserted = 0
		for range ticks {
			tag, err := results.Exec()
			if err != nil {
				return err
			}
			inserted += tag.RowsAffected()
		}
		return results.Close()
	})
	return inserted, err
}

// InsertStatTicks grava um lote de ticks de estatísticas, rejeitando
// qualquer possession_pct fora de [0, 100] antes de abrir o batch.
func (s *TickStore) InsertStatTicks(ctx context.Context, ticks []model.StatTick) (int64, error) {
	for _, t := range ticks {
		if t.PossessionPct < 0 || t.PossessionPct > 100 {
			return 0, ErrInvalidPossession
		}
	}
	if len(ticks) == 0 {
		return 0, nil
	}

	var inserted int64
	err := withRetry(ctx, func(ctx context.Context) error {
		batch := &pgx.Batch{}
		for _, t := range ticks {
			batch.Queue(`
				INSERT INTO live_stat_tick
				  (fixture_id, team_id, instant, shots_on_goal, shots_off_goal, total_shots,
				   possession_pct, corners, fouls, yellow_cards, red_cards, total_passes,
				   passes_accurate, passes_pct)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
				ON CONFLICT (fixture_id, team_id, instant) DO NOTHING
			`, t.FixtureID, t.TeamID, t.Instant, t.ShotsOnGoal, t.ShotsOffGoal, t.TotalShots,
				t.PossessionPct, t.Corners, t.Fouls, t.YellowCards, t.RedCards, t.TotalPasses,
				t.PassesAccurate, t.PassesPct)
		}
		results := s.pool.SendBatch(ctx, batch)
		defer results.Close()
		inserted = 0
		for range ticks {
			tag, err := results.Exec()
			if err != nil {
				return err
			}
			inserted += tag.RowsAffected()
		}
		return results.Close()
	})
	return inserted, err
}

// SnapshotPrematchOdds grava um lote de preços pré-jogo amostrados de uma
// vez (uma chamada por fixture), sem dedup de chave natural já que cada
// amostragem tem seu próprio SampledAt.
func (s *TickStore) SnapshotPrematchOdds(ctx context.Context, snapshot []model.PrematchOdds) (int64, error) {
	for _, o := range snapshot {
		if o.Price <= 0 {
			return 0, ErrInvalidPrice
		}
	}
	if len(snapshot) == 0 {
		return 0, nil
	}

	var inserted int64
	err := withRetry(ctx, func(ctx context.Context) error {
		batch := &pgx.Batch{}
		for _, o := range snapshot {
			batch.Queue(`
				INSERT INTO prematch_odds
				  (fixture_id, bookmaker, market, outcome, sampled_at, price, hours_before_match)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
				ON CONFLICT (fixture_id, bookmaker, market, outcome, sampled_at) DO NOTHING
			`, o.FixtureID, o.Bookmaker, o.Market, o.Outcome, o.SampledAt, o.Price, o.HoursBeforeMatch)
		}
		results := s.pool.SendBatch(ctx, batch)
		defer results.Close()
		inserted = 0
		for range snapshot {
			tag, err := results.Exec()
			if err != nil {
				return err
			}
			inserted += tag.RowsAffected()
		}
		return results.Close()
	})
	return inserted, err
}

// LatestOddsTicks retorna o tick de odds mais recente por (bookmaker,
// market, outcome) para a fixture dada, para ler o estado corrente sem
// reagregar o histórico completo.
func (s *TickStore) LatestOddsTicks(ctx context.Context, fixtureID int64, since time.Time) ([]model.OddsTick, error) {
	var out []model.OddsTick
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT DISTINCT ON (bookmaker, market, outcome)
			  fixture_id, bookmaker, market, outcome, instant, price, match_minute
			FROM live_odds_tick
			WHERE fixture_id = $1 AND instant >= $2
			ORDER BY bookmaker, market, outcome, instant DESC
		`, fixtureID, since)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var t model.OddsTick
			if err := rows.Scan(&t.FixtureID, &t.Bookmaker, &t.Market, &t.Outcome, &t.Instant, &t.Price, &t.MatchMinute); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

// EventTicksInWindow retorna os ticks de evento de uma fixture dentro de
// [windowStart, windowEnd), usado pelo frame aggregator para contar
// eventos por categoria no bucket corrente.
func (s *TickStore) EventTicksInWindow(ctx context.Context, fixtureID int64, windowStart, windowEnd time.Time) ([]model.EventTick, error) {
	var out []model.EventTick
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT fixture_id, instant, match_minute, extra_minute, type, detail, team_id, player_id, assist_id, comment
			FROM live_event_tick
			WHERE fixture_id = $1 AND instant >= $2 AND instant < $3
			ORDER BY instant
		`, fixtureID, windowStart, windowEnd)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var t model.EventTick
			if err := rows.Scan(&t.FixtureID, &t.Instant, &t.MatchMinute, &t.ExtraMinute, &t.Type, &t.Detail, &t.TeamID, &t.PlayerID, &t.AssistID, &t.Comment); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

// OddsTicksSince retorna os ticks de odds de uma fixture com instant >=
// since, em ordem crescente, sem filtro de mercado nem limite superior de
// janela. Usado pela fan-out bridge para reconstruir mensagens de catch-up
// quando o ring buffer em memória não cobre o seq pedido.
func (s *TickStore) OddsTicksSince(ctx context.Context, fixtureID int64, since time.Time) ([]model.OddsTick, error) {
	var out []model.OddsTick
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT fixture_id, bookmaker, market, outcome, instant, price, match_minute
			FROM live_odds_tick
			WHERE fixture_id = $1 AND instant >= $2
			ORDER BY instant
		`, fixtureID, since)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var t model.OddsTick
			if err := rows.Scan(&t.FixtureID, &t.Bookmaker, &t.Market, &t.Outcome, &t.Instant, &t.Price, &t.MatchMinute); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

// EventTicksSince retorna os ticks de evento de uma fixture com instant >=
// since, em ordem crescente, para o mesmo uso de catch-up de
// OddsTicksSince.
func (s *TickStore) EventTicksSince(ctx context.Context, fixtureID int64, since time.Time) ([]model.EventTick, error) {
	var out []model.EventTick
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT fixture_id, instant, match_minute, extra_minute, type, detail, team_id, player_id, assist_id, comment
			FROM live_event_tick
			WHERE fixture_id = $1 AND instant >= $2
			ORDER BY instant
		`, fixtureID, since)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var t model.EventTick
			if err := rows.Scan(&t.FixtureID, &t.Instant, &t.MatchMinute, &t.ExtraMinute, &t.Type, &t.Detail, &t.TeamID, &t.PlayerID, &t.AssistID, &t.Comment); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

// StatTicksSince retorna os ticks de estatísticas de uma fixture com
// instant >= since, em ordem crescente, para o mesmo uso de catch-up de
// OddsTicksSince.
func (s *TickStore) StatTicksSince(ctx context.Context, fixtureID int64, since time.Time) ([]model.StatTick, error) {
	var out []model.StatTick
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT fixture_id, team_id, instant, shots_on_goal, shots_off_goal, total_shots,
			       possession_pct, corners, fouls, yellow_cards, red_cards, total_passes,
			       passes_accurate, passes_pct
			FROM live_stat_tick
			WHERE fixture_id = $1 AND instant >= $2
			ORDER BY instant
		`, fixtureID, since)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var t model.StatTick
			if err := rows.Scan(&t.FixtureID, &t.TeamID, &t.Instant, &t.ShotsOnGoal, &t.ShotsOffGoal, &t.TotalShots,
				&t.PossessionPct, &t.Corners, &t.Fouls, &t.YellowCards, &t.RedCards, &t.TotalPasses,
				&t.PassesAccurate, &t.PassesPct); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

// ActiveFixturesInWindow retorna os fixture_id distintos com pelo menos um
// tick de odds ou de evento cujo instant caia em [windowStart, windowEnd),
// usado pelo frame aggregator para decidir quais fixtures materializar no
// ciclo corrente.
func (s *TickStore) ActiveFixturesInWindow(ctx context.Context, windowStart, windowEnd time.Time) ([]int64, error) {
	var out []int64
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT DISTINCT fixture_id FROM (
				SELECT fixture_id FROM live_odds_tick WHERE instant >= $1 AND instant < $2
				UNION
				SELECT fixture_id FROM live_event_tick WHERE instant >= $1 AND instant < $2
			) active
		`, windowStart, windowEnd)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	return out, err
}

// OddsTicksInWindow retorna os ticks de odds de uma fixture e mercado dentro
// de [windowStart, windowEnd), em ordem de instant, usado pelo frame
// aggregator para calcular média e delta (fechamento menos abertura) por
// outcome.
func (s *TickStore) OddsTicksInWindow(ctx context.Context, fixtureID int64, market string, windowStart, windowEnd time.Time) ([]model.OddsTick, error) {
	var out []model.OddsTick
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT fixture_id, bookmaker, market, outcome, instant, price, match_minute
			FROM live_odds_tick
			WHERE fixture_id = $1 AND market = $2 AND instant >= $3 AND instant < $4
			ORDER BY instant
		`, fixtureID, market, windowStart, windowEnd)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var t model.OddsTick
			if err := rows.Scan(&t.FixtureID, &t.Bookmaker, &t.Market, &t.Outcome, &t.Instant, &t.Price, &t.MatchMinute); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

// LateTickCounts conta ticks de odds e de evento recebidos desde
// receivedSince (coluna de auditoria received_at, independente da chave
// natural por instant) cujo instant já pertence a uma janela fechada antes
// de before. Usado para contabilizar late_ticks_dropped sem reabrir um
// frame já materializado: o tick continua gravado na tabela append-only,
// apenas não entra em nenhum recálculo de match_live_frame.
func (s *TickStore) LateTickCounts(ctx context.Context, receivedSince, before time.Time) (oddsCount, eventCount int64, err error) {
	err = withRetry(ctx, func(ctx context.Context) error {
		if err := s.pool.QueryRow(ctx, `
			SELECT count(*) FROM live_odds_tick WHERE received_at >= $1 AND instant < $2
		`, receivedSince, before).Scan(&oddsCount); err != nil {
			return err
		}
		return s.pool.QueryRow(ctx, `
			SELECT count(*) FROM live_event_tick WHERE received_at >= $1 AND instant < $2
		`, receivedSince, before).Scan(&eventCount)
	})
	return oddsCount, eventCount, err
}

// UpsertFrame grava ou substitui o frame materializado de uma fixture para
// um bucket, chaveado em (fixture_id, bucket_start), garantindo a
// idempotência exigida pela rematerialização de uma mesma janela.
func (s *TickStore) UpsertFrame(ctx context.Context, f model.LiveFrame) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO match_live_frame
			  (fixture_id, bucket_start, home_team_id, away_team_id, status, elapsed,
			   home_goals, away_goals, avg_home_odd, avg_draw_odd, avg_away_odd,
			   home_odd_delta, away_odd_delta, goals_in_bucket, cards_in_bucket,
			   subs_in_bucket, odds_ticks_in_bucket, event_ticks_in_bucket)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
			ON CONFLICT (fixture_id, bucket_start) DO UPDATE SET
			  home_team_id          = EXCLUDED.home_team_id,
			  away_team_id          = EXCLUDED.away_team_id,
			  status                = EXCLUDED.status,
			  elapsed               = EXCLUDED.elapsed,
			  home_goals            = EXCLUDED.home_goals,
			  away_goals            = EXCLUDED.away_goals,
			  avg_home_odd          = EXCLUDED.avg_home_odd,
			  avg_draw_odd          = EXCLUDED.avg_draw_odd,
			  avg_away_odd          = EXCLUDED.avg_away_odd,
			  home_odd_delta        = EXCLUDED.home_odd_delta,
			  away_odd_delta        = EXCLUDED.away_odd_delta,
			  goals_in_bucket       = EXCLUDED.goals_in_bucket,
			  cards_in_bucket       = EXCLUDED.cards_in_bucket,
			  subs_in_bucket        = EXCLUDED.subs_in_bucket,
			  odds_ticks_in_bucket  = EXCLUDED.odds_ticks_in_bucket,
			  event_ticks_in_bucket = EXCLUDED.event_ticks_in_bucket
		`, f.FixtureID, f.BucketStart, f.HomeTeamID, f.AwayTeamID, f.Status, f.Elapsed,
			f.HomeGoals, f.AwayGoals, f.AvgHomeOdd, f.AvgDrawOdd, f.AvgAwayOdd,
			f.HomeOddDelta, f.AwayOddDelta, f.GoalsInBucket, f.CardsInBucket,
			f.SubsInBucket, f.OddsTicksInBucket, f.EventTicksInBucket)
		return err
	})
}

// Frames retorna os frames materializados de uma fixture a partir de since,
// em ordem crescente de bucket.
func (s *TickStore) Frames(ctx context.Context, fixtureID int64, since time.Time) ([]model.LiveFrame, error) {
	var out []model.LiveFrame
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT fixture_id, bucket_start, home_team_id, away_team_id, status, elapsed,
			       home_goals, away_goals, avg_home_odd, avg_draw_odd, avg_away_odd,
			       home_odd_delta, away_odd_delta, goals_in_bucket, cards_in_bucket,
			       subs_in_bucket, odds_ticks_in_bucket, event_ticks_in_bucket
			FROM match_live_frame
			WHERE fixture_id = $1 AND bucket_start >= $2
			ORDER BY bucket_start
		`, fixtureID, since)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var f model.LiveFrame
			if err := rows.Scan(&f.FixtureID, &f.BucketStart, &f.HomeTeamID, &f.AwayTeamID, &f.Status, &f.Elapsed,
				&f.HomeGoals, &f.AwayGoals, &f.AvgHomeOdd, &f.AvgDrawOdd, &f.AvgAwayOdd,
				&f.HomeOddDelta, &f.AwayOddDelta, &f.GoalsInBucket, &f.CardsInBucket,
				&f.SubsInBucket, &f.OddsTicksInBucket, &f.EventTicksInBucket); err != nil {
				return err
			}
			out = append(out, f)
		}
		return rows.Err()
	})
	return out, err
}
