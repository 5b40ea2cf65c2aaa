package store

import (
	"context"
	"time"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

// UpsertFixture grava o estado corrente de uma fixture (status, elapsed,
// placar), mutado in-place conforme o upstream avança a partida. Não é um
// tick: não é append-only, é a única linha viva por fixture que o
// Frame Aggregator lê no passo 3 e que o Live Ingestion Loop usa para
// decidir o due-set.
func (s *TickStore) UpsertFixture(ctx context.Context, f model.Fixture) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO fixture
			  (id, kickoff_at, league_id, season_year, round, venue, home_team_id, away_team_id,
			   status, elapsed, home_goals, away_goals, ht_home_goals, ht_away_goals,
			   et_home_goals, et_away_goals, pen_home, pen_away, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
			ON CONFLICT (id) DO UPDATE SET
			  status         = EXCLUDED.status,
			  elapsed        = EXCLUDED.elapsed,
			  home_goals     = EXCLUDED.home_goals,
			  away_goals     = EXCLUDED.away_goals,
			  ht_home_goals  = EXCLUDED.ht_home_goals,
			  ht_away_goals  = EXCLUDED.ht_away_goals,
			  et_home_goals  = EXCLUDED.et_home_goals,
			  et_away_goals  = EXCLUDED.et_away_goals,
			  pen_home       = EXCLUDED.pen_home,
			  pen_away       = EXCLUDED.pen_away,
			  updated_at     = EXCLUDED.updated_at
		`, f.ID, f.KickoffAt, f.LeagueID, f.SeasonYear, f.Round, f.Venue, f.HomeTeamID, f.AwayTeamID,
			f.Status, f.Elapsed, f.HomeGoals, f.AwayGoals, f.HTHomeGoals, f.HTAwayGoals,
			f.ETHomeGoals, f.ETAwayGoals, f.PenHome, f.PenAway, f.UpdatedAt)
		return err
	})
}

// FixtureByID lê a linha corrente de uma fixture, usada pelo Frame
// Aggregator para preencher status/elapsed/placar no fechamento de janela.
func (s *TickStore) FixtureByID(ctx context.Context, id int64) (model.Fixture, error) {
	var f model.Fixture
	err := withRetry(ctx, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, `
			SELECT id, kickoff_at, league_id, season_year, round, venue, home_team_id, away_team_id,
			       status, elapsed, home_goals, away_goals, ht_home_goals, ht_away_goals,
			       et_home_goals, et_away_goals, pen_home, pen_away, updated_at
			FROM fixture WHERE id = $1
		`, id)
		return row.Scan(&f.ID, &f.KickoffAt, &f.LeagueID, &f.SeasonYear, &f.Round, &f.Venue,
			&f.HomeTeamID, &f.AwayTeamID, &f.Status, &f.Elapsed, &f.HomeGoals, &f.AwayGoals,
			&f.HTHomeGoals, &f.HTAwayGoals, &f.ETHomeGoals, &f.ETAwayGoals, &f.PenHome, &f.PenAway, &f.UpdatedAt)
	})
	return f, err
}

// LiveFixtures lista as fixtures cujo status corrente pertence ao
// subconjunto em andamento, usado pelo Live Ingestion Loop para montar o
// due-set de cada ciclo.
func (s *TickStore) LiveFixtures(ctx context.Context, leagueIDs []int64) ([]model.Fixture, error) {
	var out []model.Fixture
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT id, kickoff_at, league_id, season_year, round, venue, home_team_id, away_team_id,
			       status, elapsed, home_goals, away_goals, ht_home_goals, ht_away_goals,
			       et_home_goals, et_away_goals, pen_home, pen_away, updated_at
			FROM fixture
			WHERE status IN ('1H','HT','2H','ET','BT','P')
			  AND ($1::bigint[] IS NULL OR league_id = ANY($1))
		`, nullableLeagueFilter(leagueIDs))
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var f model.Fixture
			if err := rows.Scan(&f.ID, &f.KickoffAt, &f.LeagueID, &f.SeasonYear, &f.Round, &f.Venue,
				&f.HomeTeamID, &f.AwayTeamID, &f.Status, &f.Elapsed, &f.HomeGoals, &f.AwayGoals,
				&f.HTHomeGoals, &f.HTAwayGoals, &f.ETHomeGoals, &f.ETAwayGoals, &f.PenHome, &f.PenAway, &f.UpdatedAt); err != nil {
				return err
			}
			out = append(out, f)
		}
		return rows.Err()
	})
	return out, err
}

// FinishedSince lista fixtures cujo status pertence ao subconjunto
// encerrado (FT/AET/PEN/AWD/WO) e cuja última atualização caiu em
// [from, until), usada pelo finalizer para varrer, uma janela por ciclo,
// as fixtures que terminaram aproximadamente seu atraso alvo atrás.
func (s *TickStore) FinishedSince(ctx context.Context, from, until time.Time) ([]model.Fixture, error) {
	var out []model.Fixture
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT id, kickoff_at, league_id, season_year, round, venue, home_team_id, away_team_id,
			       status, elapsed, home_goals, away_goals, ht_home_goals, ht_away_goals,
			       et_home_goals, et_away_goals, pen_home, pen_away, updated_at
			FROM fixture
			WHERE status IN ('FT','AET','PEN','AWD','WO')
			  AND updated_at >= $1 AND updated_at < $2
		`, from, until)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var f model.Fixture
			if err := rows.Scan(&f.ID, &f.KickoffAt, &f.LeagueID, &f.SeasonYear, &f.Round, &f.Venue,
				&f.HomeTeamID, &f.AwayTeamID, &f.Status, &f.Elapsed, &f.HomeGoals, &f.AwayGoals,
				&f.HTHomeGoals, &f.HTAwayGoals, &f.ETHomeGoals, &f.ETAwayGoals, &f.PenHome, &f.PenAway, &f.UpdatedAt); err != nil {
				return err
			}
			out = append(out, f)
		}
		return rows.Err()
	})
	return out, err
}

func nullableLeagueFilter(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	return ids
}
