// Package payload define os alvos de decode de variantes tipadas para as
// respostas JSON do provedor upstream. Cada tipo valida seus campos
// obrigatórios no parse; campos desconhecidos são ignorados pelo
// comportamento default do sonic.Unmarshal, e campos obrigatórios ausentes
// são rejeitados explicitamente por Validate.
package payload

import (
	"fmt"
	"time"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

// FixtureEnvelope é o alvo de decode de GET /fixtures e GET /fixtures/live.
type FixtureEnvelope struct {
	Response []FixtureItem `json:"response"`
}

type FixtureItem struct {
	Fixture struct {
		ID     int64  `json:"id"`
		Date   string `json:"date"`
		Status struct {
			Short   string `json:"short"`
			Elapsed *int   `json:"elapsed"`
		} `json:"status"`
		Venue struct {
			ID *int64 `json:"id"`
		} `json:"venue"`
	} `json:"fixture"`
	League struct {
		ID     int64  `json:"id"`
		Season int    `json:"season"`
		Round  string `json:"round"`
	} `json:"league"`
	Teams struct {
		Home struct {
			ID int64 `json:"id"`
		} `json:"home"`
		Away struct {
			ID int64 `json:"id"`
		} `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
	Score struct {
		Halftime  struct{ Home, Away *int } `json:"halftime"`
		Extratime struct{ Home, Away *int } `json:"extratime"`
		Penalty   struct{ Home, Away *int } `json:"penalty"`
	} `json:"score"`
}

// Validate garante os campos obrigatórios de um item de fixture: id,
// instante do kickoff, liga, código curto de status e as duas referências
// de time.
func (f FixtureItem) Validate() error {
	if f.Fixture.ID <= 0 {
		return fmt.Errorf("fixture: missing id")
	}
	if _, err := f.KickoffAt(); err != nil {
		return fmt.Errorf("fixture %d: %w", f.Fixture.ID, err)
	}
	if f.League.ID <= 0 {
		return fmt.Errorf("fixture %d: missing league id", f.Fixture.ID)
	}
	if f.Fixture.Status.Short == "" {
		return fmt.Errorf("fixture %d: missing status", f.Fixture.ID)
	}
	if f.Teams.Home.ID <= 0 || f.Teams.Away.ID <= 0 {
		return fmt.Errorf("fixture %d: missing team reference", f.Fixture.ID)
	}
	return nil
}

// KickoffAt parseia o instante de kickoff da fixture, obrigatório por Validate.
func (f FixtureItem) KickoffAt() (time.Time, error) {
	if f.Fixture.Date == "" {
		return time.Time{}, fmt.Errorf("missing kickoff date")
	}
	return time.Parse(time.RFC3339, f.Fixture.Date)
}

// ToFixture converte o item decodificado para o modelo persistido de
// fixture. O provedor não traz o nome do venue neste payload, só o id; o
// campo Venue fica vazio e é preenchido pelo job de dimensões caso
// necessário.
func (f FixtureItem) ToFixture() (model.Fixture, error) {
	kickoff, err := f.KickoffAt()
	if err != nil {
		return model.Fixture{}, err
	}
	return model.Fixture{
		ID:          f.Fixture.ID,
		KickoffAt:   kickoff,
		LeagueID:    f.League.ID,
		SeasonYear:  f.League.Season,
		Round:       f.League.Round,
		HomeTeamID:  f.Teams.Home.ID,
		AwayTeamID:  f.Teams.Away.ID,
		Status:      model.FixtureStatus(f.Fixture.Status.Short),
		Elapsed:     f.Fixture.Status.Elapsed,
		HomeGoals:   f.Goals.Home,
		AwayGoals:   f.Goals.Away,
		HTHomeGoals: f.Score.Halftime.Home,
		HTAwayGoals: f.Score.Halftime.Away,
		ETHomeGoals: f.Score.Extratime.Home,
		ETAwayGoals: f.Score.Extratime.Away,
		PenHome:     f.Score.Penalty.Home,
		PenAway:     f.Score.Penalty.Away,
		UpdatedAt:   time.Now(),
	}, nil
}
