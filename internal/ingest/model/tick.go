package model

import "time"

// TickKind identifica qual capability do upstream produziu um tick.
type TickKind string

const (
	KindOdds  TickKind = "odds"
	KindEvent TickKind = "events"
	KindStat  TickKind = "stats"
)

// OddsTick é uma observação do preço de um outcome, em um bookmaker, em um
// instante. Append-only; a chave natural é
// (FixtureID, Bookmaker, Market, Outcome, Instant). Os json tags importam:
// este tipo é o payload serializado das notas odds_update pela fan-out bridge.
type OddsTick struct {
	FixtureID   int64     `json:"fixture_id"`
	Bookmaker   int       `json:"bookmaker"`
	Market      string    `json:"market"`
	Outcome     string    `json:"outcome"`
	Instant     time.Time `json:"instant"`
	Price       float64   `json:"price"`
	MatchMinute *int      `json:"match_minute,omitempty"`
}

// EventTick é uma observação de um evento dentro da partida.
type EventTick struct {
	FixtureID   int64     `json:"fixture_id"`
	Instant     time.Time `json:"instant"`
	MatchMinute int       `json:"match_minute"`
	ExtraMinute *int      `json:"extra_minute,omitempty"`
	Type        string    `json:"type"`
	Detail      string    `json:"detail"`
	TeamID      *int64    `json:"team_id,omitempty"`
	PlayerID    *int64    `json:"player_id,omitempty"`
	AssistID    *int64    `json:"assist_id,omitempty"`
	Comment     string    `json:"comment,omitempty"`
}

// StatTick é um snapshot das estatísticas acumuladas de um time na partida.
type StatTick struct {
	FixtureID      int64     `json:"fixture_id"`
	TeamID         int64     `json:"team_id"`
	Instant        time.Time `json:"instant"`
	ShotsOnGoal    int       `json:"shots_on_goal"`
	ShotsOffGoal   int       `json:"shots_off_goal"`
	TotalShots     int       `json:"total_shots"`
	PossessionPct  float64   `json:"possession_pct"`
	Corners        int       `json:"corners"`
	Fouls          int       `json:"fouls"`
	YellowCards    int       `json:"yellow_cards"`
	RedCards       int       `json:"red_cards"`
	TotalPasses    int       `json:"total_passes"`
	PassesAccurate int       `json:"passes_accurate"`
	PassesPct      float64   `json:"passes_pct"`
}

// PrematchOdds é o preço de um bookmaker para um outcome, amostrado antes do kickoff.
type PrematchOdds struct {
	FixtureID        int64
	Bookmaker        int
	Market           string
	Outcome          string
	SampledAt        time.Time
	Price            float64
	HoursBeforeMatch float64
}
