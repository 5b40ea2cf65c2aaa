package model

import "time"

// LiveFrame é a linha de resumo derivada por (fixture, bucket de 1 minuto).
// Materializada a partir dos ticks; idempotente na rematerialização da
// mesma janela.
type LiveFrame struct {
	FixtureID          int64
	BucketStart        time.Time
	HomeTeamID         int64
	AwayTeamID         int64
	Status             FixtureStatus
	Elapsed            int
	HomeGoals          int
	AwayGoals          int
	AvgHomeOdd         float64
	AvgDrawOdd         float64
	AvgAwayOdd         float64
	HomeOddDelta       float64
	AwayOddDelta       float64
	GoalsInBucket      int
	CardsInBucket      int
	SubsInBucket       int
	OddsTicksInBucket  int
	EventTicksInBucket int
}
