package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

func TestInsertOddsTicksRejectsNonPositivePrice(t *testing.T) {
	s := &TickStore{}
	_, err := s.InsertOddsTicks(context.Background(), []model.OddsTick{
		{FixtureID: 1, Bookmaker: 1, Market: "1X2", Outcome: "1", Instant: time.Now(), Price: 0},
	})
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestInsertOddsTicksEmptyBatchIsNoop(t *testing.T) {
	s := &TickStore{}
	n, err := s.InsertOddsTicks(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestInsertStatTicksRejectsOutOfRangePossession(t *testing.T) {
	s := &TickStore{}
	_, err := s.InsertStatTicks(context.Background(), []model.StatTick{
		{FixtureID: 1, TeamID: 10, Instant: time.Now(), PossessionPct: 101},
	})
	require.ErrorIs(t, err, ErrInvalidPossession)

	_, err = s.InsertStatTicks(context.Background(), []model.StatTick{
		{FixtureID: 1, TeamID: 10, Instant: time.Now(), PossessionPct: -1},
	})
	require.ErrorIs(t, err, ErrInvalidPossession)
}

func TestSnapshotPrematchOddsRejectsNonPositivePrice(t *testing.T) {
	s := &TickStore{}
	_, err := s.SnapshotPrematchOdds(context.Background(), []model.PrematchOdds{
		{FixtureID: 1, Bookmaker: 1, Market: "1X2", Outcome: "1", SampledAt: time.Now(), Price: -5},
	})
	require.ErrorIs(t, err, ErrInvalidPrice)
}
