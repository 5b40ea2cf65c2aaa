package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

func TestOutcomeStatsMatchesFrameMaterializationScenario(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	ticks := []model.OddsTick{
		{Outcome: outcomeHome, Instant: t0, Price: 2.10},
		{Outcome: outcomeDraw, Instant: t0.Add(5 * time.Second), Price: 3.40},
		{Outcome: outcomeAway, Instant: t0.Add(10 * time.Second), Price: 3.20},
		{Outcome: outcomeHome, Instant: t0.Add(40 * time.Second), Price: 2.00},
	}

	home := outcomeStats(ticks, outcomeHome)
	draw := outcomeStats(ticks, outcomeDraw)
	away := outcomeStats(ticks, outcomeAway)

	require.InDelta(t, 2.05, home.avg, 1e-9)
	require.InDelta(t, -0.10, home.delta, 1e-9)
	require.InDelta(t, 3.40, draw.avg, 1e-9)
	require.InDelta(t, 0, draw.delta, 1e-9)
	require.InDelta(t, 3.20, away.avg, 1e-9)
	require.InDelta(t, 0, away.delta, 1e-9)
}

func TestOutcomeStatsEmptyOutcomeIsZeroValue(t *testing.T) {
	stats := outcomeStats(nil, outcomeHome)
	require.Zero(t, stats.avg)
	require.Zero(t, stats.delta)
}

func TestCountEventCategoriesMatchesScenario(t *testing.T) {
	goals, cards, subs := countEventCategories([]model.EventTick{
		{Type: "Goal"},
		{Type: "Card"},
		{Type: "subst"},
		{Type: "VAR"},
	})
	require.Equal(t, 1, goals)
	require.Equal(t, 1, cards)
	require.Equal(t, 1, subs)
}

func TestIntOrZero(t *testing.T) {
	require.Zero(t, intOrZero(nil))
	v := 7
	require.Equal(t, 7, intOrZero(&v))
}

func TestDuedWindowsFirstCycleProcessesOnlyLatestClosed(t *testing.T) {
	a := &Aggregator{Interval: time.Minute, MaxCatchup: 5 * time.Minute}
	latestClosed := time.Date(2026, 3, 1, 20, 5, 0, 0, time.UTC)
	a.processedThrough = latestClosed.Add(-a.interval())

	windows := a.duedWindows(latestClosed, a.interval())
	require.Equal(t, []time.Time{latestClosed}, windows)
}

func TestDuedWindowsCatchesUpWithinHorizon(t *testing.T) {
	a := &Aggregator{Interval: time.Minute, MaxCatchup: 5 * time.Minute}
	a.processedThrough = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	latestClosed := a.processedThrough.Add(3 * time.Minute)

	windows := a.duedWindows(latestClosed, a.interval())
	require.Len(t, windows, 3)
	require.Equal(t, a.processedThrough.Add(time.Minute), windows[0])
	require.Equal(t, latestClosed, windows[len(windows)-1])
}

func TestDuedWindowsSkipsForwardBeyondMaxCatchup(t *testing.T) {
	var lag float64
	a := &Aggregator{
		Interval:     time.Minute,
		MaxCatchup:   5 * time.Minute,
		OnLagSeconds: func(seconds float64) { lag = seconds },
	}
	a.processedThrough = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	latestClosed := a.processedThrough.Add(20 * time.Minute)

	windows := a.duedWindows(latestClosed, a.interval())
	require.Equal(t, []time.Time{latestClosed}, windows)
	require.Equal(t, latestClosed, a.processedThrough)
	require.InDelta(t, (20 * time.Minute).Seconds(), lag, 1e-9)
}

func TestDuedWindowsNoopWhenNothingNewlyClosed(t *testing.T) {
	a := &Aggregator{Interval: time.Minute, MaxCatchup: 5 * time.Minute}
	a.processedThrough = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	windows := a.duedWindows(a.processedThrough, a.interval())
	require.Empty(t, windows)
}
