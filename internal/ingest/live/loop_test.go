package live

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

type fakeCache struct {
	lastPulled map[string]time.Time
	cooldown   map[string]bool
	fails      map[string]int
	marked     map[string]time.Time
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		lastPulled: map[string]time.Time{},
		cooldown:   map[string]bool{},
		fails:      map[string]int{},
		marked:     map[string]time.Time{},
	}
}

func fakeKey(fixtureID int64, kind model.TickKind) string {
	return string(kind) + ":" + strconv.FormatInt(fixtureID, 10)
}

func (f *fakeCache) LastPulled(_ context.Context, fixtureID int64, kind model.TickKind) (time.Time, bool, error) {
	t, ok := f.lastPulled[fakeKey(fixtureID, kind)]
	return t, ok, nil
}

func (f *fakeCache) OnCooldown(_ context.Context, fixtureID int64, kind model.TickKind) (bool, error) {
	return f.cooldown[fakeKey(fixtureID, kind)], nil
}

func (f *fakeCache) RecordFailure(_ context.Context, fixtureID int64, kind model.TickKind, maxConsecFail int, _ time.Duration) error {
	key := fakeKey(fixtureID, kind)
	f.fails[key]++
	if f.fails[key] >= maxConsecFail {
		f.cooldown[key] = true
		f.fails[key] = 0
	}
	return nil
}

func (f *fakeCache) RecordSuccess(_ context.Context, fixtureID int64, kind model.TickKind) error {
	delete(f.fails, fakeKey(fixtureID, kind))
	return nil
}

func (f *fakeCache) MarkPulled(_ context.Context, fixtureID int64, kind model.TickKind, at time.Time) error {
	f.marked[fakeKey(fixtureID, kind)] = at
	return nil
}

func TestBuildPullPlanIncludesNeverPulledFirst(t *testing.T) {
	cache := newFakeCache()
	now := time.Now()
	cache.lastPulled[fakeKey(1000, model.KindOdds)] = now.Add(-3 * time.Second)

	loop := &Loop{Cache: cache}
	cfg := DefaultConfig()

	plan, err := loop.buildPullPlan(context.Background(), []model.Fixture{{ID: 1000}}, cfg)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	require.Equal(t, model.KindEvent, plan[0].kind)
	require.Equal(t, model.KindStat, plan[1].kind)
}

func TestBuildPullPlanOrdersByStalenessDescending(t *testing.T) {
	cache := newFakeCache()
	now := time.Now()
	cache.lastPulled[fakeKey(1000, model.KindOdds)] = now.Add(-20 * time.Second)
	cache.lastPulled[fakeKey(1000, model.KindEvent)] = now.Add(-9 * time.Second)
	cache.lastPulled[fakeKey(1000, model.KindStat)] = now.Add(-30 * time.Second)

	loop := &Loop{Cache: cache}
	cfg := DefaultConfig()

	plan, err := loop.buildPullPlan(context.Background(), []model.Fixture{{ID: 1000}}, cfg)
	require.NoError(t, err)
	require.Len(t, plan, 3)
	require.Equal(t, model.KindStat, plan[0].kind)
	require.Equal(t, model.KindOdds, plan[1].kind)
	require.Equal(t, model.KindEvent, plan[2].kind)
}

func TestBuildPullPlanExcludesFreshAndCooledDownPairs(t *testing.T) {
	cache := newFakeCache()
	now := time.Now()
	cache.lastPulled[fakeKey(1000, model.KindOdds)] = now.Add(-1 * time.Second)
	cache.cooldown[fakeKey(1000, model.KindEvent)] = true
	cache.lastPulled[fakeKey(1000, model.KindStat)] = now.Add(-20 * time.Second)

	loop := &Loop{Cache: cache}
	cfg := DefaultConfig()

	plan, err := loop.buildPullPlan(context.Background(), []model.Fixture{{ID: 1000}}, cfg)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	require.Equal(t, model.KindStat, plan[0].kind)
}

func TestRecordFailureEntersCooldownAfterConsecFailMax(t *testing.T) {
	cache := newFakeCache()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, cache.RecordFailure(ctx, 1000, model.KindOdds, 5, time.Minute))
		onCooldown, err := cache.OnCooldown(ctx, 1000, model.KindOdds)
		require.NoError(t, err)
		require.False(t, onCooldown)
	}
	require.NoError(t, cache.RecordFailure(ctx, 1000, model.KindOdds, 5, time.Minute))
	onCooldown, err := cache.OnCooldown(ctx, 1000, model.KindOdds)
	require.NoError(t, err)
	require.True(t, onCooldown)
}

func TestConfigIntervalForDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 10*time.Second, cfg.intervalFor(model.KindOdds))
	require.Equal(t, 5*time.Second, cfg.intervalFor(model.KindEvent))
	require.Equal(t, 15*time.Second, cfg.intervalFor(model.KindStat))
}
