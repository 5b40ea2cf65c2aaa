package live

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
	"github.com/radieske/live-odds-ingestion/internal/ingest/store"
	"github.com/radieske/live-odds-ingestion/internal/ingest/upstream"
)

// dueSetCache é o subconjunto de Cache usado pelo loop para montar o due
// set e o bookkeeping de cooldown; extraído como interface para permitir
// um fake nos testes sem um Redis real.
type dueSetCache interface {
	LastPulled(ctx context.Context, fixtureID int64, kind model.TickKind) (time.Time, bool, error)
	OnCooldown(ctx context.Context, fixtureID int64, kind model.TickKind) (bool, error)
	RecordFailure(ctx context.Context, fixtureID int64, kind model.TickKind, maxConsecFail int, cooldown time.Duration) error
	RecordSuccess(ctx context.Context, fixtureID int64, kind model.TickKind) error
	MarkPulled(ctx context.Context, fixtureID int64, kind model.TickKind, at time.Time) error
}

// Loop mantém a currency de ticks e snapshots das fixtures em status ao
// vivo. Config pode ser substituída em tempo de execução; a troca vale a
// partir do próximo Trigger.
type Loop struct {
	Client *upstream.Client
	Store  *store.TickStore
	Cache  dueSetCache
	Log    *zap.Logger

	cfg atomic.Pointer[Config]

	// OnBatchWritten é chamado após cada pull bem-sucedido que inseriu ao
	// menos uma linha, com o lote normalizado enviado ao store, inclusive
	// linhas já existentes que o ON CONFLICT ignorou (o tipo concreto varia
	// com kind: []model.OddsTick, []model.EventTick ou []model.StatTick), e
	// com n, o número de linhas efetivamente inseridas; é o ponto de onde
	// C6 publica a nota de mudança com o payload real.
	OnBatchWritten func(fixtureID int64, kind model.TickKind, batch any, n int)
	// OnFixtureClosed é chamado quando uma fixture sai do conjunto ao vivo.
	OnFixtureClosed func(fixtureID int64)
}

// NewLoop constrói um Loop com a configuração inicial dada.
func NewLoop(client *upstream.Client, st *store.TickStore, cache dueSetCache, log *zap.Logger, cfg Config) *Loop {
	l := &Loop{Client: client, Store: st, Cache: cache, Log: log}
	l.SetConfig(cfg)
	return l
}

// SetConfig substitui atomicamente a configuração corrente. Em vigor a
// partir do próximo Trigger, sem reiniciar o loop.
func (l *Loop) SetConfig(cfg Config) {
	l.cfg.Store(&cfg)
}

func (l *Loop) config() Config {
	p := l.cfg.Load()
	if p == nil {
		return DefaultConfig()
	}
	return *p
}

// Run dispara Trigger a cada trigger até ctx ser cancelado.
func (l *Loop) Run(ctx context.Context, trigger time.Duration) {
	ticker := time.NewTicker(trigger)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Trigger(ctx); err != nil {
				l.Log.Error("live trigger failed", zap.Error(err))
			}
		}
	}
}

type pullTask struct {
	fixture   model.Fixture
	kind      model.TickKind
	staleness time.Duration
}

// Trigger executa um ciclo completo: enumera F_live, computa o due set por
// fixture, monta o plano de pulls ordenado por staleness decrescente, e
// despacha num pool limitado a Concurrency.
func (l *Loop) Trigger(ctx context.Context) error {
	cfg := l.config()

	fixtures, err := l.Store.LiveFixtures(ctx, cfg.EnabledLeagues)
	if err != nil {
		return err
	}
	if len(fixtures) == 0 {
		return nil
	}

	fixtures, err = l.refreshStatuses(ctx, fixtures)
	if err != nil {
		l.Log.Warn("status refresh failed", zap.Error(err))
	}
	if len(fixtures) == 0 {
		return nil
	}

	plan, err := l.buildPullPlan(ctx, fixtures, cfg)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		return nil
	}

	return l.dispatch(ctx, plan, cfg)
}

// buildPullPlan computa o due set de cada fixture ao vivo e monta o plano
// ordenado por staleness decrescente: pares (fixture, kind) nunca puxados
// vêm primeiro, seguidos dos mais atrasados em relação ao seu intervalo.
func (l *Loop) buildPullPlan(ctx context.Context, fixtures []model.Fixture, cfg Config) ([]pullTask, error) {
	now := time.Now()
	var plan []pullTask

	for _, fx := range fixtures {
		for _, kind := range []model.TickKind{model.KindOdds, model.KindEvent, model.KindStat} {
			onCooldown, err := l.Cache.OnCooldown(ctx, fx.ID, kind)
			if err != nil {
				l.Log.Warn("cooldown lookup failed", zap.Int64("fixture_id", fx.ID), zap.Error(err))
				continue
			}
			if onCooldown {
				continue
			}

			last, ok, err := l.Cache.LastPulled(ctx, fx.ID, kind)
			if err != nil {
				l.Log.Warn("last_pulled lookup failed", zap.Int64("fixture_id", fx.ID), zap.Error(err))
				continue
			}

			if !ok {
				plan = append(plan, pullTask{fixture: fx, kind: kind, staleness: time.Duration(1<<62 - 1)})
				continue
			}

			staleness := now.Sub(last)
			if staleness >= cfg.intervalFor(kind) {
				plan = append(plan, pullTask{fixture: fx, kind: kind, staleness: staleness})
			}
		}
	}

	sort.SliceStable(plan, func(i, j int) bool { return plan[i].staleness > plan[j].staleness })
	return plan, nil
}

// dispatch submete o plano a um pool com Concurrency workers, um pull por
// tarefa. Uma falha individual não cancela as demais.
func (l *Loop) dispatch(ctx context.Context, plan []pullTask, cfg Config) error {
	pool, err := ants.NewPool(cfg.concurrency())
	if err != nil {
		return err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, task := range plan {
		task := task
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			l.pull(ctx, task.fixture, task.kind, cfg)
		}); err != nil {
			wg.Done()
			l.Log.Error("submit pull task failed", zap.Error(err))
		}
	}
	wg.Wait()
	return nil
}

// pull executa uma única chamada (fixture, kind) através de C1, grava o
// lote normalizado via C2, e atualiza last_pulled/contador de falhas.
func (l *Loop) pull(ctx context.Context, fx model.Fixture, kind model.TickKind, cfg Config) {
	var batch any
	var n int
	var err error

	switch kind {
	case model.KindOdds:
		batch, n, err = l.pullOdds(ctx, fx)
	case model.KindEvent:
		batch, n, err = l.pullEvents(ctx, fx)
	case model.KindStat:
		batch, n, err = l.pullStats(ctx, fx)
	}

	if err != nil {
		l.Log.Warn("pull failed", zap.Int64("fixture_id", fx.ID), zap.String("kind", string(kind)), zap.Error(err))
		if cerr := l.Cache.RecordFailure(ctx, fx.ID, kind, cfg.consecFailMax(), cfg.cooldown()); cerr != nil {
			l.Log.Warn("record failure failed", zap.Error(cerr))
		}
		return
	}

	if cerr := l.Cache.RecordSuccess(ctx, fx.ID, kind); cerr != nil {
		l.Log.Warn("record success failed", zap.Error(cerr))
	}
	if cerr := l.Cache.MarkPulled(ctx, fx.ID, kind, time.Now()); cerr != nil {
		l.Log.Warn("mark pulled failed", zap.Error(cerr))
	}
	if l.OnBatchWritten != nil && n > 0 {
		l.OnBatchWritten(fx.ID, kind, batch, n)
	}
}

func (l *Loop) pullOdds(ctx context.Context, fx model.Fixture) (any, int, error) {
	items, err := l.Client.OddsLive(ctx, fx.ID)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now()
	var ticks []model.OddsTick
	for _, item := range items {
		for _, flat := range item.Flatten() {
			ticks = append(ticks, model.OddsTick{
				FixtureID:   flat.FixtureID,
				Bookmaker:   flat.Bookmaker,
				Market:      flat.Market,
				Outcome:     flat.Outcome,
				Instant:     now,
				Price:       flat.Price,
				MatchMinute: fx.Elapsed,
			})
		}
	}

	inserted, err := l.Store.InsertOddsTicks(ctx, ticks)
	return ticks, int(inserted), err
}

func (l *Loop) pullEvents(ctx context.Context, fx model.Fixture) (any, int, error) {
	items, err := l.Client.FixtureEvents(ctx, fx.ID)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now()
	ticks := make([]model.EventTick, 0, len(items))
	for _, item := range items {
		ticks = append(ticks, model.EventTick{
			FixtureID:   fx.ID,
			Instant:     now,
			MatchMinute: item.Time.Elapsed,
			ExtraMinute: item.Time.Extra,
			Type:        item.Type,
			Detail:      item.Detail,
			TeamID:      item.Team.ID,
			PlayerID:    item.Player.ID,
			AssistID:    item.Assist.ID,
			Comment:     item.Comments,
		})
	}

	inserted, err := l.Store.InsertEventTicks(ctx, ticks)
	return ticks, int(inserted), err
}

func (l *Loop) pullStats(ctx context.Context, fx model.Fixture) (any, int, error) {
	items, err := l.Client.FixtureStatistics(ctx, fx.ID)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now()
	ticks := make([]model.StatTick, 0, len(items))
	for _, item := range items {
		flat := item.Flatten()
		ticks = append(ticks, model.StatTick{
			FixtureID:      fx.ID,
			TeamID:         flat.TeamID,
			Instant:        now,
			ShotsOnGoal:    flat.ShotsOnGoal,
			ShotsOffGoal:   flat.ShotsOffGoal,
			TotalShots:     flat.TotalShots,
			PossessionPct:  flat.PossessionPct,
			Corners:        flat.Corners,
			Fouls:          flat.Fouls,
			YellowCards:    flat.YellowCards,
			RedCards:       flat.RedCards,
			TotalPasses:    flat.TotalPasses,
			PassesAccurate: flat.PassesAccurate,
			PassesPct:      flat.PassesPct,
		})
	}

	inserted, err := l.Store.InsertStatTicks(ctx, ticks)
	return ticks, int(inserted), err
}

// refreshStatuses puxa o status corrente de todas as fixtures ao vivo do
// upstream numa única chamada, grava qualquer mudança de status/placar, e
// remove do retorno as fixtures que acabaram de se tornar
// terminal-inativas, emitindo fixture_closed para cada uma.
func (l *Loop) refreshStatuses(ctx context.Context, fixtures []model.Fixture) ([]model.Fixture, error) {
	liveUpstream, err := l.Client.FixturesLive(ctx)
	if err != nil {
		return fixtures, err
	}

	byID := make(map[int64]model.Fixture, len(liveUpstream))
	for _, item := range liveUpstream {
		fx, err := item.ToFixture()
		if err != nil {
			l.Log.Warn("malformed fixture in live refresh", zap.Error(err))
			continue
		}
		byID[fx.ID] = fx
	}

	out := make([]model.Fixture, 0, len(fixtures))
	for _, fx := range fixtures {
		upstreamFx, stillLive := byID[fx.ID]
		if !stillLive {
			l.closeFixture(ctx, fx)
			continue
		}

		if err := l.Store.UpsertFixture(ctx, upstreamFx); err != nil {
			l.Log.Warn("upsert fixture failed", zap.Int64("fixture_id", fx.ID), zap.Error(err))
		}

		if upstreamFx.Status.TerminalInactive() {
			l.closeFixture(ctx, upstreamFx)
			continue
		}
		out = append(out, upstreamFx)
	}
	return out, nil
}

func (l *Loop) closeFixture(ctx context.Context, fx model.Fixture) {
	if !fx.Status.TerminalInactive() {
		fx.Status = model.StatusFT
		if err := l.Store.UpsertFixture(ctx, fx); err != nil {
			l.Log.Warn("upsert fixture on close failed", zap.Int64("fixture_id", fx.ID), zap.Error(err))
		}
	}
	if l.OnFixtureClosed != nil {
		l.OnFixtureClosed(fx.ID)
	}
}
