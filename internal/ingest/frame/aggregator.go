// Package frame implementa o agregador que materializa o match_live_frame a
// partir dos ticks de odds e de eventos gravados pelo loop de ingestão.
package frame

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
	"github.com/radieske/live-odds-ingestion/internal/ingest/store"
)

// DefaultInterval é a largura do bucket de materialização (1 minuto).
const DefaultInterval = 60 * time.Second

// DefaultMaxCatchup é o horizonte máximo de atraso que o agregador tenta
// recuperar num ciclo; janelas mais antigas que isso são abandonadas em
// favor da janela mais recentemente fechada.
const DefaultMaxCatchup = 5 * time.Minute

// market1X2 é o mercado cujos outcomes alimentam avg_home_odd/avg_draw_odd/
// avg_away_odd no frame; tem que bater exatamente com o rótulo que
// payload.marketName grava em FlatOdds.Market, já que OddsTicksInWindow
// filtra por igualdade de string.
const market1X2 = "1X2"

const (
	outcomeHome = "1"
	outcomeDraw = "X"
	outcomeAway = "2"
)

// Aggregator avança match_live_frame uma janela por vez. Não é seguro para
// chamada concorrente de RunCycle; Run mantém um único laço.
type Aggregator struct {
	Store      *store.TickStore
	Log        *zap.Logger
	Interval   time.Duration
	MaxCatchup time.Duration

	// OnFrameWritten é chamado após cada upsert bem-sucedido de frame.
	OnFrameWritten func(fixtureID int64, bucketStart time.Time)
	// OnLateTicksDropped é chamado quando LateTickCounts encontra ticks
	// gravados após o fechamento da janela a que pertencem.
	OnLateTicksDropped func(kind string, n int64)
	// OnLagSeconds reporta frames_lag_seconds quando o agregador precisa
	// pular janelas para alcançar a mais recentemente fechada.
	OnLagSeconds func(seconds float64)

	processedThrough time.Time
	lastCycleAt      time.Time
	lastLagSeconds   atomic.Uint64
}

// LastLagSeconds retorna o atraso observado no ciclo mais recente em que o
// agregador precisou pular janelas, 0 se nunca pulou nenhuma. Seguro para
// chamada concorrente com RunCycle; usado pelo probe de saúde do operador.
func (a *Aggregator) LastLagSeconds() float64 {
	return math.Float64frombits(a.lastLagSeconds.Load())
}

func (a *Aggregator) recordLag(seconds float64) {
	a.lastLagSeconds.Store(math.Float64bits(seconds))
}

func (a *Aggregator) interval() time.Duration {
	if a.Interval > 0 {
		return a.Interval
	}
	return DefaultInterval
}

func (a *Aggregator) maxCatchup() time.Duration {
	if a.MaxCatchup > 0 {
		return a.MaxCatchup
	}
	return DefaultMaxCatchup
}

// Run dispara um ciclo a cada Interval até ctx ser cancelado, replicando o
// laço "dorme até o próximo intervalo" do worker original, só que dirigido
// por um time.Ticker em vez de sleep calculado manualmente.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := a.RunCycle(ctx, now); err != nil {
				a.Log.Error("frame cycle failed", zap.Error(err))
			}
		}
	}
}

// RunCycle processa todas as janelas devidas no instante now: normalmente
// apenas a janela mais recentemente fechada, ou várias em sequência se o
// ciclo anterior atrasou, ou uma única janela com salto para frente se o
// atraso excede MaxCatchup.
func (a *Aggregator) RunCycle(ctx context.Context, now time.Time) error {
	interval := a.interval()
	latestClosed := now.Truncate(interval).Add(-interval)

	if a.processedThrough.IsZero() {
		a.processedThrough = latestClosed.Add(-interval)
	}

	lateSince := a.lastCycleAt
	if lateSince.IsZero() {
		lateSince = now.Add(-interval)
	}
	a.lastCycleAt = now

	windows := a.duedWindows(latestClosed, interval)
	for _, w := range windows {
		if err := a.processWindow(ctx, w, w.Add(interval)); err != nil {
			return err
		}
		a.processedThrough = w
	}

	oddsLate, eventsLate, err := a.Store.LateTickCounts(ctx, lateSince, a.processedThrough.Add(interval))
	if err != nil {
		a.Log.Warn("late tick count failed", zap.Error(err))
	} else {
		if oddsLate > 0 && a.OnLateTicksDropped != nil {
			a.OnLateTicksDropped("odds", oddsLate)
		}
		if eventsLate > 0 && a.OnLateTicksDropped != nil {
			a.OnLateTicksDropped("events", eventsLate)
		}
	}
	return nil
}

// duedWindows decide quais janelas fechadas entre processedThrough e
// latestClosed devem ser materializadas neste ciclo. Quando o atraso
// acumulado excede MaxCatchup, o agregador não tenta recuperar o histórico
// perdido: pula direto para latestClosed e reporta o atraso via
// OnLagSeconds.
func (a *Aggregator) duedWindows(latestClosed time.Time, interval time.Duration) []time.Time {
	if !latestClosed.After(a.processedThrough) {
		return nil
	}

	gap := latestClosed.Sub(a.processedThrough)
	if gap > a.maxCatchup() {
		a.recordLag(gap.Seconds())
		if a.OnLagSeconds != nil {
			a.OnLagSeconds(gap.Seconds())
		}
		a.processedThrough = latestClosed
		return []time.Time{latestClosed}
	}

	var out []time.Time
	for w := a.processedThrough.Add(interval); !w.After(latestClosed); w = w.Add(interval) {
		out = append(out, w)
	}
	return out
}

// processWindow materializa o frame de cada fixture com atividade na janela
// [windowStart, windowEnd).
func (a *Aggregator) processWindow(ctx context.Context, windowStart, windowEnd time.Time) error {
	fixtureIDs, err := a.Store.ActiveFixturesInWindow(ctx, windowStart, windowEnd)
	if err != nil {
		return err
	}
	for _, fixtureID := range fixtureIDs {
		if err := a.processFixtureWindow(ctx, fixtureID, windowStart, windowEnd); err != nil {
			a.Log.Error("frame materialization failed",
				zap.Int64("fixture_id", fixtureID), zap.Time("bucket_start", windowStart), zap.Error(err))
		}
	}
	return nil
}

// processFixtureWindow executa os quatro passos do algoritmo para uma
// fixture: agrega odds 1X2 por outcome, conta eventos por categoria, lê o
// snapshot corrente da fixture e faz o upsert do frame. O upsert é
// idempotente: rodar de novo com os mesmos ticks produz a mesma linha.
func (a *Aggregator) processFixtureWindow(ctx context.Context, fixtureID int64, windowStart, windowEnd time.Time) error {
	oddsTicks, err := a.Store.OddsTicksInWindow(ctx, fixtureID, market1X2, windowStart, windowEnd)
	if err != nil {
		return err
	}
	eventTicks, err := a.Store.EventTicksInWindow(ctx, fixtureID, windowStart, windowEnd)
	if err != nil {
		return err
	}
	fx, err := a.Store.FixtureByID(ctx, fixtureID)
	if err != nil {
		return err
	}

	home := outcomeStats(oddsTicks, outcomeHome)
	draw := outcomeStats(oddsTicks, outcomeDraw)
	away := outcomeStats(oddsTicks, outcomeAway)
	goals, cards, subs := countEventCategories(eventTicks)

	f := model.LiveFrame{
		FixtureID:          fixtureID,
		BucketStart:        windowStart,
		HomeTeamID:         fx.HomeTeamID,
		AwayTeamID:         fx.AwayTeamID,
		Status:             fx.Status,
		Elapsed:            intOrZero(fx.Elapsed),
		HomeGoals:          intOrZero(fx.HomeGoals),
		AwayGoals:          intOrZero(fx.AwayGoals),
		AvgHomeOdd:         home.avg,
		AvgDrawOdd:         draw.avg,
		AvgAwayOdd:         away.avg,
		HomeOddDelta:       home.delta,
		AwayOddDelta:       away.delta,
		GoalsInBucket:      goals,
		CardsInBucket:      cards,
		SubsInBucket:       subs,
		OddsTicksInBucket:  len(oddsTicks),
		EventTicksInBucket: len(eventTicks),
	}
	if err := a.Store.UpsertFrame(ctx, f); err != nil {
		return err
	}
	if a.OnFrameWritten != nil {
		a.OnFrameWritten(fixtureID, windowStart)
	}
	return nil
}

type outcomeAgg struct {
	avg   float64
	delta float64
}

// outcomeStats calcula a média de preço e o delta fechamento-menos-abertura
// (último tick menos primeiro, em ordem de instant) para um outcome dentro
// da janela. ticks já chega ordenado por instant.
func outcomeStats(ticks []model.OddsTick, outcome string) outcomeAgg {
	var sum, first, last float64
	var n int
	for _, t := range ticks {
		if t.Outcome != outcome {
			continue
		}
		if n == 0 {
			first = t.Price
		}
		last = t.Price
		sum += t.Price
		n++
	}
	if n == 0 {
		return outcomeAgg{}
	}
	return outcomeAgg{avg: sum / float64(n), delta: last - first}
}

// countEventCategories conta eventos por categoria dentro da janela. Tipos
// fora do conjunto conhecido só contam para EventTicksInBucket, não para
// nenhuma das três categorias nomeadas.
func countEventCategories(ticks []model.EventTick) (goals, cards, subs int) {
	for _, t := range ticks {
		switch strings.ToLower(t.Type) {
		case "goal":
			goals++
		case "card":
			cards++
		case "subst", "substitution":
			subs++
		}
	}
	return goals, cards, subs
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
