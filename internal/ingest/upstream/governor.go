package upstream

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// GovernorConfig configura o rate governor de três janelas descrito pelo
// contrato do client upstream: um teto por segundo corrente, por minuto
// corrente e por dia corrente, além de um burst na janela de segundo.
type GovernorConfig struct {
	MaxRPS int
	MaxRPM int
	MaxRPD int
	Burst  int
	// AcquireTimeout limita quanto tempo Acquire espera por crédito antes de
	// retornar ErrRateStalled, independente do deadline que o ctx do
	// chamador já carrega. Default DefaultAcquireTimeout se <= 0.
	AcquireTimeout time.Duration
}

// DefaultAcquireTimeout é o AcquireTimeout aplicado quando
// GovernorConfig.AcquireTimeout não é informado.
const DefaultAcquireTimeout = 5 * time.Second

// Governor garante ≤MaxRPS créditos por segundo corrente, ≤MaxRPM por 60s
// correntes, ≤MaxRPD por 24h correntes. O teto por segundo é delegado ao
// golang.org/x/time/rate; os tetos de minuto e dia são contadores de
// timestamps de créditos emitidos, já que x/time/rate só modela uma janela.
type Governor struct {
	perSecond *rate.Limiter

	mu             sync.Mutex
	minute         []time.Time
	day            []time.Time
	maxRPM         int
	maxRPD         int
	acquireTimeout time.Duration
	nowFunc        func() time.Time
}

// NewGovernor constrói um Governor a partir de cfg. Tetos zerados são
// tratados como ilimitados para aquela janela.
func NewGovernor(cfg GovernorConfig) *Governor {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.MaxRPS
	}
	limit := rate.Inf
	if cfg.MaxRPS > 0 {
		limit = rate.Limit(cfg.MaxRPS)
	}
	acquireTimeout := cfg.AcquireTimeout
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	return &Governor{
		perSecond:      rate.NewLimiter(limit, burst),
		maxRPM:         cfg.MaxRPM,
		maxRPD:         cfg.MaxRPD,
		acquireTimeout: acquireTimeout,
		nowFunc:        time.Now,
	}
}

// Acquire bloqueia até haver crédito nas três janelas ou até o menor entre o
// deadline de ctx e o AcquireTimeout do próprio governor expirar, retornando
// ErrRateStalled nesse caso. O timeout dedicado garante que RateStalled surge
// dentro de um prazo contratual mesmo quando ctx do chamador não carrega
// deadline algum (ou carrega um deadline bem mais longo que o do contrato de
// rate limiting).
func (g *Governor) Acquire(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.acquireTimeout)
	defer cancel()

	if err := g.perSecond.Wait(ctx); err != nil {
		return ErrRateStalled
	}
	if err := g.acquireRolling(ctx); err != nil {
		return err
	}
	return nil
}

func (g *Governor) acquireRolling(ctx context.Context) error {
	for {
		now := g.nowFunc()
		g.mu.Lock()
		g.minute = pruneBefore(g.minute, now.Add(-time.Minute))
		g.day = pruneBefore(g.day, now.Add(-24*time.Hour))

		minuteOK := g.maxRPM <= 0 || len(g.minute) < g.maxRPM
		dayOK := g.maxRPD <= 0 || len(g.day) < g.maxRPD
		if minuteOK && dayOK {
			g.minute = append(g.minute, now)
			g.day = append(g.day, now)
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		wait := 50 * time.Millisecond
		select {
		case <-ctx.Done():
			return ErrRateStalled
		case <-time.After(wait):
		}
	}
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

// Remaining informa quantos créditos restam na janela de dia corrente, para
// uso no probe de saúde.
func (g *Governor) Remaining() int {
	if g.maxRPD <= 0 {
		return -1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.nowFunc()
	g.day = pruneBefore(g.day, now.Add(-24*time.Hour))
	remaining := g.maxRPD - len(g.day)
	if remaining < 0 {
		return 0
	}
	return remaining
}
