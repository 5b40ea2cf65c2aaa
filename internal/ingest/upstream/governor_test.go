package upstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGovernorRespectsMaxRPS(t *testing.T) {
	g := NewGovernor(GovernorConfig{MaxRPS: 6, MaxRPM: 0, MaxRPD: 0, Burst: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	for i := 0; i < 6; i++ {
		require.NoError(t, g.Acquire(ctx))
	}
	// os 6 créditos a uma taxa de 6/s com burst 1 devem ocupar perto de 1
	// segundo, nunca concedendo mais que max_rps em qualquer janela de 1s.
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 800*time.Millisecond)
}

func TestGovernorRollingMinuteCeiling(t *testing.T) {
	now := time.Now()
	g := NewGovernor(GovernorConfig{MaxRPS: 1000, MaxRPM: 2, MaxRPD: 0, Burst: 1000})
	g.nowFunc = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx))
	require.NoError(t, g.Acquire(ctx))

	blockedCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := g.Acquire(blockedCtx)
	require.Error(t, err)
}

func TestGovernorAcquireTimesOutIndependentOfCallerCtx(t *testing.T) {
	// Sem crédito de minuto disponível e sem deadline algum no ctx do
	// chamador, Acquire ainda tem que estancar em RateStalled dentro do
	// AcquireTimeout configurado, não ficar bloqueado para sempre.
	g := NewGovernor(GovernorConfig{MaxRPS: 1000, MaxRPM: 1, MaxRPD: 0, Burst: 1000, AcquireTimeout: 100 * time.Millisecond})

	require.NoError(t, g.Acquire(context.Background()))

	start := time.Now()
	err := g.Acquire(context.Background())
	require.ErrorIs(t, err, ErrRateStalled)
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	require.Less(t, elapsed, time.Second)
}

func TestGovernorDefaultAcquireTimeoutApplied(t *testing.T) {
	g := NewGovernor(GovernorConfig{MaxRPS: 1000, Burst: 1000})
	require.Equal(t, DefaultAcquireTimeout, g.acquireTimeout)
}

func TestGovernorUnboundedWhenZero(t *testing.T) {
	g := NewGovernor(GovernorConfig{MaxRPS: 0, MaxRPM: 0, MaxRPD: 0, Burst: 0})
	require.Equal(t, -1, g.Remaining())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 50; i++ {
		require.NoError(t, g.Acquire(ctx))
	}
}
