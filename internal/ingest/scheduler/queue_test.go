package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeExpiredWithZeroTTLNeverExpires(t *testing.T) {
	env := Envelope{EnqueuedAt: time.Now().Add(-time.Hour)}
	require.False(t, env.Expired(time.Now()))
}

func TestEnvelopeExpiredPastTTL(t *testing.T) {
	now := time.Now()
	env := Envelope{EnqueuedAt: now.Add(-10 * time.Second), TTL: 5 * time.Second}
	require.True(t, env.Expired(now))
}

func TestEnvelopeNotExpiredWithinTTL(t *testing.T) {
	now := time.Now()
	env := Envelope{EnqueuedAt: now.Add(-2 * time.Second), TTL: 5 * time.Second}
	require.False(t, env.Expired(now))
}
