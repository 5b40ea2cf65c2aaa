package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultRetentionPolicyMatchesContract(t *testing.T) {
	p := DefaultRetentionPolicy()
	day := 24 * time.Hour

	require.Equal(t, 7*day, p.OddsCompressAfter)
	require.Equal(t, 30*day, p.OddsDeleteAfter)
	require.Equal(t, 7*day, p.EventCompressAfter)
	require.Equal(t, 90*day, p.EventDeleteAfter)
	require.Equal(t, 7*day, p.StatCompressAfter)
	require.Equal(t, 60*day, p.StatDeleteAfter)
	require.Equal(t, 90*day, p.FrameDeleteAfter)
}
