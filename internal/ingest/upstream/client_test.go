package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	gov := NewGovernor(GovernorConfig{MaxRPS: 1000, Burst: 1000})
	c := NewClient(srv.URL, "test-key", gov,
		WithRetry(3, 5*time.Millisecond, 20*time.Millisecond),
		WithRequestTimeout(time.Second),
	)
	return c, srv
}

func TestClientFixturesByDate(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2026-08-06", r.URL.Query().Get("date"))
		require.Equal(t, "test-key", r.Header.Get("x-apisports-key"))
		w.Write([]byte(`{"response":[{"fixture":{"id":1,"date":"2026-08-06T18:00:00Z","status":{"short":"NS"}},"league":{"id":10},"teams":{"home":{"id":100},"away":{"id":200}}}]}`))
	})

	items, err := c.FixturesByDate(context.Background(), "2026-08-06", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, int64(1), items[0].Fixture.ID)
}

func TestClientRetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"response":[]}`))
	})

	items, err := c.FixturesLive(context.Background())
	require.NoError(t, err)
	require.Empty(t, items)
	require.Equal(t, int32(3), attempts.Load())
}

func TestClientFailsImmediatelyOnNon429ClientError(t *testing.T) {
	var attempts atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad fixture id"}`))
	})

	_, err := c.FixturesLive(context.Background())
	require.Error(t, err)
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, http.StatusBadRequest, rejected.Status)
	require.Equal(t, int32(1), attempts.Load())
}

func TestClientHonorsRetryAfterOn429(t *testing.T) {
	var attempts atomic.Int32
	start := time.Now()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"response":[]}`))
	}))
	t.Cleanup(srv.Close)
	gov := NewGovernor(GovernorConfig{MaxRPS: 1000, Burst: 1000})
	c := NewClient(srv.URL, "test-key", gov,
		WithRetry(3, 5*time.Millisecond, 2*time.Second),
		WithRequestTimeout(time.Second),
	)

	_, err := c.FixturesLive(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestClientMalformedPayloadNotRetried(t *testing.T) {
	var attempts atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte(`not json`))
	})

	_, err := c.FixturesLive(context.Background())
	require.Error(t, err)
	var malformed *MalformedError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, int32(1), attempts.Load())
}

func TestClientExhaustsRetriesOnPersistent5xx(t *testing.T) {
	var attempts atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.FixturesLive(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUpstreamUnavailable))
	require.Equal(t, int32(4), attempts.Load())
}

func TestClientMasksKeyInLogs(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":[]}`))
	})
	masked := c.maskedKey()
	require.NotContains(t, masked, "test-key")
	require.Contains(t, masked, "-key")
}

func TestFixtureValidationRejectsMissingTeam(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":[{"fixture":{"id":1,"date":"2026-08-06T18:00:00Z","status":{"short":"NS"}},"league":{"id":10},"teams":{"home":{"id":0},"away":{"id":200}}}]}`))
	})

	_, err := c.FixturesLive(context.Background())
	require.Error(t, err)
	var malformed *MalformedError
	require.True(t, errors.As(err, &malformed))
}

func TestStatusCodeTableDrivenRetryPolicy(t *testing.T) {
	cases := []struct {
		status  int
		retried bool
	}{
		{http.StatusBadGateway, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(strconv.Itoa(tc.status), func(t *testing.T) {
			var attempts atomic.Int32
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tc.status)
			})
			_, err := c.FixturesLive(context.Background())
			require.Error(t, err)
			if tc.retried {
				require.Greater(t, attempts.Load(), int32(1))
			} else {
				require.Equal(t, int32(1), attempts.Load())
			}
		})
	}
}
