package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

type fakeCatchupStore struct {
	odds   []model.OddsTick
	events []model.EventTick
	stats  []model.StatTick
	err    error
}

func (f *fakeCatchupStore) OddsTicksSince(_ context.Context, _ int64, _ time.Time) ([]model.OddsTick, error) {
	return f.odds, f.err
}

func (f *fakeCatchupStore) EventTicksSince(_ context.Context, _ int64, _ time.Time) ([]model.EventTick, error) {
	return f.events, f.err
}

func (f *fakeCatchupStore) StatTicksSince(_ context.Context, _ int64, _ time.Time) ([]model.StatTick, error) {
	return f.stats, f.err
}

func TestHubPublishAssignsIncrementingSeqPerTopic(t *testing.T) {
	h := NewHub(nil)

	m1 := h.Publish(1, TypeOddsUpdate, "a")
	m2 := h.Publish(1, TypeOddsUpdate, "b")
	m3 := h.Publish(1, TypeEventUpdate, "c")

	require.Equal(t, uint64(1), m1.Seq)
	require.Equal(t, uint64(2), m2.Seq)
	require.Equal(t, uint64(1), m3.Seq, "different type on same fixture starts its own seq series")
}

func TestHubCatchupServesFromRingWhenCovered(t *testing.T) {
	h := NewHub(nil)
	h.Publish(42, TypeOddsUpdate, "a")
	h.Publish(42, TypeOddsUpdate, "b")
	h.Publish(42, TypeOddsUpdate, "c")

	msgs, err := h.Catchup(context.Background(), 42, TypeOddsUpdate, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, uint64(2), msgs[0].Seq)
	require.Equal(t, uint64(3), msgs[1].Seq)
}

func TestHubCatchupFallsBackToStoreBeyondRing(t *testing.T) {
	h := NewHub(nil)
	h.RingSize = 1
	h.Store = &fakeCatchupStore{odds: []model.OddsTick{{FixtureID: 42}, {FixtureID: 42}}}

	for i := 0; i < 5; i++ {
		h.Publish(42, TypeOddsUpdate, i)
	}

	msgs, err := h.Catchup(context.Background(), 42, TypeOddsUpdate, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, uint64(2), msgs[0].Seq)
	require.Equal(t, uint64(3), msgs[1].Seq)
}

func TestHubCatchupUnavailableWithoutStoreBeyondRing(t *testing.T) {
	h := NewHub(nil)
	h.RingSize = 1
	for i := 0; i < 5; i++ {
		h.Publish(42, TypeOddsUpdate, i)
	}

	_, err := h.Catchup(context.Background(), 42, TypeOddsUpdate, 1)
	require.ErrorIs(t, err, ErrCatchupUnavailable)
}

func TestHubCatchupFixtureClosedAlwaysUnavailableBeyondRing(t *testing.T) {
	h := NewHub(nil)
	h.RingSize = 1
	h.Store = &fakeCatchupStore{}
	for i := 0; i < 5; i++ {
		h.Publish(42, TypeFixtureClosed, i)
	}

	_, err := h.Catchup(context.Background(), 42, TypeFixtureClosed, 1)
	require.ErrorIs(t, err, ErrCatchupUnavailable)
}

func TestHubCatchupUnknownTypeBeyondRingUnavailable(t *testing.T) {
	h := NewHub(nil)
	h.RingSize = 1
	h.Store = &fakeCatchupStore{}
	for i := 0; i < 5; i++ {
		h.Publish(42, MessageType("bogus"), i)
	}

	_, err := h.Catchup(context.Background(), 42, MessageType("bogus"), 1)
	require.ErrorIs(t, err, ErrCatchupUnavailable)
}

func TestHubDeliverLocalDoesNotReassignSeq(t *testing.T) {
	h := NewHub(nil)
	h.deliverLocal(Message{FixtureID: 9, Type: TypeStatsUpdate, Seq: 5})

	msgs, ok := h.ringFor(topicKey{fixtureID: 9, msgType: TypeStatsUpdate}).since(4)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	require.Equal(t, uint64(5), msgs[0].Seq)
}

func TestSubscriberEnqueueDropsSilentlyWhenBufferFullWithinGrace(t *testing.T) {
	sub := newSubscriber("s1", nil, 1)
	require.True(t, sub.enqueue([]byte("first"), time.Minute))
	require.False(t, sub.enqueue([]byte("second"), time.Minute))

	select {
	case <-sub.disconnect:
		t.Fatal("should not disconnect within grace period")
	default:
	}
}

func TestSubscriberEnqueueDisconnectsAfterGraceElapsed(t *testing.T) {
	sub := newSubscriber("s1", nil, 1)
	require.True(t, sub.enqueue([]byte("first"), time.Millisecond))
	require.False(t, sub.enqueue([]byte("second"), time.Millisecond), "buffer is now full, starts the grace clock")
	time.Sleep(5 * time.Millisecond)
	require.False(t, sub.enqueue([]byte("third"), time.Millisecond), "grace elapsed, should disconnect")

	select {
	case err := <-sub.disconnect:
		require.ErrorIs(t, err, ErrSlowConsumer)
	default:
		t.Fatal("expected disconnect to be signaled")
	}
}
