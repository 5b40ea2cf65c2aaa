package fanout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingNextSeqMonotonic(t *testing.T) {
	r := newRing(4)
	require.Equal(t, uint64(1), r.nextSeq())
	require.Equal(t, uint64(2), r.nextSeq())
	require.Equal(t, uint64(3), r.nextSeq())
}

func TestRingSinceWithinBufferReturnsTail(t *testing.T) {
	r := newRing(4)
	for i := 0; i < 3; i++ {
		seq := r.nextSeq()
		r.push(Message{Seq: seq})
	}

	msgs, ok := r.since(1)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	require.Equal(t, uint64(2), msgs[0].Seq)
	require.Equal(t, uint64(3), msgs[1].Seq)
}

func TestRingSinceEmptyBufferCaughtUp(t *testing.T) {
	r := newRing(4)
	msgs, ok := r.since(0)
	require.True(t, ok)
	require.Empty(t, msgs)
}

func TestRingSinceGapBeyondHorizonNotCovered(t *testing.T) {
	r := newRing(2)
	for i := 0; i < 5; i++ {
		seq := r.nextSeq()
		r.push(Message{Seq: seq})
	}
	// buffer now holds seq 4,5 only; seq 1 is long gone.
	_, ok := r.since(1)
	require.False(t, ok)
}

func TestRingSinceAtCurrentSeqReturnsEmpty(t *testing.T) {
	r := newRing(4)
	seq := r.nextSeq()
	r.push(Message{Seq: seq})

	msgs, ok := r.since(seq)
	require.True(t, ok)
	require.Empty(t, msgs)
}

func TestRingObserveAdvancesLastSeqWithoutReassigning(t *testing.T) {
	r := newRing(4)
	r.observe(Message{Seq: 7})
	require.Equal(t, uint64(7), r.current())

	msgs, ok := r.since(6)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	require.Equal(t, uint64(7), msgs[0].Seq)
}

func TestRingEvictsOldestPastSize(t *testing.T) {
	r := newRing(2)
	for i := 0; i < 3; i++ {
		seq := r.nextSeq()
		r.push(Message{Seq: seq})
	}
	require.Len(t, r.buf, 2)
	require.Equal(t, uint64(2), r.buf[0].Seq)
	require.Equal(t, uint64(3), r.buf[1].Seq)
}
