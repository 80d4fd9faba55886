package raft

import (
	"testing"

	"github.com/stretchr/testify/require"

	"raftkv/internal/raftpb"
)

func rec(ts int64, kv ...string) raftpb.LogRecord {
	r := raftpb.LogRecord{Ts: ts}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Operations = append(r.Operations, raftpb.Operation{Key: []byte(kv[i]), Value: []byte(kv[i+1])})
	}
	return r
}

func TestIntegrateRecordAppendsContiguous(t *testing.T) {
	s := newState(0, 3)
	s.nextTs = 0

	s.integrateRecord(ptr(rec(0, "a", "1")))
	s.integrateRecord(ptr(rec(1, "b", "2")))

	require.Equal(t, int64(2), s.nextTs)
	require.Len(t, s.bufferedLog, 2)
	require.Equal(t, int64(0), s.bufferedLog[0].Ts)
	require.Equal(t, int64(1), s.bufferedLog[1].Ts)
}

func TestIntegrateRecordDropsGap(t *testing.T) {
	s := newState(0, 3)
	s.nextTs = 0

	s.integrateRecord(ptr(rec(2, "a", "1"))) // ts > nextTs: would create a gap

	require.Equal(t, int64(0), s.nextTs)
	require.Empty(t, s.bufferedLog)
}

func TestIntegrateRecordSkipsAlreadyApplied(t *testing.T) {
	s := newState(0, 3)
	s.nextTs = 5
	s.appliedTs = 4

	s.integrateRecord(ptr(rec(3, "a", "1")))

	require.Equal(t, int64(5), s.nextTs)
	require.Empty(t, s.bufferedLog)
}

func TestIntegrateRecordIdempotentOnIdenticalOverlap(t *testing.T) {
	s := newState(0, 3)
	s.nextTs = 0
	s.integrateRecord(ptr(rec(0, "a", "1")))
	s.integrateRecord(ptr(rec(1, "b", "2")))
	s.flushedIndex = 2
	s.durableTs = 1

	// Re-delivery of an identical record at ts=0 must be a no-op (§8
	// idempotence property), not a truncation.
	s.integrateRecord(ptr(rec(0, "a", "1")))

	require.Equal(t, int64(2), s.nextTs)
	require.Len(t, s.bufferedLog, 2)
	require.Equal(t, 2, s.flushedIndex)
	require.Equal(t, int64(1), s.durableTs)
}

func TestIntegrateRecordTruncatesOnMismatch(t *testing.T) {
	s := newState(0, 3)
	s.nextTs = 0
	s.integrateRecord(ptr(rec(0, "a", "1")))
	s.integrateRecord(ptr(rec(1, "b", "2")))
	s.integrateRecord(ptr(rec(2, "c", "3")))
	s.flushedIndex = 3
	s.durableTs = 2

	// A differing record at ts=1 must truncate the buffer there and
	// replace it, per §4.4 step 4.
	s.integrateRecord(ptr(rec(1, "b", "other")))

	require.Equal(t, int64(2), s.nextTs)
	require.Len(t, s.bufferedLog, 2)
	require.Equal(t, "other", string(s.bufferedLog[1].Operations[0].Value))
	require.Equal(t, int64(0), s.durableTs)
	require.Equal(t, 1, s.flushedIndex)
}

func TestGCDropsRecordsBelowBacklog(t *testing.T) {
	s := newState(0, 3)
	s.nextTs = 0
	for i := int64(0); i < 5; i++ {
		s.integrateRecord(ptr(rec(i, "k", "v")))
	}
	s.flushedIndex = 5
	s.appliedTs = 4

	s.gc(1) // keep only ts within 1 of appliedTs=4, i.e. ts >= 3

	require.Len(t, s.bufferedLog, 2)
	require.Equal(t, int64(3), s.bufferedLog[0].Ts)
	require.Equal(t, 2, s.flushedIndex)
}

func TestAdvanceToAppliesInOrder(t *testing.T) {
	s := newState(0, 3)
	s.nextTs = 0
	for i := int64(0); i < 3; i++ {
		s.integrateRecord(ptr(rec(i, "k", "v")))
	}

	s.advanceTo(1)

	require.Equal(t, int64(1), s.appliedTs)
	require.Equal(t, []byte("v"), s.fsm["k"])
}

func TestAdvanceAppliedTimestampTakesMedian(t *testing.T) {
	s := newState(0, 3)
	s.nextTs = 0
	for i := int64(0); i < 5; i++ {
		s.integrateRecord(ptr(rec(i, "k", "v")))
	}
	s.durableTs = 4
	s.durableTimestamps = []int64{-1, 2, 3} // self slot (0) gets overwritten

	s.advanceAppliedTimestamp()

	// sorted [2,3,4] -> median 3
	require.Equal(t, int64(3), s.appliedTs)
}

func TestPickSubscribersFiresOnlyCoveredTs(t *testing.T) {
	s := newState(0, 3)
	ch1 := make(chan bool, 1)
	ch2 := make(chan bool, 1)
	s.commitSubscribers = []pendingCommit{{ts: 1, ch: ch1}, {ts: 2, ch: ch2}}
	s.appliedTs = 1

	fired := s.pickSubscribers()

	require.Len(t, fired, 1)
	require.Equal(t, int64(1), fired[0].ts)
	require.Len(t, s.commitSubscribers, 1)
	require.Equal(t, int64(2), s.commitSubscribers[0].ts)
}

func TestDropCommitSubscribersClearsAll(t *testing.T) {
	s := newState(0, 3)
	s.commitSubscribers = []pendingCommit{{ts: 1}, {ts: 2}}

	dropped := s.dropCommitSubscribers()

	require.Len(t, dropped, 2)
	require.Empty(t, s.commitSubscribers)
}

func TestMatchMessageOutOfRangeIsSafe(t *testing.T) {
	s := newState(0, 3)
	s.nextTs = 0
	s.integrateRecord(ptr(rec(0, "a", "1")))

	require.True(t, s.matchMessage(ptr(rec(5, "z", "9"))))
}

func ptr(r raftpb.LogRecord) *raftpb.LogRecord { return &r }
