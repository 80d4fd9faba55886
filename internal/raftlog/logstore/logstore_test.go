package logstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"raftkv/internal/raftpb"
)

func TestDiscoverSnapshotsSortedAscending(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	defer s.Close()

	for _, n := range []int64{40, 10, 20} {
		f, err := s.CreateSnapshot(n)
		require.NoError(t, err)
		f.Sync()
		require.NoError(t, f.Close())
	}

	nums, err := s.DiscoverSnapshots()
	require.NoError(t, err)
	require.Equal(t, []int64{10, 20, 40}, nums)
}

func TestLogStoreAppendAndBounds(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	defer s.Close()

	_, _, ok, err := s.Bounds()
	require.NoError(t, err)
	require.False(t, ok)

	for ts := int64(0); ts < 5; ts++ {
		rec := &raftpb.LogRecord{Ts: ts, Operations: []raftpb.Operation{{Key: []byte("k"), Value: []byte("v")}}}
		require.NoError(t, s.AppendRecord(rec))
	}
	require.NoError(t, s.Sync())

	first, last, ok, err := s.Bounds()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(0), first)
	require.Equal(t, int64(4), last)

	recs, err := s.RecordsFrom(2)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, int64(2), recs[0].Ts)
	require.Equal(t, int64(4), recs[len(recs)-1].Ts)
}

func TestLogStoreTruncateFront(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	defer s.Close()

	for ts := int64(0); ts < 5; ts++ {
		require.NoError(t, s.AppendRecord(&raftpb.LogRecord{Ts: ts}))
	}
	require.NoError(t, s.Sync())

	require.NoError(t, s.TruncateFront(2))

	first, last, ok, err := s.Bounds()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3), first)
	require.Equal(t, int64(4), last)

	recs, err := s.RecordsFrom(0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, int64(3), recs[0].Ts)
}

func TestLogStoreTruncateFrontClampsToLast(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	defer s.Close()

	for ts := int64(0); ts < 3; ts++ {
		require.NoError(t, s.AppendRecord(&raftpb.LogRecord{Ts: ts}))
	}
	require.NoError(t, s.Sync())

	require.NoError(t, s.TruncateFront(100))

	first, last, ok, err := s.Bounds()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), first)
	require.Equal(t, int64(2), last)
}
