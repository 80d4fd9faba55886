package votestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"raftkv/internal/raftpb"
)

func TestStoreThenRecover(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vote")
	s := New(path)

	_, found, err := s.Recover()
	require.NoError(t, err)
	require.False(t, found)

	want := raftpb.Vote{Term: 3, Ts: 10, VoteFor: 1}
	require.NoError(t, s.Store(want))

	got, found, err := s.Recover()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want, got)

	// tmp file must not survive a successful store.
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestStoreOverwritesPreviousVote(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vote")
	s := New(path)

	require.NoError(t, s.Store(raftpb.Vote{Term: 1, Ts: 0, VoteFor: 0}))
	require.NoError(t, s.Store(raftpb.Vote{Term: 2, Ts: 5, VoteFor: 1}))

	got, found, err := s.Recover()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(2), got.Term)
}
