package raft

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"raftkv/internal/raftlog/logstore"
	"raftkv/internal/raftlog/votestore"
	"raftkv/internal/raftpb"
)

// fakePeerClient dispatches directly into another in-process Replica's
// handlers, skipping serialization entirely. Grounded on the teacher's
// coordinator/fake_ports_test.go fakes: a test double for the transport
// port, not the protocol under test.
type fakePeerClient struct {
	target *Replica
	from   uint64
}

func (f *fakePeerClient) Vote(_ context.Context, req *raftpb.VoteRequest) (*raftpb.Response, error) {
	return f.target.HandleVote(req)
}

func (f *fakePeerClient) AppendEntries(_ context.Context, req *raftpb.AppendEntriesRequest) (*raftpb.Response, error) {
	return f.target.HandleAppendEntries(f.from, req)
}

func (f *fakePeerClient) RecoverySnapshot(_ context.Context, req *raftpb.RecoverySnapshotRequest) (*raftpb.Response, error) {
	return f.target.HandleRecoverySnapshot(req)
}

// fakeTransport resolves peer ids against a shared registry populated once
// every cluster member has been constructed.
type fakeTransport struct {
	id       uint64
	registry map[uint64]*Replica
	ids      []uint64
}

func (t *fakeTransport) Peer(id uint64) PeerClient {
	target, ok := t.registry[id]
	if !ok {
		return nil
	}
	return &fakePeerClient{target: target, from: t.id}
}

func (t *fakeTransport) Peers() []uint64 { return t.ids }

func newTestCluster(t *testing.T, n int) []*Replica {
	t.Helper()
	registry := make(map[uint64]*Replica, n)
	replicas := make([]*Replica, n)
	stores := make([]*logstore.Store, n)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	for i := 0; i < n; i++ {
		dir := t.TempDir()
		store, err := logstore.New(dir)
		require.NoError(t, err)
		stores[i] = store
		votes := votestore.New(store.VotePath())

		tr := &fakeTransport{id: uint64(i), registry: registry}
		for j := 0; j < n; j++ {
			if j != i {
				tr.ids = append(tr.ids, uint64(j))
			}
		}

		cfg := Config{
			ID:                uint64(i),
			Members:           n,
			HeartbeatTimeout:  150 * time.Millisecond,
			HeartbeatInterval: 8 * time.Millisecond,
			ElectionTimeout:   60 * time.Millisecond,
			AppliedBacklog:    10000,
			RotateInterval:    time.Hour,
			FlushInterval:     4 * time.Millisecond,
			RPCMaxBatch:       64,
		}

		r, err := NewReplica(cfg, votes, store, tr, log)
		require.NoError(t, err)
		registry[uint64(i)] = r
		replicas[i] = r
	}

	t.Cleanup(func() {
		for _, r := range replicas {
			r.Stop()
		}
		for _, s := range stores {
			s.Close()
		}
	})

	for _, r := range replicas {
		r.Start()
	}
	return replicas
}

func (r *Replica) testRole() Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.role
}

func waitForLeader(t *testing.T, replicas []*Replica, timeout time.Duration) *Replica {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, r := range replicas {
			if r.testRole() == Leader {
				return r
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no leader elected within timeout")
	return nil
}

func TestClusterElectsLeader(t *testing.T) {
	replicas := newTestCluster(t, 3)
	waitForLeader(t, replicas, 2*time.Second)
}

func TestClusterWriteThenRead(t *testing.T) {
	replicas := newTestCluster(t, 3)
	leader := waitForLeader(t, replicas, 2*time.Second)

	writeResp, err := leader.HandleClientRequest(&raftpb.ClientRequest{
		Ops: []raftpb.ClientOp{{Type: raftpb.ClientOpWrite, Key: []byte("k"), Value: []byte("v")}},
	})
	require.NoError(t, err)
	require.True(t, writeResp.Success)

	readResp, err := leader.HandleClientRequest(&raftpb.ClientRequest{
		Ops: []raftpb.ClientOp{{Type: raftpb.ClientOpRead, Key: []byte("k")}},
	})
	require.NoError(t, err)
	require.True(t, readResp.Success)
	require.Len(t, readResp.Entries, 1)
	require.Equal(t, []byte("v"), readResp.Entries[0].Value)
}

func TestClusterFollowerRedirectsWrite(t *testing.T) {
	replicas := newTestCluster(t, 3)
	leader := waitForLeader(t, replicas, 2*time.Second)

	var follower *Replica
	for _, r := range replicas {
		if r != leader {
			follower = r
			break
		}
	}
	require.NotNil(t, follower)

	resp, err := follower.HandleClientRequest(&raftpb.ClientRequest{
		Ops: []raftpb.ClientOp{{Type: raftpb.ClientOpWrite, Key: []byte("k"), Value: []byte("v")}},
	})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.True(t, resp.ShouldRetry)
}

func TestClusterMixedRequestRejected(t *testing.T) {
	replicas := newTestCluster(t, 3)
	leader := waitForLeader(t, replicas, 2*time.Second)

	resp, err := leader.HandleClientRequest(&raftpb.ClientRequest{
		Ops: []raftpb.ClientOp{
			{Type: raftpb.ClientOpRead, Key: []byte("k")},
			{Type: raftpb.ClientOpWrite, Key: []byte("k"), Value: []byte("w")},
		},
	})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.False(t, resp.ShouldRetry)
	require.Empty(t, resp.Entries)
}

func TestClusterWritesReplicateToFollowers(t *testing.T) {
	replicas := newTestCluster(t, 3)
	leader := waitForLeader(t, replicas, 2*time.Second)

	resp, err := leader.HandleClientRequest(&raftpb.ClientRequest{
		Ops: []raftpb.ClientOp{{Type: raftpb.ClientOpWrite, Key: []byte("k"), Value: []byte("v")}},
	})
	require.NoError(t, err)
	require.True(t, resp.Success)

	deadline := time.Now().Add(2 * time.Second)
	for _, r := range replicas {
		replicated := false
		for time.Now().Before(deadline) {
			r.mu.Lock()
			applied := r.st.appliedTs
			val, ok := r.st.fsm["k"]
			r.mu.Unlock()
			if ok && applied >= 0 {
				require.Equal(t, []byte("v"), val)
				replicated = true
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		require.True(t, replicated, "replica %d never applied the write", r.cfg.ID)
	}
}
