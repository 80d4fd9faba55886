package raft

import (
	"context"
	"time"

	"raftkv/internal/raftpb"
)

// runHeartbeat implements §4.9, the leader replication engine. It is a
// no-op whenever this replica isn't the leader.
func (r *Replica) runHeartbeat() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.closing:
			return
		case <-ticker.C:
			r.heartbeatRound()
		case <-r.sendSignal:
			r.heartbeatRound()
		}
	}
}

func (r *Replica) heartbeatRound() {
	r.mu.Lock()
	if r.st.role != Leader {
		r.mu.Unlock()
		return
	}
	term := r.st.currentTerm
	appliedTs := r.st.appliedTs
	peers := r.tr.Peers()
	batches := make(map[uint64]*raftpb.AppendEntriesRequest, len(peers))
	for _, pid := range peers {
		next := r.st.nextTimestamps[pid]
		req := &raftpb.AppendEntriesRequest{Term: term, AppliedTs: appliedTs}
		start := next - r.st.bufferedStart()
		if start >= 0 && next < r.st.nextTs && len(r.st.bufferedLog) > 0 {
			end := start + int64(r.cfg.RPCMaxBatch)
			if end > int64(len(r.st.bufferedLog)) {
				end = int64(len(r.st.bufferedLog))
			}
			req.Records = append([]raftpb.LogRecord(nil), r.st.bufferedLog[start:end]...)
		}
		batches[pid] = req
	}
	r.mu.Unlock()

	for _, pid := range peers {
		go r.sendAppendEntries(pid, term, batches[pid])
	}
}

func (r *Replica) sendAppendEntries(pid uint64, term uint64, req *raftpb.AppendEntriesRequest) {
	client := r.tr.Peer(pid)
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.HeartbeatTimeout)
	defer cancel()
	resp, err := client.AppendEntries(ctx, req)
	if err != nil || resp == nil {
		return
	}
	r.onAppendEntriesResponse(pid, term, resp)
}

func (r *Replica) onAppendEntriesResponse(pid uint64, term uint64, resp *raftpb.Response) {
	r.mu.Lock()

	if resp.Term > r.st.currentTerm {
		if r.st.role == Leader {
			r.abandonCommitSubscribersLocked()
		}
		r.st.currentTerm = resp.Term
		r.st.role = Follower
		r.st.leaderID = nil
		r.st.votedForMe = make(map[uint64]bool)
		r.reportRoleMetricsLocked()
		r.mu.Unlock()
		return
	}
	if term != r.st.currentTerm || r.st.role != Leader {
		r.mu.Unlock()
		return
	}

	if resp.NextTs > r.st.nextTimestamps[pid] {
		r.st.nextTimestamps[pid] = resp.NextTs
	}
	if resp.DurableTs > r.st.durableTimestamps[pid] {
		r.st.durableTimestamps[pid] = resp.DurableTs
	}
	r.st.followerHeartbeats[pid] = time.Now()

	r.st.advanceAppliedTimestamp()
	fired := r.st.pickSubscribers()
	r.reportRoleMetricsLocked()
	r.reportPeerHeartbeatAgeLocked()
	r.mu.Unlock()

	for _, c := range fired {
		c.ch <- true
		close(c.ch)
	}
}
