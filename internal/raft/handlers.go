package raft

import (
	"time"

	"raftkv/internal/metrics"
	"raftkv/internal/raftpb"
)

// HandleVote implements §4.7: grant or deny a candidate's term/ts-gated
// solicitation.
func (r *Replica) HandleVote(req *raftpb.VoteRequest) (*raftpb.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.Term < r.st.currentTerm {
		metrics.VoteDenialsTotal.Inc()
		return r.st.createResponse(false), nil
	}
	if req.Term > r.st.currentTerm {
		if r.st.role == Leader {
			r.abandonCommitSubscribersLocked()
		}
		r.st.currentTerm = req.Term
		r.st.role = Candidate
		r.st.votedForMe = make(map[uint64]bool)
		// Clearing leader_id here is the spec's documented fix: otherwise a
		// stale belief about the previous term's leader can wrongly deny a
		// vote to a legitimately higher-term candidate.
		r.st.leaderID = nil
	}

	if r.st.durableTs > req.Ts {
		metrics.VoteDenialsTotal.Inc()
		return r.st.createResponse(false), nil
	}
	if r.st.leaderID != nil && *r.st.leaderID != req.VoteFor {
		metrics.VoteDenialsTotal.Inc()
		return r.st.createResponse(false), nil
	}

	vote := raftpb.Vote{Term: r.st.currentTerm, Ts: req.Ts, VoteFor: req.VoteFor}
	if err := r.votes.Store(vote); err != nil {
		fatal(r.log, err)
		return r.st.createResponse(false), nil
	}

	voteFor := req.VoteFor
	r.st.leaderID = &voteFor
	metrics.VoteGrantsTotal.Inc()
	r.reportRoleMetricsLocked()
	return r.st.createResponse(true), nil
}

// HandleAppendEntries implements §4.4. from is the peer id the request
// arrived from, supplied by the transport layer (the wire message itself
// carries no sender field).
func (r *Replica) HandleAppendEntries(from uint64, req *raftpb.AppendEntriesRequest) (*raftpb.Response, error) {
	r.mu.Lock()

	if req.Term < r.st.currentTerm {
		resp := r.st.createResponse(false)
		r.mu.Unlock()
		return resp, nil
	}
	if req.Term > r.st.currentTerm {
		r.st.currentTerm = req.Term
		r.st.votedForMe = make(map[uint64]bool)
	}
	if r.st.role == Leader {
		r.abandonCommitSubscribersLocked()
	}
	r.st.role = Follower
	r.st.latestHeartbeat = time.Now()
	r.st.leaderID = &from
	r.reportRoleMetricsLocked()

	for i := range req.Records {
		r.st.integrateRecord(&req.Records[i])
	}

	target := req.AppliedTs
	if r.st.durableTs < target {
		target = r.st.durableTs
	}
	r.st.advanceTo(target)

	waitFor := r.flushVers
	r.mu.Unlock()

	r.triggerFlush()

	r.mu.Lock()
	for r.flushVers == waitFor && !r.isClosing() {
		r.flushCond.Wait()
	}
	resp := r.st.createResponse(true)
	r.mu.Unlock()
	return resp, nil
}

// HandleRecoverySnapshot implements §4.5. Chunks are processed entirely
// under the state lock: receptions are rare (a stale follower catching up)
// and bounded in size by rpc_max_batch, so the simplicity of one coarse
// critical section outweighs the latency cost to concurrent request
// handling, unlike the hot flush/rotate paths.
func (r *Replica) HandleRecoverySnapshot(req *raftpb.RecoverySnapshotRequest) (*raftpb.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !req.Start {
		if r.st.role != Follower || req.Term != r.st.currentTerm || req.AppliedTs <= r.st.appliedTs {
			return r.st.createResponse(false), nil
		}
		if !r.st.recv.active || r.st.recv.term != req.Term || r.st.recv.appliedTs != req.AppliedTs {
			return r.st.createResponse(false), nil
		}
	} else {
		if r.st.role != Follower || req.Term != r.st.currentTerm || req.AppliedTs <= r.st.appliedTs {
			return r.st.createResponse(false), nil
		}
		if r.recvFile != nil {
			r.recvFile.Close()
			r.recvFile = nil
		}
		f, err := r.store.CreateSnapshot(req.AppliedTs)
		if err != nil {
			fatal(r.log, err)
			return r.st.createResponse(false), nil
		}
		f.WriteInt64(int64(req.Size))
		f.WriteInt64(req.AppliedTs)
		r.recvFile = f
		r.st.recv = recoveryReception{active: true, term: req.Term, appliedTs: req.AppliedTs, remaining: req.Size, size: req.Size}
	}

	recv := &r.st.recv
	for i := range req.Operations {
		op := req.Operations[i]
		r.st.fsm[string(op.Key)] = op.Value
		if r.recvFile != nil {
			r.recvFile.WriteRecord(&raftpb.LogRecord{Ts: req.AppliedTs, Operations: []raftpb.Operation{op}})
		}
		if recv.remaining > 0 {
			recv.remaining--
		}
	}

	if req.End {
		defer func() {
			recv.active = false
			if r.recvFile != nil {
				r.recvFile.Close()
				r.recvFile = nil
			}
		}()
		if recv.remaining != 0 {
			return r.st.createResponse(false), nil
		}
		if r.recvFile != nil {
			r.recvFile.Sync()
		}
		r.st.appliedTs = req.AppliedTs
		if req.AppliedTs > r.st.durableTs {
			r.st.durableTs = req.AppliedTs
		}
		r.st.nextTs = r.st.durableTs + 1
		r.st.bufferedLog = nil
		r.st.flushedIndex = 0
		return r.st.createResponse(true), nil
	}

	return r.st.createResponse(true), nil
}

// HandleClientRequest implements §4.8.
func (r *Replica) HandleClientRequest(req *raftpb.ClientRequest) (*raftpb.ClientResponse, error) {
	start := time.Now()
	opLabel := "read"
	if len(req.Ops) > 0 && req.Ops[0].Type == raftpb.ClientOpWrite {
		opLabel = "write"
	}
	resp, err := r.handleClientRequest(req)
	status := "failure"
	if resp != nil && resp.Success {
		status = "success"
	}
	metrics.ClientRequestsTotal.WithLabelValues(opLabel, status).Inc()
	metrics.ClientRequestDuration.WithLabelValues(opLabel).Observe(time.Since(start).Seconds())
	return resp, err
}

func (r *Replica) handleClientRequest(req *raftpb.ClientRequest) (*raftpb.ClientResponse, error) {
	if len(req.Ops) == 0 {
		return &raftpb.ClientResponse{Success: true}, nil
	}
	allRead := req.Ops[0].Type == raftpb.ClientOpRead
	for _, op := range req.Ops {
		if (op.Type == raftpb.ClientOpRead) != allRead {
			return &raftpb.ClientResponse{Success: false}, nil
		}
	}

	r.mu.Lock()

	switch r.st.role {
	case Follower:
		var retryTo uint64
		if r.st.leaderID != nil {
			retryTo = *r.st.leaderID
		}
		r.mu.Unlock()
		return &raftpb.ClientResponse{Success: false, ShouldRetry: true, RetryTo: retryTo}, nil
	case Candidate:
		r.mu.Unlock()
		return &raftpb.ClientResponse{Success: false}, nil
	}

	if r.st.appliedTs < r.st.readBarrierTs {
		r.mu.Unlock()
		return &raftpb.ClientResponse{Success: false}, nil
	}

	if allRead {
		entries := make([]raftpb.ClientEntry, 0, len(req.Ops))
		for _, op := range req.Ops {
			entries = append(entries, raftpb.ClientEntry{Key: op.Key, Value: r.st.fsm[string(op.Key)]})
		}
		r.mu.Unlock()
		return &raftpb.ClientResponse{Success: true, Entries: entries}, nil
	}

	ts := r.st.nextTs
	r.st.nextTs++
	ops := make([]raftpb.Operation, 0, len(req.Ops))
	for _, op := range req.Ops {
		ops = append(ops, raftpb.Operation{Key: op.Key, Value: op.Value})
	}
	r.st.bufferedLog = append(r.st.bufferedLog, raftpb.LogRecord{Ts: ts, Operations: ops})
	done := make(chan bool, 1)
	r.st.commitSubscribers = append(r.st.commitSubscribers, pendingCommit{ts: ts, ch: done})
	r.mu.Unlock()

	r.triggerFlush()
	r.triggerSend()

	select {
	case committed := <-done:
		return &raftpb.ClientResponse{Success: committed}, nil
	case <-r.closing:
		return nil, ErrShuttingDown
	}
}
