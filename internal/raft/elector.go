package raft

import (
	"context"
	"sort"
	"time"

	"raftkv/internal/metrics"
	"raftkv/internal/raftpb"
)

// runElector implements §4.6 at a poll resolution well below
// election_timeout so the timeout deadline is observed promptly.
func (r *Replica) runElector() {
	defer r.wg.Done()
	interval := r.cfg.ElectionTimeout / 10
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.closing:
			return
		case <-ticker.C:
			r.electionTick()
		}
	}
}

// medianFollowerHeartbeatLocked is the leader's notion of "effective latest
// heartbeat": the median round-trip time across peers, used so a leader
// that can still reach a majority doesn't step down on one slow follower.
// r.mu must be held by the caller.
func (r *Replica) medianFollowerHeartbeatLocked() time.Time {
	times := append([]time.Time(nil), r.st.followerHeartbeats...)
	times[r.st.id] = time.Now()
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times[len(times)/2]
}

func (r *Replica) electionTick() {
	r.mu.Lock()
	effective := r.st.latestHeartbeat
	if r.st.role == Leader {
		effective = r.medianFollowerHeartbeatLocked()
	}
	if time.Now().Before(effective.Add(r.cfg.ElectionTimeout)) {
		r.mu.Unlock()
		return
	}

	if r.st.role == Leader {
		r.abandonCommitSubscribersLocked()
	}
	r.st.currentTerm++
	r.st.votedForMe = make(map[uint64]bool)
	r.st.role = Candidate
	r.st.leaderID = nil
	r.st.latestHeartbeat = time.Now()
	term := r.st.currentTerm
	metrics.ElectionsStarted.Inc()
	r.reportRoleMetricsLocked()
	r.mu.Unlock()

	backoff := time.Duration(r.randFraction() * float64(r.cfg.ElectionTimeout/2))
	select {
	case <-time.After(backoff):
	case <-r.closing:
		return
	}

	r.mu.Lock()
	if r.st.currentTerm != term || r.st.role != Candidate || r.st.leaderID != nil {
		r.mu.Unlock()
		return
	}
	durableTs := r.st.durableTs
	r.st.votedForMe[r.cfg.ID] = true
	r.mu.Unlock()

	selfVote := raftpb.Vote{Term: term, Ts: durableTs, VoteFor: r.cfg.ID}
	if err := r.votes.Store(selfVote); err != nil {
		fatal(r.log, err)
		return
	}

	for _, pid := range r.tr.Peers() {
		go r.solicitVote(pid, term, durableTs)
	}
	r.maybeBecomeLeader(term)
}

func (r *Replica) solicitVote(pid uint64, term uint64, ts int64) {
	client := r.tr.Peer(pid)
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.HeartbeatTimeout)
	defer cancel()
	resp, err := client.Vote(ctx, &raftpb.VoteRequest{Term: term, Ts: ts, VoteFor: r.cfg.ID})
	if err != nil || resp == nil {
		return
	}
	r.onVoteResponse(pid, term, resp)
}

func (r *Replica) onVoteResponse(pid uint64, term uint64, resp *raftpb.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if resp.Term > r.st.currentTerm {
		if r.st.role == Leader {
			r.abandonCommitSubscribersLocked()
		}
		r.st.currentTerm = resp.Term
		r.st.role = Follower
		r.st.leaderID = nil
		r.st.votedForMe = make(map[uint64]bool)
		r.reportRoleMetricsLocked()
		return
	}
	if term != r.st.currentTerm || r.st.role != Candidate {
		return
	}
	if resp.Success {
		if resp.NextTs > r.st.nextTimestamps[pid] {
			r.st.nextTimestamps[pid] = resp.NextTs
		}
		if resp.DurableTs > r.st.durableTimestamps[pid] {
			r.st.durableTimestamps[pid] = resp.DurableTs
		}
		r.st.followerHeartbeats[pid] = time.Now()
		r.st.votedForMe[pid] = true
	}
	if r.hasMajorityLocked() {
		r.becomeLeaderLocked()
	}
}

func (r *Replica) hasMajorityLocked() bool {
	return len(r.st.votedForMe) > r.cfg.Members/2
}

// maybeBecomeLeader handles the degenerate single-node-cluster case, where
// the candidate already holds a majority (itself) with no peer responses
// needed.
func (r *Replica) maybeBecomeLeader(term uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.st.currentTerm != term || r.st.role != Candidate {
		return
	}
	if r.hasMajorityLocked() {
		r.becomeLeaderLocked()
	}
}

// becomeLeaderLocked implements §4.6's majority-reached transition. r.mu
// must be held by the caller.
func (r *Replica) becomeLeaderLocked() {
	r.st.role = Leader
	r.st.advanceAppliedTimestamp()
	r.st.readBarrierTs = r.st.durableTs
	r.abandonCommitSubscribersLocked()

	for i := range r.st.nextTimestamps {
		if int64(i) == int64(r.st.id) {
			continue
		}
		if r.st.durableTimestamps[i] > r.st.appliedTs {
			r.st.durableTimestamps[i] = r.st.appliedTs
		}
		r.st.nextTimestamps[i] = r.st.appliedTs + 1
	}
	leaderID := r.cfg.ID
	r.st.leaderID = &leaderID
	r.reportRoleMetricsLocked()
	r.triggerSend()
}
