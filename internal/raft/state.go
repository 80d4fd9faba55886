package raft

import (
	"sort"
	"time"

	"raftkv/internal/raftpb"
)

// Role is a replica's current position in the election protocol.
type Role int

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// pendingCommit is a notification attached to a ts, fired exactly once when
// appliedTs reaches it.
type pendingCommit struct {
	ts int64
	ch chan bool
}

// recoveryReception tracks an in-progress RecoverySnapshot stream on a
// follower, keyed by (term, appliedTs) as the spec requires.
type recoveryReception struct {
	active    bool
	term      uint64
	appliedTs int64
	remaining uint64
	size      uint64
}

// state is the full set of in-memory mutable replica state, owned by a
// single logical mutex (Replica.mu). Every method on state is a pure
// mutation with no I/O; Replica wraps it with locking and the I/O that must
// happen outside the critical section.
type state struct {
	id uint64

	currentTerm uint64
	role        Role
	leaderID    *uint64

	nextTs        int64
	durableTs     int64
	appliedTs     int64
	readBarrierTs int64

	bufferedLog  []raftpb.LogRecord
	flushedIndex int

	commitSubscribers []pendingCommit

	nextTimestamps     []int64
	durableTimestamps  []int64
	followerHeartbeats []time.Time
	latestHeartbeat    time.Time

	votedForMe map[uint64]bool

	fsm map[string][]byte

	recv recoveryReception
}

func newState(id uint64, members int) *state {
	s := &state{
		id:                 id,
		role:               Follower,
		durableTs:          -1,
		appliedTs:          -1,
		readBarrierTs:      -1,
		nextTimestamps:     make([]int64, members),
		durableTimestamps:  make([]int64, members),
		followerHeartbeats: make([]time.Time, members),
		votedForMe:         make(map[uint64]bool),
		fsm:                make(map[string][]byte),
	}
	for i := range s.durableTimestamps {
		s.durableTimestamps[i] = -1
	}
	return s
}

// bufferedStart returns the ts of the first buffered record, or nextTs if
// the buffer is currently empty (an empty buffer's implicit lower bound).
func (s *state) bufferedStart() int64 {
	if len(s.bufferedLog) == 0 {
		return s.nextTs
	}
	return s.bufferedLog[0].Ts
}

// matchMessage reports whether rec can safely be skipped or must cause a
// truncation: true means "identical to what's buffered, or out of buffered
// range entirely" (safe), false means "differs, truncate". This unifies the
// two historical interpretations the spec's Open Questions flag.
func (s *state) matchMessage(rec *raftpb.LogRecord) bool {
	if len(s.bufferedLog) == 0 || rec.Ts < s.bufferedLog[0].Ts || rec.Ts > s.bufferedLog[len(s.bufferedLog)-1].Ts {
		return true
	}
	existing := &s.bufferedLog[rec.Ts-s.bufferedLog[0].Ts]
	return existing.Equal(rec)
}

// integrateRecord applies §4.4 step 4's skip/truncate/append/drop decision
// for one record of an AppendEntries batch.
func (s *state) integrateRecord(rec *raftpb.LogRecord) {
	if rec.Ts <= s.appliedTs {
		return
	}
	if rec.Ts < s.nextTs {
		if s.matchMessage(rec) {
			return
		}
		idx := rec.Ts - s.bufferedStart()
		s.bufferedLog = s.bufferedLog[:idx]
		s.nextTs = rec.Ts
		if rec.Ts-1 < s.durableTs {
			s.durableTs = rec.Ts - 1
		}
		if int64(s.flushedIndex) > idx {
			s.flushedIndex = int(idx)
		}
		s.bufferedLog = append(s.bufferedLog, *rec)
		s.nextTs++
		return
	}
	if rec.Ts == s.nextTs {
		s.bufferedLog = append(s.bufferedLog, *rec)
		s.nextTs++
	}
	// rec.Ts > nextTs would create a gap; dropped per spec.
}

// gc drops buffered records more than backlog below appliedTs, adjusting
// flushedIndex to match.
func (s *state) gc(backlog int64) {
	if s.appliedTs < 0 {
		return
	}
	cutoff := s.appliedTs - backlog
	i := 0
	for i < len(s.bufferedLog) && s.bufferedLog[i].Ts < cutoff {
		i++
	}
	if i == 0 {
		return
	}
	s.bufferedLog = s.bufferedLog[i:]
	if s.flushedIndex > i {
		s.flushedIndex -= i
	} else {
		s.flushedIndex = 0
	}
}

// apply reflects rec's writes into fsm. Never called with records whose ts
// has already been applied.
func (s *state) apply(rec *raftpb.LogRecord) {
	for _, op := range rec.Operations {
		s.fsm[string(op.Key)] = op.Value
	}
}

// advanceTo applies every buffered record with ts in (appliedTs, ts] in
// order, advancing appliedTs as it goes.
func (s *state) advanceTo(ts int64) {
	if len(s.bufferedLog) == 0 {
		return
	}
	pos := s.appliedTs - s.bufferedLog[0].Ts + 1
	if pos < 0 {
		pos = 0
	}
	for pos < int64(len(s.bufferedLog)) && ts >= s.bufferedLog[pos].Ts {
		s.apply(&s.bufferedLog[pos])
		s.appliedTs = s.bufferedLog[pos].Ts
		pos++
	}
}

// advanceAppliedTimestamp substitutes the local durable_ts into this
// replica's own slot, takes the median across all N durable timestamps, and
// advances appliedTs by applying every buffered record up to that median.
func (s *state) advanceAppliedTimestamp() {
	s.durableTimestamps[s.id] = s.durableTs
	tss := append([]int64(nil), s.durableTimestamps...)
	sort.Slice(tss, func(i, j int) bool { return tss[i] < tss[j] })
	median := tss[len(tss)/2]
	s.advanceTo(median)
}

// pickSubscribers removes and returns every commit subscriber whose ts is
// now covered by appliedTs, in ts order (commitSubscribers is maintained in
// ts order since a leader's ts assignment is monotone).
func (s *state) pickSubscribers() []pendingCommit {
	var fired []pendingCommit
	i := 0
	for i < len(s.commitSubscribers) && s.commitSubscribers[i].ts <= s.appliedTs {
		fired = append(fired, s.commitSubscribers[i])
		i++
	}
	s.commitSubscribers = s.commitSubscribers[i:]
	return fired
}

// dropCommitSubscribers clears all pending subscribers without firing them;
// called on a role change away from leader since they belong to a prior
// epoch.
func (s *state) dropCommitSubscribers() []pendingCommit {
	dropped := s.commitSubscribers
	s.commitSubscribers = nil
	return dropped
}

func (s *state) createResponse(success bool) *raftpb.Response {
	return &raftpb.Response{
		Term:      s.currentTerm,
		DurableTs: s.durableTs,
		NextTs:    s.nextTs,
		Success:   success,
	}
}

// snapshotFSM returns a point-in-time copy of fsm's key set in
// deterministic (sorted) order, suitable for writing a snapshot without
// holding the lock for the duration of the I/O.
func (s *state) snapshotFSM() (keys []string, values map[string][]byte) {
	keys = make([]string, 0, len(s.fsm))
	values = make(map[string][]byte, len(s.fsm))
	for k, v := range s.fsm {
		keys = append(keys, k)
		values[k] = v
	}
	sort.Strings(keys)
	return keys, values
}
