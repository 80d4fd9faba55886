package raft

import (
	"strconv"
	"time"

	"raftkv/internal/metrics"
)

// reportRoleMetricsLocked refreshes the gauges that describe this
// replica's current epoch. r.mu must be held by the caller.
func (r *Replica) reportRoleMetricsLocked() {
	metrics.ReplicaTerm.Set(float64(r.st.currentTerm))
	isLeader := 0.0
	if r.st.role == Leader {
		isLeader = 1.0
	}
	metrics.ReplicaIsLeader.Set(isLeader)
	metrics.ReplicaDurableTs.Set(float64(r.st.durableTs))
	metrics.ReplicaAppliedTs.Set(float64(r.st.appliedTs))
	metrics.ReplicaReadBarrierTs.Set(float64(r.st.readBarrierTs))
	metrics.CommitSubscribersPending.Set(float64(len(r.st.commitSubscribers)))
}

// reportPeerHeartbeatAgeLocked refreshes the per-peer round-trip age
// gauge. r.mu must be held by the caller.
func (r *Replica) reportPeerHeartbeatAgeLocked() {
	for _, pid := range r.tr.Peers() {
		last := r.st.followerHeartbeats[pid]
		age := time.Since(last).Seconds()
		if last.IsZero() {
			age = 0
		}
		metrics.PeerHeartbeatAge.WithLabelValues(strconv.FormatUint(pid, 10)).Set(age)
	}
}
