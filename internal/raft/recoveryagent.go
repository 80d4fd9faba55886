package raft

import (
	"context"
	"time"

	"raftkv/internal/metrics"
	"raftkv/internal/raftpb"
)

// runRecoveryAgent implements §4.12: the leader periodically ships
// snapshots and replays log tails to peers it has fallen too far behind to
// catch up via ordinary heartbeats. It reuses rotate_interval as its
// cadence, since both are coarse-grained, infrequent maintenance tasks.
func (r *Replica) runRecoveryAgent() {
	defer r.wg.Done()
	interval := r.cfg.RotateInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.closing:
			return
		case <-ticker.C:
			r.recoveryRound()
		}
	}
}

func (r *Replica) recoveryRound() {
	r.mu.Lock()
	if r.st.role != Leader {
		r.mu.Unlock()
		return
	}
	term := r.st.currentTerm
	lowWater := r.st.bufferedStart()
	if len(r.st.bufferedLog) == 0 {
		lowWater = r.st.appliedTs
	}
	var stale []uint64
	for _, pid := range r.tr.Peers() {
		if r.st.nextTimestamps[pid] < lowWater {
			stale = append(stale, pid)
		}
	}
	r.mu.Unlock()

	for _, pid := range stale {
		r.recoverPeer(pid, term)
	}
}

// recoverPeer ships the newest snapshot that covers the peer's next_ts (if
// any), then replays whatever changelog tail remains, aborting at the
// first failure so the next round retries from scratch.
func (r *Replica) recoverPeer(pid uint64, term uint64) {
	client := r.tr.Peer(pid)
	if client == nil {
		return
	}

	r.mu.Lock()
	if r.st.role != Leader || r.st.currentTerm != term {
		r.mu.Unlock()
		return
	}
	next := r.st.nextTimestamps[pid]
	r.mu.Unlock()

	resumeFrom := next
	snaps, err := r.store.DiscoverSnapshots()
	if err != nil {
		r.log.Warn("recovery: discover snapshots failed", "peer", pid, "error", err)
		return
	}
	if len(snaps) > 0 {
		newest := snaps[len(snaps)-1]
		if newest >= next {
			if !r.streamSnapshot(client, pid, term, newest) {
				return
			}
			resumeFrom = newest + 1
			r.mu.Lock()
			if resumeFrom > r.st.nextTimestamps[pid] {
				r.st.nextTimestamps[pid] = resumeFrom
			}
			r.mu.Unlock()
		}
	}

	records, err := r.store.RecordsFrom(resumeFrom)
	if err != nil {
		r.log.Warn("recovery: changelog replay failed", "peer", pid, "error", err)
		return
	}
	metrics.RecoveryReplayRecordsTotal.Add(float64(len(records)))

	for i := 0; i < len(records); i += r.cfg.RPCMaxBatch {
		r.mu.Lock()
		if r.st.role != Leader || r.st.currentTerm != term {
			r.mu.Unlock()
			return
		}
		appliedTs := r.st.appliedTs
		r.mu.Unlock()

		end := i + r.cfg.RPCMaxBatch
		if end > len(records) {
			end = len(records)
		}
		req := &raftpb.AppendEntriesRequest{Term: term, AppliedTs: appliedTs, Records: records[i:end]}
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.HeartbeatTimeout)
		resp, err := client.AppendEntries(ctx, req)
		cancel()
		if err != nil || resp == nil {
			return
		}
		r.onAppendEntriesResponse(pid, term, resp)
	}
}

// streamSnapshot ships snapshot.<appliedTs> to pid in rpc_max_batch-sized
// RecoverySnapshot chunks.
func (r *Replica) streamSnapshot(client PeerClient, pid uint64, term uint64, appliedTs int64) bool {
	f, err := r.store.OpenSnapshotForRead(appliedTs)
	if err != nil {
		r.log.Warn("recovery: open snapshot failed", "peer", pid, "applied_ts", appliedTs, "error", err)
		return false
	}
	defer f.Close()

	size, ok := f.ReadInt64()
	if !ok {
		return false
	}
	if _, ok := f.ReadInt64(); !ok {
		return false
	}
	total := uint64(size)

	sent := uint64(0)
	first := true
	for {
		var chunk []raftpb.Operation
		for len(chunk) < r.cfg.RPCMaxBatch && sent+uint64(len(chunk)) < total {
			var rec raftpb.LogRecord
			if !f.ReadRecord(&rec) {
				return false
			}
			if len(rec.Operations) != 1 {
				return false
			}
			chunk = append(chunk, rec.Operations[0])
		}
		sent += uint64(len(chunk))
		last := sent >= total

		req := &raftpb.RecoverySnapshotRequest{
			Term: term, AppliedTs: appliedTs, Size: total,
			Start: first, End: last, Operations: chunk,
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.HeartbeatTimeout)
		resp, err := client.RecoverySnapshot(ctx, req)
		cancel()
		if err != nil || resp == nil || !resp.Success {
			return false
		}
		first = false
		if last {
			metrics.RecoverySnapshotsSentTotal.Inc()
			return true
		}
	}
}

