package raft

import (
	"fmt"

	"raftkv/internal/raftpb"
)

// recover implements the §8 boundary case: on startup, read the newest
// snapshot (if any) into fsm, then replay the changelog WAL's tail,
// reconstructing buffered_log, next_ts and durable_ts from whatever records
// land after the snapshot's applied_ts.
func (r *Replica) recover() error {
	vote, found, err := r.votes.Recover()
	if err != nil {
		return fmt.Errorf("recover vote: %w", err)
	}
	if found && vote.Term > r.st.currentTerm {
		r.st.currentTerm = vote.Term
	}

	snaps, err := r.store.DiscoverSnapshots()
	if err != nil {
		return fmt.Errorf("discover snapshots: %w", err)
	}
	appliedTs := int64(-1)
	if len(snaps) > 0 {
		newest := snaps[len(snaps)-1]
		if err := r.loadSnapshot(newest); err != nil {
			return fmt.Errorf("load snapshot %d: %w", newest, err)
		}
		appliedTs = newest
	}
	r.st.appliedTs = appliedTs
	r.st.durableTs = appliedTs
	r.st.nextTs = appliedTs + 1

	buffered, err := r.store.RecordsFrom(appliedTs + 1)
	if err != nil {
		return fmt.Errorf("replay changelog: %w", err)
	}

	r.st.bufferedLog = buffered
	r.st.flushedIndex = len(buffered)
	if len(buffered) > 0 {
		r.st.durableTs = buffered[len(buffered)-1].Ts
		r.st.nextTs = r.st.durableTs + 1
	}
	return nil
}

func (r *Replica) loadSnapshot(appliedTs int64) error {
	f, err := r.store.OpenSnapshotForRead(appliedTs)
	if err != nil {
		return err
	}
	defer f.Close()

	size, ok := f.ReadInt64()
	if !ok {
		return fmt.Errorf("missing size header")
	}
	if _, ok := f.ReadInt64(); !ok {
		return fmt.Errorf("missing applied_ts header")
	}
	for i := int64(0); i < size; i++ {
		var rec raftpb.LogRecord
		if !f.ReadRecord(&rec) {
			return fmt.Errorf("truncated at record %d of %d", i, size)
		}
		for _, op := range rec.Operations {
			r.st.fsm[string(op.Key)] = op.Value
		}
	}
	return nil
}
