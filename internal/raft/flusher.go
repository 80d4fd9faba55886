package raft

import (
	"time"

	"raftkv/internal/metrics"
	"raftkv/internal/raftpb"
)

// runFlusher implements §4.10: periodic and on-demand persistence of the
// buffered log tail.
func (r *Replica) runFlusher() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.closing:
			return
		case <-ticker.C:
			r.flushOnce()
		case <-r.flushSignal:
			r.flushOnce()
		}
	}
}

func (r *Replica) flushOnce() {
	start := time.Now()

	r.mu.Lock()
	toFlush := append([]raftpb.LogRecord(nil), r.st.bufferedLog[r.st.flushedIndex:]...)
	r.st.flushedIndex = len(r.st.bufferedLog)
	r.st.gc(r.cfg.AppliedBacklog)

	wouldBeDurable := r.st.durableTs
	if len(r.st.bufferedLog) > 0 {
		wouldBeDurable = r.st.bufferedLog[len(r.st.bufferedLog)-1].Ts
	}
	r.mu.Unlock()

	if len(toFlush) > 0 {
		r.logMu.Lock()
		var flushErr error
		for i := range toFlush {
			if flushErr = r.store.AppendRecord(&toFlush[i]); flushErr != nil {
				break
			}
		}
		if flushErr == nil {
			flushErr = r.store.Sync()
		}
		r.logMu.Unlock()
		if flushErr != nil {
			fatal(r.log, flushErr)
			return
		}
	}

	r.mu.Lock()
	r.st.durableTs = wouldBeDurable
	var fired []pendingCommit
	if r.st.role == Leader {
		r.st.advanceAppliedTimestamp()
		fired = r.st.pickSubscribers()
	}
	r.flushVers++
	r.flushCond.Broadcast()
	r.reportRoleMetricsLocked()
	r.mu.Unlock()

	metrics.FlushDuration.Observe(time.Since(start).Seconds())
	metrics.FlushSize.Observe(float64(len(toFlush)))

	for _, c := range fired {
		c.ch <- true
		close(c.ch)
	}
}
