package raft

// abandonCommitSubscribersLocked drops every pending commit subscriber and
// wakes its waiter with a failed result. Called whenever role transitions
// away from Leader: the subscribers belonged to a prior epoch and can never
// fire (§4.6, §9 "commit_subscribers ... dropped on role change from
// leader"). r.mu must be held by the caller.
func (r *Replica) abandonCommitSubscribersLocked() {
	dropped := r.st.dropCommitSubscribers()
	for _, c := range dropped {
		c.ch <- false
		close(c.ch)
	}
}
