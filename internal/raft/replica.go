// Package raft implements the replicated, leader-based key/value log: the
// in-memory replica state machine, its periodic tasks, and its RPC
// handlers. It holds no transport code; callers supply a Transport to reach
// peers and expose the handlers over whatever RPC mechanism they choose.
package raft

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"raftkv/internal/raftlog/framedfile"
	"raftkv/internal/raftlog/logstore"
	"raftkv/internal/raftlog/votestore"
	"raftkv/internal/raftpb"
)

// PeerClient is the set of RPCs a replica issues against one other member.
// The replica bounds every call with a context carrying the configured
// heartbeat_timeout deadline.
type PeerClient interface {
	Vote(ctx context.Context, req *raftpb.VoteRequest) (*raftpb.Response, error)
	AppendEntries(ctx context.Context, req *raftpb.AppendEntriesRequest) (*raftpb.Response, error)
	RecoverySnapshot(ctx context.Context, req *raftpb.RecoverySnapshotRequest) (*raftpb.Response, error)
}

// Transport resolves peer ids to PeerClients. It is constructed once at
// startup from the configured membership and is never mutated afterward
// (dynamic membership is a non-goal).
type Transport interface {
	Peer(id uint64) PeerClient
	// Peers returns every member id other than the local replica's.
	Peers() []uint64
}

// Replica is one node's full runtime: in-memory state behind a single
// exclusive mutex, plus the durable stores it owns. The flush and rotate
// paths perform their disk I/O with the state mutex released; HandleVote's
// vote write and HandleRecoverySnapshot's snapshot writes run under it.
// logMu serializes the flusher's and rotator's access to the changelog store
// independently so a slow flush never blocks request handling.
type Replica struct {
	cfg Config
	log *slog.Logger

	votes *votestore.Store
	store *logstore.Store
	tr    Transport

	mu        sync.Mutex
	st        *state
	recvFile  *framedfile.File
	flushCond *sync.Cond
	flushVers uint64

	logMu   sync.Mutex
	closing chan struct{}
	closed  bool

	flushSignal chan struct{}
	sendSignal  chan struct{}

	wg sync.WaitGroup

	rng   *rand.Rand
	rngMu sync.Mutex
}

// NewReplica constructs a replica and runs startup recovery (the newest
// snapshot, then the changelog records after its applied_ts) but does not
// start periodic tasks; call Start for that.
func NewReplica(cfg Config, votes *votestore.Store, store *logstore.Store, tr Transport, log *slog.Logger) (*Replica, error) {
	r := &Replica{
		cfg:         cfg,
		log:         log,
		votes:       votes,
		store:       store,
		tr:          tr,
		st:          newState(cfg.ID, cfg.Members),
		closing:     make(chan struct{}),
		flushSignal: make(chan struct{}, 1),
		sendSignal:  make(chan struct{}, 1),
		rng:         rand.New(rand.NewSource(int64(cfg.ID)*2654435761 + time.Now().UnixNano())),
	}
	r.flushCond = sync.NewCond(&r.mu)
	if err := r.recover(); err != nil {
		return nil, fmt.Errorf("raft: recover: %w", err)
	}
	return r, nil
}

// Start launches the replica's five periodic tasks: elector, flusher,
// rotator, heartbeat sender, and stale-peer recovery agent. The latter two
// are no-ops whenever this replica isn't the leader.
func (r *Replica) Start() {
	r.wg.Add(5)
	go r.runElector()
	go r.runFlusher()
	go r.runRotator()
	go r.runHeartbeat()
	go r.runRecoveryAgent()
}

func (r *Replica) triggerFlush() {
	select {
	case r.flushSignal <- struct{}{}:
	default:
	}
}

func (r *Replica) triggerSend() {
	select {
	case r.sendSignal <- struct{}{}:
	default:
	}
}

// randFraction returns a uniform random float64 in [0,1), safe for
// concurrent use from periodic tasks sharing one seeded source.
func (r *Replica) randFraction() float64 {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng.Float64()
}

// Stop signals every periodic task to exit and waits for them, then syncs
// the changelog. The changelog store outlives the replica (its caller owns
// Close, since the same store also backs the vote file); Stop only
// guarantees everything buffered has been fsynced before returning.
func (r *Replica) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.closing)
	r.flushCond.Broadcast()
	r.wg.Wait()

	r.logMu.Lock()
	defer r.logMu.Unlock()
	if err := r.store.Sync(); err != nil {
		r.log.Error("final changelog sync failed", "error", err)
	}
}

func (r *Replica) isClosing() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

// Periodic-task intervals and batch sizes live on cfg; see config.go.
