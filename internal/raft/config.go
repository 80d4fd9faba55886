package raft

import "time"

// Config collects the periodic-task timers and batch sizes the
// specification's configuration section fixes. It is built once from the
// process's loaded configuration.Config and passed to NewReplica.
type Config struct {
	ID      uint64
	Members int

	HeartbeatTimeout  time.Duration
	HeartbeatInterval time.Duration
	ElectionTimeout   time.Duration

	AppliedBacklog int64
	RotateInterval time.Duration
	FlushInterval  time.Duration
	RPCMaxBatch    int
}
