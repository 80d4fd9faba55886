package raft

import "errors"

// ErrShuttingDown is returned by request paths invoked after Stop has been
// called.
var ErrShuttingDown = errors.New("raft: replica is shutting down")
