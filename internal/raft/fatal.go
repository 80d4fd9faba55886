package raft

import (
	"log/slog"
	"os"
)

// fatalHook lets tests observe what would otherwise abort the process.
var fatalHook func(error)

// fatal handles the spec's "Fatal (process abort)" error class: disk
// failures and vote-store rename failures that put the durable log in an
// unknown state. Continuing risks corrupting the replicated log, so the
// process exits and another replica takes over.
func fatal(log *slog.Logger, err error) {
	if fatalHook != nil {
		fatalHook(err)
		return
	}
	log.Error("fatal storage error, aborting", "error", err)
	os.Exit(1)
}
