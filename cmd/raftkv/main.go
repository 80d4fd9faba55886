// Command raftkv runs one replica of the cluster: a single positional
// argument names its YAML configuration file (spec.md §6's CLI contract).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"raftkv/internal/configuration"
	"raftkv/internal/logging"
	"raftkv/internal/metrics"
	"raftkv/internal/raft"
	"raftkv/internal/raftlog/logstore"
	"raftkv/internal/raftlog/votestore"
	"raftkv/internal/transport"
)

func main() {
	if err := run(); err != nil {
		slog.Error("raftkv: fatal startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) != 2 {
		return fmt.Errorf("usage: %s <config-file>", os.Args[0])
	}

	cfg, err := configuration.Load(os.Args[1])
	if err != nil {
		return err
	}

	logging.Init(cfg.LogLevel)
	log := slog.Default().With("replica_id", cfg.ID)
	log.Info("starting raftkv replica", "members", len(cfg.Members))

	store, err := logstore.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("open log store: %w", err)
	}
	votes := votestore.New(store.VotePath())

	tr, err := transport.Dial(cfg.ID, cfg.PeerAddresses())
	if err != nil {
		return fmt.Errorf("dial peers: %w", err)
	}

	replicaCfg := raft.Config{
		ID:                cfg.ID,
		Members:           len(cfg.Members),
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ElectionTimeout:   cfg.ElectionTimeout,
		AppliedBacklog:    cfg.AppliedBacklog,
		RotateInterval:    cfg.RotateInterval,
		FlushInterval:     cfg.FlushInterval,
		RPCMaxBatch:       cfg.RPCMaxBatch,
	}

	replica, err := raft.NewReplica(replicaCfg, votes, store, tr, log)
	if err != nil {
		return fmt.Errorf("construct replica: %w", err)
	}

	listenAddr := cfg.Members[cfg.ID].Address()
	rpcServer, err := transport.NewServer(listenAddr, replica, cfg.HeartbeatTimeout, log)
	if err != nil {
		return fmt.Errorf("start rpc server: %w", err)
	}

	metricsServer := metrics.NewServer(cfg.MetricsAddr)
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	replica.Start()
	rpcServer.Start()
	log.Info("raftkv replica ready", "rpc_addr", listenAddr, "metrics_addr", cfg.MetricsAddr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()
	<-ctx.Done()

	log.Info("shutting down raftkv replica")
	rpcServer.Stop()
	replica.Stop()
	if err := store.Close(); err != nil {
		log.Warn("closing log store", "error", err)
	}
	if err := tr.Close(); err != nil {
		log.Warn("closing peer connections", "error", err)
	}
	metricsServer.Stop()
	return nil
}
