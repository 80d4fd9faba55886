package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReplicaTerm = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "raftkv",
		Subsystem: "replica",
		Name:      "term",
		Help:      "Current term",
	})

	ReplicaIsLeader = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "raftkv",
		Subsystem: "replica",
		Name:      "is_leader",
		Help:      "Whether this replica believes itself the term's leader (1=leader, 0=otherwise)",
	})

	ReplicaDurableTs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "raftkv",
		Subsystem: "replica",
		Name:      "durable_ts",
		Help:      "Highest ts known to be fsynced locally",
	})

	ReplicaAppliedTs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "raftkv",
		Subsystem: "replica",
		Name:      "applied_ts",
		Help:      "Highest ts applied to the key-value map",
	})

	ReplicaReadBarrierTs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "raftkv",
		Subsystem: "replica",
		Name:      "read_barrier_ts",
		Help:      "Applied ts a freshly elected leader must reach before serving reads",
	})

	CommitSubscribersPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "raftkv",
		Subsystem: "replica",
		Name:      "commit_subscribers_pending",
		Help:      "Client writes awaiting commit on this leader",
	})

	PeerHeartbeatAge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "raftkv",
		Subsystem: "replica",
		Name:      "peer_heartbeat_age_seconds",
		Help:      "Seconds since the last successful round trip to each peer",
	}, []string{"peer_id"})

	VoteGrantsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "raftkv",
		Subsystem: "election",
		Name:      "vote_grants_total",
		Help:      "Total votes granted to candidates",
	})

	VoteDenialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "raftkv",
		Subsystem: "election",
		Name:      "vote_denials_total",
		Help:      "Total votes denied to candidates",
	})

	ElectionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "raftkv",
		Subsystem: "election",
		Name:      "started_total",
		Help:      "Total elections this replica initiated as a candidate",
	})

	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "raftkv",
		Subsystem: "changelog",
		Name:      "flush_duration_seconds",
		Help:      "Time to write and sync a flush batch",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 20),
	})

	FlushSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "raftkv",
		Subsystem: "changelog",
		Name:      "flush_size_records",
		Help:      "Number of records persisted per flush",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
	})

	SnapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "raftkv",
		Subsystem: "snapshot",
		Name:      "total",
		Help:      "Total snapshots written",
	})

	SnapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "raftkv",
		Subsystem: "snapshot",
		Name:      "duration_seconds",
		Help:      "Time to checkpoint fsm to a snapshot file",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
	})

	SnapshotKeysTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "raftkv",
		Subsystem: "snapshot",
		Name:      "keys_total",
		Help:      "Number of keys in the most recent snapshot",
	})

	ClientRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raftkv",
		Subsystem: "client",
		Name:      "requests_total",
		Help:      "Total client requests handled",
	}, []string{"op", "status"})

	ClientRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "raftkv",
		Subsystem: "client",
		Name:      "request_duration_seconds",
		Help:      "Client request handling duration",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20),
	}, []string{"op"})

	RecoverySnapshotsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "raftkv",
		Subsystem: "recovery",
		Name:      "snapshots_sent_total",
		Help:      "Total snapshot recoveries streamed to stale peers",
	})

	RecoveryReplayRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "raftkv",
		Subsystem: "recovery",
		Name:      "replay_records_total",
		Help:      "Total changelog records replayed to catch up stale peers",
	})

	GRPCRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raftkv",
		Subsystem: "grpc",
		Name:      "requests_total",
		Help:      "Total gRPC requests",
	}, []string{"service", "method", "code"})

	GRPCRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "raftkv",
		Subsystem: "grpc",
		Name:      "request_duration_seconds",
		Help:      "gRPC request duration",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20),
	}, []string{"service", "method"})
)
