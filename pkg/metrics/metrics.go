package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playersync_cache_hits_total",
		Help: "Reads served per tier (local, shared, durable)",
	}, []string{"kind", "tier"})
	DurableReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playersync_durable_reads_total",
		Help: "The total number of reads that reached the durable store",
	}, []string{"kind"})
	SharedCacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playersync_shared_cache_errors_total",
		Help: "Shared cache failures that were logged and swallowed",
	}, []string{"kind", "op"})
	DurableLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playersync_durable_latency_seconds",
		Help:    "Latency of durable store calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "op"})

	// Replication Metrics
	ReplicationPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playersync_replication_published_total",
		Help: "The total number of replication messages published",
	}, []string{"kind"})
	ReplicationReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playersync_replication_received_total",
		Help: "The total number of replication messages applied",
	}, []string{"kind"})
	ReplicationMalformedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playersync_replication_malformed_total",
		Help: "Replication messages discarded because they could not be decoded",
	}, []string{"kind"})

	// Economy Metrics
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playersync_mutations_total",
		Help: "Balance mutations by operation and result",
	}, []string{"op", "result"})
	TransferCompensationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playersync_transfer_compensation_failures_total",
		Help: "Transfers whose sender debit could not be rolled back",
	})

	// Change feed Metrics
	ChangeFeedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playersync_changefeed_events_total",
		Help: "The total number of events captured from the MongoDB change stream",
	}, []string{"kind"})
	ChangeFeedTokenSavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playersync_changefeed_token_saves_total",
		Help: "The total number of resume token saves",
	})

	// Audit Metrics
	AuditPublishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playersync_audit_publish_errors_total",
		Help: "The total number of audit events that could not be delivered",
	})

	// RPC Metrics
	RPCRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playersync_rpc_requests_total",
		Help: "RPC calls by method and outcome",
	}, []string{"method", "outcome"})
)
