// Package metrics declares the in-process Prometheus collectors the
// handler runtime updates as it executes traversals. These collectors are
// never exposed over HTTP (there is no exposition endpoint in this
// engine); they exist so an embedding process can read them directly off
// the default registry if it wants to (e.g. to relay them through its own
// HTTP server).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// HandlerCalls counts every handler invocation, labeled by query name
	// and outcome ("ok" or "error").
	HandlerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helixdb",
		Subsystem: "handler",
		Name:      "calls_total",
		Help:      "Total handler invocations by query name and outcome.",
	}, []string{"query", "outcome"})

	// HandlerLatency tracks handler wall-clock latency by query name.
	HandlerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "helixdb",
		Subsystem: "handler",
		Name:      "latency_seconds",
		Help:      "Handler execution latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"query"})

	// TraversalSteps counts every step executed by the traversal
	// interpreter, labeled by step name.
	TraversalSteps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helixdb",
		Subsystem: "traversal",
		Name:      "steps_total",
		Help:      "Total traversal steps executed, by step name.",
	}, []string{"step"})

	// VectorSearchLatency tracks HNSW search latency.
	VectorSearchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "helixdb",
		Subsystem: "vector",
		Name:      "search_latency_seconds",
		Help:      "HNSW search latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// BM25Queries counts lexical search invocations.
	BM25Queries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "helixdb",
		Subsystem: "bm25",
		Name:      "queries_total",
		Help:      "Total BM25 lexical search queries executed.",
	})

	// WriteTxns counts committed and aborted write transactions.
	WriteTxns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helixdb",
		Subsystem: "storage",
		Name:      "write_txns_total",
		Help:      "Total write transactions, by outcome (committed, aborted).",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(HandlerCalls, HandlerLatency, TraversalSteps, VectorSearchLatency, BM25Queries, WriteTxns)
}
