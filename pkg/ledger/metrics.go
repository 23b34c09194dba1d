package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rpcCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledgerfeed_rpc_calls_total",
	Help: "JSON-RPC calls issued to the ledger node",
}, []string{"method", "status"})

var rpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ledgerfeed_rpc_call_duration_seconds",
	Help:    "Duration of JSON-RPC calls, including retries",
	Buckets: prometheus.ExponentialBucketsRange(0.001, 30, 18),
}, []string{"method"})

var decodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledgerfeed_ledger_decode_failures_total",
	Help: "Contract results that could not be decoded",
}, []string{"call"})
