package reputation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledgerfeed_reputation_lookups_total",
	Help: "Reputation reads issued against the ledger",
}, []string{"kind", "status"})

var lookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ledgerfeed_reputation_lookup_duration_seconds",
	Help:    "Time to read a reputation value from the ledger",
	Buckets: prometheus.ExponentialBucketsRange(0.001, 10, 16),
}, []string{"kind"})

var cacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ledgerfeed_reputation_cache_hits_total",
	Help: "Reputation lookups served from cache",
})

var cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ledgerfeed_reputation_cache_misses_total",
	Help: "Reputation lookups not found in cache",
})

var requestsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ledgerfeed_reputation_requests_coalesced_total",
	Help: "Reputation lookups that shared an in-flight read",
})
