package rank

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var variantBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledgerfeed_rank_variant_builds_total",
	Help: "Feed variants built, by variant",
}, []string{"variant"})

var variantBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ledgerfeed_rank_variant_build_duration_seconds",
	Help:    "Time to build a feed variant, including reputation reads",
	Buckets: prometheus.ExponentialBucketsRange(0.0005, 30, 18),
}, []string{"variant"})
