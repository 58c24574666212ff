// Package metrics holds the prometheus instruments exported at /__metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ForwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tapedeck_forwarded_requests_total",
		Help: "Requests relayed to the upstream and recorded, by method and upstream status code",
	}, []string{"method", "code"})

	UpstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tapedeck_upstream_errors_total",
		Help: "Upstream calls that failed before a response was received",
	}, []string{"kind"})

	ReplaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tapedeck_replays_total",
		Help: "Replay attempts by outcome",
	}, []string{"outcome"})

	HistoryEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tapedeck_history_entries",
		Help: "Number of recorded exchanges",
	})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tapedeck_upstream_duration_seconds",
		Help:    "Latency of upstream calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
)

// Call kinds used as label values.
const (
	KindForward = "forward"
	KindReplay  = "replay"
)
