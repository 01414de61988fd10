package main

import "github.com/prometheus/client_golang/prometheus"

var (
	gossipPersistedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gossip_persisted_total", Help: "Gossip messages persisted, by type"},
		[]string{"type"},
	)
	graphCacheTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "graph_cache_writes_total", Help: "Network graph snapshots written"},
	)
	graphCacheDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "graph_cache_duration_seconds", Help: "Snapshot write latency", Buckets: prometheus.DefBuckets},
	)
	graphChannelCount = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "graph_channel_count", Help: "Channels in the in-memory graph at last snapshot"},
	)
	syncCompleteGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "gossip_sync_complete", Help: "1 once historical backfill has been fully persisted"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "Request latency", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		gossipPersistedTotal, graphCacheTotal, graphCacheDuration,
		graphChannelCount, syncCompleteGauge,
		httpRequestsTotal, httpRequestDuration,
	)
}
