package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatgraph",
		Subsystem: "ingest",
		Name:      "payloads_total",
		Help:      "Ingested payloads by protocol and terminal state.",
	}, []string{"protocol", "state"})

	anomaliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatgraph",
		Subsystem: "ingest",
		Name:      "anomalies_total",
		Help:      "Non-fatal ingestion anomalies by kind.",
	}, []string{"kind"})

	touchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatgraph",
		Subsystem: "ingest",
		Name:      "objects_touched_total",
		Help:      "Objects whose stored state changed, by kind.",
	}, []string{"kind"})

	ingestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chatgraph",
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "End-to-end processing time per payload.",
		Buckets:   prometheus.DefBuckets,
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatgraph",
		Subsystem: "ingest",
		Name:      "queue_depth",
		Help:      "Payloads waiting in the async intake queue.",
	})
)
