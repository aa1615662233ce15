package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chatgraph",
	Subsystem: "store",
	Name:      "ops_total",
	Help:      "Store primitive operations by type.",
}, []string{"op"})
