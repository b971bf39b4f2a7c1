package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comply_reconcile_operations_total",
		Help: "Reconciliation operations processed, by entry point.",
	}, []string{"operation"})

	cascadeWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comply_cascade_writes_total",
		Help: "Rows written by cascade sweeps, by cascade kind.",
	}, []string{"cascade"})

	cascadeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comply_cascade_failures_total",
		Help: "Cascade sweeps that failed after the primary write succeeded.",
	}, []string{"cascade"})
)
