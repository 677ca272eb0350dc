package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var refreshCycles = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fxmonitor",
		Subsystem: "refresh",
		Name:      "cycles_total",
		Help:      "Refresh cycles by loop and outcome",
	},
	[]string{"loop", "status"},
)

var refreshDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "fxmonitor",
		Subsystem: "refresh",
		Name:      "duration_seconds",
		Help:      "Refresh cycle duration by loop",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	},
	[]string{"loop"},
)

var anomaliesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fxmonitor",
		Name:      "anomalies_total",
		Help:      "Anomalies detected by type and severity",
	},
	[]string{"type", "severity"},
)

var connectorErrors = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "fxmonitor",
		Name:      "connector_errors_total",
		Help:      "Broker connector errors recorded",
	},
)

var activeSubscriptions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "fxmonitor",
		Name:      "active_subscriptions",
		Help:      "Currently active position subscriptions",
	},
)

var positionsMonitored = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "fxmonitor",
		Name:      "positions_monitored",
		Help:      "Positions currently in the authoritative map",
	},
)
