// Package metrics registers the engine's Prometheus collectors, served
// on /metrics next to the default process collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"taptrack/internal/broadcast"
)

// TapsTotal counts processed taps by outcome: arrival, departure, or a
// rejection/failure reason code.
var TapsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "taptrack_taps_total",
	Help: "Processed taps by outcome.",
}, []string{"outcome"})

// Register installs the collectors, including gauges over the hub's
// subscriber and drop counters.
func Register(hub *broadcast.Hub) {
	prometheus.MustRegister(TapsTotal)
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "taptrack_monitor_subscribers",
		Help: "Currently connected live-monitor subscribers.",
	}, func() float64 { return float64(hub.Subscribers()) }))
	prometheus.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "taptrack_broadcast_dropped_total",
		Help: "Monitor messages dropped on full subscriber buffers.",
	}, func() float64 { return float64(hub.Drops()) }))
}
