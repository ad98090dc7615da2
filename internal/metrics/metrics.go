// Package metrics exposes ingestion counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	CyclesTotal  prometheus.Counter
	CyclesFailed prometheus.Counter

	PositionsProcessed prometheus.Counter
	PositionsDropped   prometheus.Counter
	PublishErrors      prometheus.Counter

	Transitions *prometheus.CounterVec // kind label: started|ended|switched

	CycleDuration prometheus.Histogram

	ActiveVehicles prometheus.Gauge
	FetchInterval  prometheus.Gauge // seconds
}

func NewCollector(fetchInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_cycles_total",
			Help: "Total ingestion cycles attempted.",
		}),
		CyclesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_cycles_failed_total",
			Help: "Total ingestion cycles that failed before publishing.",
		}),
		PositionsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_positions_processed_total",
			Help: "Total vehicle positions published to the store.",
		}),
		PositionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_positions_dropped_total",
			Help: "Total feed entities dropped during normalization.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_publish_errors_total",
			Help: "Total per-vehicle publish failures.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_trip_transitions_total",
			Help: "Trip transitions detected, by kind.",
		}, []string{"kind"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_cycle_duration_seconds",
			Help:    "Duration of a full ingestion cycle.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ActiveVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_active_vehicles",
			Help: "Vehicles in the active index after the last cycle.",
		}),
		FetchInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_fetch_interval_seconds",
			Help: "Configured feed fetch interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.CyclesTotal, c.CyclesFailed,
		c.PositionsProcessed, c.PositionsDropped, c.PublishErrors,
		c.Transitions, c.CycleDuration,
		c.ActiveVehicles, c.FetchInterval,
	)

	c.FetchInterval.Set(fetchInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }
