// Package telemetry exposes the prometheus counters/gauges the embedding
// scheduler runtime wires into its /metrics endpoint.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	TriggersAcquired  = prometheus.NewCounter(prometheus.CounterOpts{Name: "quartznet_triggers_acquired_total", Help: "Triggers moved Waiting->Acquired"})
	TriggersFired     = prometheus.NewCounter(prometheus.CounterOpts{Name: "quartznet_triggers_fired_total", Help: "Triggers moved Acquired->Executing"})
	TriggersCompleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "quartznet_triggers_completed_total", Help: "Triggers completed via triggeredJobComplete"})
	Misfires          = prometheus.NewCounter(prometheus.CounterOpts{Name: "quartznet_misfires_total", Help: "Triggers recovered by the misfire handler"})
	ClusterRecoveries = prometheus.NewCounter(prometheus.CounterOpts{Name: "quartznet_cluster_recoveries_total", Help: "Failed-peer recovery passes run"})
	LockWaitSeconds   = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "quartznet_lock_wait_seconds", Help: "Time spent obtaining TRIGGER_ACCESS/STATE_ACCESS"})
	BlockedJobsGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "quartznet_blocked_jobs", Help: "Jobs currently excluded from acquisition by the concurrency check"})
)

// Handler exposes the /metrics HTTP handler behind a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			TriggersAcquired,
			TriggersFired,
			TriggersCompleted,
			Misfires,
			ClusterRecoveries,
			LockWaitSeconds,
			BlockedJobsGauge,
		)
	})
	return promhttp.Handler()
}
