package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the coordinator-level Prometheus collectors. The tracker
// itself stays instrumentation-free; everything observable is recorded at
// the run boundary.
type Metrics struct {
	registry *prometheus.Registry

	RunsFinalised    *prometheus.CounterVec
	RunAttempts      prometheus.Counter
	TasksDiscarded   prometheus.Counter
	UnfinalisedTasks prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RunsFinalised: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tasktrack_runs_finalised_total",
			Help: "Runs that reached a terminal status, by status.",
		}, []string{"status"}),
		RunAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "tasktrack_run_attempts_total",
			Help: "Run attempts executed, including retries.",
		}),
		TasksDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "tasktrack_tasks_discarded_total",
			Help: "Tasks discarded after exceeding their attempt budget.",
		}),
		UnfinalisedTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tasktrack_unfinalised_tasks",
			Help: "Tasks left unfinalised by the most recent attempt.",
		}),
	}
}

// Handler serves the collectors in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
