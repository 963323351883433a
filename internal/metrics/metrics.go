// Package metrics exposes process-level Prometheus metrics for simulation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

// Registry holds every ptasim collector plus the Go and process collectors
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	runsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "ptasim_runs_total",
		Help: "Simulation runs that reached a terminal status",
	}, []string{"status"})

	runDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "ptasim_run_duration_seconds",
		Help:    "Wall time of completed simulation runs",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	})

	patientsSimulated = factory.NewCounter(prometheus.CounterOpts{
		Name: "ptasim_patients_simulated_total",
		Help: "Virtual patient evaluations across all pairs",
	})

	domainErrors = factory.NewCounter(prometheus.CounterOpts{
		Name: "ptasim_domain_errors_total",
		Help: "Patient evaluations whose exposure was undefined",
	})

	activeRuns = factory.NewGauge(prometheus.GaugeOpts{
		Name: "ptasim_active_runs",
		Help: "Runs currently executing",
	})

	pairsEvaluated = factory.NewCounter(prometheus.CounterOpts{
		Name: "ptasim_pairs_evaluated_total",
		Help: "(MIC, regimen) pairs simulated",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// RunStarted marks a run as executing
func RunStarted() {
	activeRuns.Inc()
}

// RunFinished records a run leaving the executing state with its terminal status
func RunFinished(status models.RunStatus, elapsed time.Duration) {
	activeRuns.Dec()
	runsTotal.WithLabelValues(string(status)).Inc()
	if status == models.RunStatusCompleted {
		runDuration.Observe(elapsed.Seconds())
	}
}

// ObserveStats adds the work counters of one finished engine run
func ObserveStats(stats *models.RunStats) {
	if stats == nil {
		return
	}
	pairsEvaluated.Add(float64(stats.Pairs))
	patientsSimulated.Add(float64(stats.Evaluations))
	domainErrors.Add(float64(stats.DomainErrors))
}

// Handler serves Registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
