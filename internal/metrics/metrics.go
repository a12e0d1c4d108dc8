package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"vrptabu/internal/opt"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// SolverRuns counts finished tabu runs by stop reason
	SolverRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_runs_total", Help: "Tabu search runs by stop reason."},
		[]string{"stop_reason"},
	)
	// SolverIterations counts iterations by winning move family
	SolverIterations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_iterations_total", Help: "Tabu search iterations by winning move family."},
		[]string{"family"},
	)
	// SolverDuration tracks wall-clock time per run
	SolverDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solver_run_duration_seconds", Help: "Tabu search run duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60}},
	)
	// SolverBestObjective is the best objective of the most recent run
	SolverBestObjective = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "solver_best_objective", Help: "Best objective of the most recent run."},
	)
	// SolverAspirated counts tabu moves admitted by aspiration
	SolverAspirated = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "solver_aspirated_moves_total", Help: "Tabu moves admitted by aspiration."},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(SolverRuns)
		Registry.MustRegister(SolverIterations)
		Registry.MustRegister(SolverDuration)
		Registry.MustRegister(SolverBestObjective)
		Registry.MustRegister(SolverAspirated)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// ObserveRun records the outcome of one engine run.
func ObserveRun(m opt.Metrics) {
	SolverRuns.WithLabelValues(m.StopReason).Inc()
	for fam, n := range m.FamilyWins {
		SolverIterations.WithLabelValues(fam).Add(float64(n))
	}
	SolverDuration.Observe(m.Duration.Seconds())
	SolverBestObjective.Set(m.BestObjective)
	SolverAspirated.Add(float64(m.Aspirated))
}
