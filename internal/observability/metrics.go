// Package observability registers the pipeline's Prometheus metrics.
// The scheduler, worker, and supervisor increment these; a host process
// that wants to expose them mounts Handler on an HTTP mux.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsEnqueued counts jobs added to the queue by the scheduler.
	JobsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "castline_jobs_enqueued_total",
		Help: "Jobs enqueued by the scheduler.",
	})

	// WorkerJobs counts worker outcomes by decision.
	WorkerJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "castline_worker_jobs_total",
		Help: "Worker job outcomes by decision.",
	}, []string{"decision"})

	// PipelineRuns counts pipeline runs by terminal status.
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "castline_pipeline_runs_total",
		Help: "Pipeline runs by terminal status.",
	}, []string{"status"})

	// UploadAttempts counts external publish attempts.
	UploadAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "castline_upload_attempts_total",
		Help: "External publish call attempts, including retries.",
	})

	// SupervisorTransitions counts process job state transitions.
	SupervisorTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "castline_supervisor_transitions_total",
		Help: "Process supervisor state transitions by target state.",
	}, []string{"state"})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
