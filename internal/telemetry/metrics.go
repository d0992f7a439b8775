package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	GenerationsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{Name: "ideas_generations_submitted_total", Help: "Generation jobs kicked off"})
	SubmissionFailures   = prometheus.NewCounter(prometheus.CounterOpts{Name: "ideas_submission_failures_total", Help: "Remote kickoff calls that failed"})
	RateLimitRejects     = prometheus.NewCounter(prometheus.CounterOpts{Name: "ideas_rate_limit_rejects_total", Help: "Submissions rejected by rate limiter"})
	CommentsClaimed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "ideas_comments_claimed_total", Help: "Comments claimed into generation batches"})
	ReconcilePasses      = prometheus.NewCounter(prometheus.CounterOpts{Name: "ideas_reconcile_passes_total", Help: "Reconciliation passes executed"})
	StatusFetchFailures  = prometheus.NewCounter(prometheus.CounterOpts{Name: "ideas_status_fetch_failures_total", Help: "Remote status polls that failed"})
	ResultParseFailures  = prometheus.NewCounter(prometheus.CounterOpts{Name: "ideas_result_parse_failures_total", Help: "Success payloads that failed to parse"})
	JobsCompleted        = prometheus.NewCounter(prometheus.CounterOpts{Name: "ideas_jobs_completed_total", Help: "Jobs transitioned to processed"})
	IdeasInserted        = prometheus.NewCounter(prometheus.CounterOpts{Name: "ideas_inserted_total", Help: "Idea rows inserted"})
	PendingJobsGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "ideas_pending_jobs", Help: "Unprocessed non-terminal jobs across users"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			GenerationsSubmitted,
			SubmissionFailures,
			RateLimitRejects,
			CommentsClaimed,
			ReconcilePasses,
			StatusFetchFailures,
			ResultParseFailures,
			JobsCompleted,
			IdeasInserted,
			PendingJobsGauge,
		)
	})
	return promhttp.Handler()
}
