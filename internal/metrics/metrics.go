// Package metrics exposes the scheduler and pipeline's operational
// counters through the Prometheus client, the metrics library the
// distributed-storage reference in the retrieval pack uses throughout its
// services. This is ambient instrumentation, not a feature the spec's
// Non-goals exclude.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "viralclip_queue_depth",
		Help: "Number of jobs waiting in a priority class queue.",
	}, []string{"priority_class"})

	RunningJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "viralclip_running_jobs",
		Help: "Number of jobs currently RUNNING across all worker slots.",
	})

	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "viralclip_jobs_total",
		Help: "Jobs that reached a terminal status, by status.",
	}, []string{"status"})

	RetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "viralclip_retries_total",
		Help: "Job attempts re-enqueued after a retryable failure, by error kind.",
	}, []string{"kind"})

	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "viralclip_pipeline_stage_seconds",
		Help:    "Wall-clock duration of a single pipeline stage execution.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"stage"})

	UploadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viralclip_upload_bytes_total",
		Help: "Total bytes accepted by the upload assembler across all sessions.",
	})
)

// Register adds every collector above to reg. Called once from cmd/server.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(QueueDepth, RunningJobs, JobsTotal, RetriesTotal, StageDuration, UploadBytesTotal)
}
