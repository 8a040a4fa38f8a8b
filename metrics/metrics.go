// Package metrics exposes ambient Prometheus instrumentation over the
// pipeline: nothing here changes observable HTTP behavior, it only counts
// and times what the pipeline driver and encoder orchestrator already do.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// VideoIngestMetrics is the full set of counters and histograms emitted by
// the pipeline.
type VideoIngestMetrics struct {
	JobsStarted           *prometheus.CounterVec
	JobsTerminal          *prometheus.CounterVec
	JobDurationSeconds     *prometheus.HistogramVec
	EncoderCandidateTries *prometheus.CounterVec
	CleanupPrunes         prometheus.Counter
}

// submissionLabels labels JobsStarted by the entry point a job was started
// from (local, remote, yt-dlp).
var submissionLabels = []string{"submission"}

// NewMetrics registers and returns the metrics set. Call once at process
// startup; registering the same metric name twice panics.
func NewMetrics() *VideoIngestMetrics {
	return &VideoIngestMetrics{
		JobsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "video_ingest_jobs_started_total",
			Help: "Number of pipeline jobs started, by submission path",
		}, submissionLabels),

		JobsTerminal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "video_ingest_jobs_terminal_total",
			Help: "Number of pipeline jobs that reached a terminal stage, by stage",
		}, []string{"stage"}),

		JobDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "video_ingest_job_duration_seconds",
			Help:    "Wall-clock time from job creation to a terminal stage",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"stage"}),

		EncoderCandidateTries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "video_ingest_encoder_candidate_tries_total",
			Help: "Number of encoder-candidate attempts, by backend and outcome",
		}, []string{"backend", "outcome"}),

		CleanupPrunes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "video_ingest_cleanup_prunes_total",
			Help: "Number of jobs whose derived renditions were pruned by the cleanup engine",
		}),
	}
}

// Metrics is the process-wide singleton instance.
var Metrics = NewMetrics()
