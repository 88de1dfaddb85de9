package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CycleRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweetwatch_cycle_runs_total",
		Help: "Total reconciliation cycles started",
	})
	CycleSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweetwatch_cycle_skipped_total",
		Help: "Cycles skipped because a prior cycle was still running",
	})
	CycleErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweetwatch_cycle_errors_total",
		Help: "Cycles aborted by a token or probe failure",
	})
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tweetwatch_cycle_duration_seconds",
		Help:    "Reconciliation cycle duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	ItemErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetwatch_item_errors_total",
		Help: "Per-account/per-tweet reconciliation failures",
	}, []string{"kind"})
	MentionsFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweetwatch_mentions_fetched_total",
		Help: "Raw mentions returned by the API",
	})
	TriggersDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetwatch_triggers_dispatched_total",
		Help: "Triggers broadcast downstream",
	}, []string{"kind"})
	TriggersDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetwatch_triggers_dropped_total",
		Help: "Triggers dropped before broadcast",
	}, []string{"reason"})
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetwatch_account_cache_lookups_total",
		Help: "Account cache lookups",
	}, []string{"outcome"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetwatch_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetwatch_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetwatch_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(CycleRuns, CycleSkipped, CycleErrors, CycleDuration,
		ItemErrors, MentionsFetched, TriggersDispatched, TriggersDropped,
		CacheLookups, APIRetries, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveCycleDuration records a cycle duration.
func ObserveCycleDuration(start time.Time) {
	CycleDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

// IncCommandRun and IncCommandError track CLI invocations.
func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
