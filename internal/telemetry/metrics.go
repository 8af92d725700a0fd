package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "github_leaderboard"

// RunMetrics counts what happened during one leaderboard run.
// A nil *RunMetrics is valid and records nothing.
type RunMetrics struct {
	registry *prometheus.Registry

	reposListed      prometheus.Gauge
	repoFetches      *prometheus.CounterVec
	pendingRetries   prometheus.Counter
	searchQueries    *prometheus.CounterVec
	enrichFailures   *prometheus.CounterVec
	contributors     prometheus.Gauge
	runDuration      prometheus.Gauge
	lastRunTimestamp prometheus.Gauge
}

// NewRunMetrics registers the run metrics on a fresh registry.
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		reposListed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "repositories_listed",
			Help:      "Non-archived repositories returned by the organization listing.",
		}),
		repoFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "repository_stats_fetches_total",
			Help:      "Contributor statistics fetches by outcome (ok, pending, failed).",
		}, []string{"outcome"}),
		pendingRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pending_retries_total",
			Help:      "Waits performed because statistics were still being computed.",
		}),
		searchQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "search_queries_total",
			Help:      "Activity metric queries sent to the search surface by scope kind.",
		}, []string{"scope"}),
		enrichFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "enrichment_failures_total",
			Help:      "Activity metric queries that failed and were replaced with zeros.",
		}, []string{"scope"}),
		contributors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_contributors",
			Help:      "Logins with at least one commit in the window.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time at which the last run finished.",
		}),
	}
	m.registry.MustRegister(
		m.reposListed,
		m.repoFetches,
		m.pendingRetries,
		m.searchQueries,
		m.enrichFailures,
		m.contributors,
		m.runDuration,
		m.lastRunTimestamp,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *RunMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ReposListed records the size of the repository listing.
func (m *RunMetrics) ReposListed(n int) {
	if m == nil {
		return
	}
	m.reposListed.Set(float64(n))
}

// RepoFetch records the outcome of one repository statistics fetch.
func (m *RunMetrics) RepoFetch(outcome string) {
	if m == nil {
		return
	}
	m.repoFetches.WithLabelValues(outcome).Inc()
}

// PendingRetry records one backoff wait on a still-computing response.
func (m *RunMetrics) PendingRetry() {
	if m == nil {
		return
	}
	m.pendingRetries.Inc()
}

// SearchQuery records one activity metrics query.
func (m *RunMetrics) SearchQuery(scope string) {
	if m == nil {
		return
	}
	m.searchQueries.WithLabelValues(scope).Inc()
}

// EnrichFailure records one failed activity metrics query.
func (m *RunMetrics) EnrichFailure(scope string) {
	if m == nil {
		return
	}
	m.enrichFailures.WithLabelValues(scope).Inc()
}

// Contributors records the number of active contributors.
func (m *RunMetrics) Contributors(n int) {
	if m == nil {
		return
	}
	m.contributors.Set(float64(n))
}

// Finish records the run duration and completion time.
func (m *RunMetrics) Finish(started, finished time.Time) {
	if m == nil {
		return
	}
	m.runDuration.Set(finished.Sub(started).Seconds())
	m.lastRunTimestamp.Set(float64(finished.Unix()))
}

// WriteTextfile writes the metrics in the text exposition format for the
// node_exporter textfile collector.
func (m *RunMetrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
