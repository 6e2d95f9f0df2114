// Package metrics exposes Prometheus collectors for the ops listener: HTTP
// server metrics, build info, and per-probe health-check outcomes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LumeWeb/portal-legacy/internal/version"
)

type Metrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	// http
	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	httpPanicTotal prometheus.Counter
	rateLimited    prometheus.Counter

	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge

	// health check
	probeUp          *prometheus.GaugeVec
	probeDur         *prometheus.HistogramVec
	probeFailures    *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec
	runDur           prometheus.Histogram
	runUp            prometheus.Gauge
	lastRunTimestamp prometheus.Gauge
	reportErrors     *prometheus.CounterVec
}

// New returns a fresh registry with the Go and process collectors and every
// metric below. Labels are bounded: HTTP routes come from the router
// pattern and probe names from the fixed battery.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered HTTP handler panics",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthcheck_run_requests_rate_limited_total",
			Help: "On-demand run requests rejected by the rate limiter",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		probeUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "healthcheck_probe_up",
			Help: "Outcome of the last run of each probe (1 up, 0 down)",
		}, []string{"probe"}),
		probeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healthcheck_probe_duration_seconds",
			Help:    "Probe elapsed time",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"probe"}),
		probeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthcheck_probe_failures_total",
			Help: "Total failed probe executions",
		}, []string{"probe"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthcheck_runs_total",
			Help: "Total health-check runs by aggregate result",
		}, []string{"result"}),
		runDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthcheck_run_duration_seconds",
			Help:    "Wall time of a full health-check run",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		runUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "healthcheck_up",
			Help: "Aggregate outcome of the last run (1 when every probe is up)",
		}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "healthcheck_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed run",
		}),
		reportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthcheck_report_errors_total",
			Help: "Failures persisting a report by stage (store, publish)",
		}, []string{"stage"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.rateLimited,
		m.buildInfo,
		m.profilingActive,
		m.probeUp,
		m.probeDur,
		m.probeFailures,
		m.runsTotal,
		m.runDur,
		m.runUp,
		m.lastRunTimestamp,
		m.reportErrors,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *Metrics) Handler() http.Handler {
	return m.handler
}

func (m *Metrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *Metrics) IncRateLimited() {
	m.rateLimited.Inc()
}

// set once at startup.
func (m *Metrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *Metrics) SetProfilingActive(active bool) {
	m.profilingActive.Set(boolGauge(active))
}

// ObserveProbe records one probe outcome.
func (m *Metrics) ObserveProbe(name string, up bool, elapsed time.Duration) {
	m.probeUp.WithLabelValues(name).Set(boolGauge(up))
	m.probeDur.WithLabelValues(name).Observe(elapsed.Seconds())
	if !up {
		m.probeFailures.WithLabelValues(name).Inc()
	}
}

// ObserveRun records the aggregate outcome of a run.
func (m *Metrics) ObserveRun(up bool, elapsed time.Duration) {
	result := "down"
	if up {
		result = "up"
	}
	m.runsTotal.WithLabelValues(result).Inc()
	m.runDur.Observe(elapsed.Seconds())
	m.runUp.Set(boolGauge(up))
	m.lastRunTimestamp.SetToCurrentTime()
}

// IncReportError counts a failed persistence stage.
func (m *Metrics) IncReportError(stage string) {
	m.reportErrors.WithLabelValues(stage).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
