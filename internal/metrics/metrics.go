// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SessionJoins         *prometheus.CounterVec
	AnalysisJobs         *prometheus.CounterVec
	CertificateAnalyses  *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec
	StaleJobsFailed      prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionJoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studygroup_session_joins_total",
			Help: "Session join attempts by outcome (joined, created, already_member, full, error).",
		}, []string{"outcome"}),
		AnalysisJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studygroup_analysis_jobs_total",
			Help: "Conversation analysis jobs by status (submitted, success, error).",
		}, []string{"status"}),
		CertificateAnalyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studygroup_certificate_analyses_total",
			Help: "Certificate classifications by outcome (verified, failed, no_text).",
		}, []string{"outcome"}),
		ProviderCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studygroup_llm_call_duration_seconds",
			Help:    "Language model call latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"provider", "outcome"}),
		StaleJobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studygroup_stale_jobs_failed_total",
			Help: "Jobs failed by the maintenance sweep after sitting in processing too long.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionJoins,
		m.AnalysisJobs,
		m.CertificateAnalyses,
		m.ProviderCallDuration,
		m.StaleJobsFailed,
	)
	return m
}

// ObserveProviderCall matches llm.Observer.
func (m *Metrics) ObserveProviderCall(provider string, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ProviderCallDuration.WithLabelValues(provider, outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
