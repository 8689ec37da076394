// Package metrics holds the process's Prometheus collectors. A Metrics is
// built in main and passed to whatever records into it.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	WebhooksTotal       *prometheus.CounterVec
	EventsAdmitted      *prometheus.CounterVec
	StageOutcomes       *prometheus.CounterVec
	LLMCallDuration     *prometheus.HistogramVec

	requestsServed atomic.Int64
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appeal_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appeal_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		WebhooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appeal_webhooks_total",
				Help: "Inbound webhooks by source and result",
			},
			[]string{"source", "result"},
		),
		EventsAdmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appeal_payment_events_total",
				Help: "Payment events offered to the deduplicator, by admission",
			},
			[]string{"admission"},
		),
		StageOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appeal_stage_outcomes_total",
				Help: "Pipeline stage outcomes",
			},
			[]string{"stage", "outcome"},
		),
		LLMCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appeal_llm_call_duration_seconds",
				Help:    "Language model call duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
			},
			[]string{"provider"},
		),
	}
	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WebhooksTotal,
		m.EventsAdmitted,
		m.StageOutcomes,
		m.LLMCallDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RequestServed counts one handled HTTP request.
func (m *Metrics) RequestServed() { m.requestsServed.Add(1) }

// RequestsServed is the number of HTTP requests handled since start.
func (m *Metrics) RequestsServed() int64 { return m.requestsServed.Load() }

// Stage records a pipeline stage outcome.
func (m *Metrics) Stage(stage, outcome string) {
	m.StageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// LLMCall records one model call.
func (m *Metrics) LLMCall(provider string, d time.Duration) {
	m.LLMCallDuration.WithLabelValues(provider).Observe(d.Seconds())
}
