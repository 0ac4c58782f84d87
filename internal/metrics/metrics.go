// Package metrics holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	setupTokensIssued   prometheus.Counter
	contactAuthAttempts *prometheus.CounterVec
	emailsStaged        prometheus.Counter
	emailsRelayed       *prometheus.CounterVec
	uploadAttempts      *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		setupTokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safecircle_setup_tokens_issued_total",
			Help: "Setup tokens issued to trusted contacts.",
		}),
		contactAuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safecircle_contact_auth_total",
			Help: "Contact authorization completions by result.",
		}, []string{"result"}),
		emailsStaged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safecircle_pending_emails_staged_total",
			Help: "Setup emails staged for delivery.",
		}),
		emailsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safecircle_pending_emails_relayed_total",
			Help: "Pending emails delivered by the SMTP relay by result.",
		}, []string{"result"}),
		uploadAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safecircle_evidence_upload_attempts_total",
			Help: "Evidence upload attempts by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safecircle_http_requests_total",
			Help: "HTTP requests by method and status.",
		}, []string{"method", "status"}),
	}
	reg.MustRegister(
		m.setupTokensIssued,
		m.contactAuthAttempts,
		m.emailsStaged,
		m.emailsRelayed,
		m.uploadAttempts,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetupTokenIssued() {
	if m == nil {
		return
	}
	m.setupTokensIssued.Inc()
}

func (m *Metrics) ContactAuth(result string) {
	if m == nil {
		return
	}
	m.contactAuthAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) EmailStaged() {
	if m == nil {
		return
	}
	m.emailsStaged.Inc()
}

func (m *Metrics) EmailRelayed(result string) {
	if m == nil {
		return
	}
	m.emailsRelayed.WithLabelValues(result).Inc()
}

func (m *Metrics) UploadAttempt(result string) {
	if m == nil {
		return
	}
	m.uploadAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) HTTPRequest(method string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
