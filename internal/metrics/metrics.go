// Package metrics exposes application counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry      *prometheus.Registry
	loginAttempts *prometheus.CounterVec
	qrCodes       *prometheus.CounterVec
	rosterChanges *prometheus.CounterVec
}

// New registers the application counters on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memberqr_login_attempts_total",
			Help: "Password checks by scope and outcome.",
		}, []string{"scope", "outcome"}),
		qrCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memberqr_qr_codes_total",
			Help: "QR login codes generated or skipped.",
		}, []string{"outcome"}),
		rosterChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memberqr_roster_changes_total",
			Help: "Roster mutations by action.",
		}, []string{"action"}),
	}
	reg.MustRegister(
		m.loginAttempts,
		m.qrCodes,
		m.rosterChanges,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) LoginAttempt(scope, outcome string) {
	m.loginAttempts.WithLabelValues(scope, outcome).Inc()
}

func (m *Metrics) QRCodes(generated, skipped int) {
	m.qrCodes.WithLabelValues("generated").Add(float64(generated))
	m.qrCodes.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *Metrics) RosterChange(action string, n int) {
	m.rosterChanges.WithLabelValues(action).Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
