// Package metrics exposes Prometheus collectors for ingestion and derivation.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reading outcomes.
const (
	ResultAccepted  = "accepted"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
)

type Metrics struct {
	readings *prometheus.CounterVec
	credits  *prometheus.CounterVec
	alerts   *prometheus.CounterVec
	notify   *prometheus.CounterVec
	duration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emission",
			Name:      "readings_total",
			Help:      "Readings processed, by result.",
		}, []string{"result"}),
		credits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emission",
			Name:      "credits_created_total",
			Help:      "Credits derived, by status.",
		}, []string{"status"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emission",
			Name:      "alerts_created_total",
			Help:      "Alerts raised, by severity.",
		}, []string{"severity"}),
		notify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emission",
			Name:      "alert_notifications_total",
			Help:      "Operator notifications, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "emission",
			Name:      "derivation_duration_seconds",
			Help:      "Time spent in one derivation transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
	reg.MustRegister(m.readings, m.credits, m.alerts, m.notify, m.duration)
	return m
}

func (m *Metrics) Reading(result string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(result).Inc()
}

func (m *Metrics) Credit(status string) {
	if m == nil {
		return
	}
	m.credits.WithLabelValues(status).Inc()
}

func (m *Metrics) Alert(severity string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(severity).Inc()
}

func (m *Metrics) Notification(outcome string) {
	if m == nil {
		return
	}
	m.notify.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Derivation(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
