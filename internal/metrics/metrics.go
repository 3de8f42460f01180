// Package metrics exposes synchronization counters to Prometheus.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tOgg1/chatsync/internal/models"
)

const namespace = "chatsync"

// Metrics implements the poller, read-state and channel observers.
type Metrics struct {
	registry *prometheus.Registry

	pollTicks   *prometheus.CounterVec
	pollChanges *prometheus.CounterVec
	pollErrors  *prometheus.CounterVec
	markReads   *prometheus.CounterVec
	sends       *prometheus.CounterVec
	badge       prometheus.Gauge
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Completed poll fetches by subscription kind.",
		}, []string{"subscription"}),
		pollChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_changes_total",
			Help:      "Poll fetches whose fingerprint changed.",
		}, []string{"subscription"}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Failed poll fetches.",
		}, []string{"subscription"}),
		markReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mark_read_total",
			Help:      "Mark-all-read requests by thread kind and result.",
		}, []string{"kind", "result"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Message sends by thread kind and result.",
		}, []string{"kind", "result"}),
		badge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unread_total",
			Help:      "Current combined unread badge.",
		}),
	}
	m.registry.MustRegister(m.pollTicks, m.pollChanges, m.pollErrors, m.markReads, m.sends, m.badge)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTick records one poll outcome. Per-room subscription names are
// collapsed to their kind to bound label cardinality.
func (m *Metrics) ObserveTick(name string, changed bool, err error) {
	sub := subscriptionLabel(name)
	m.pollTicks.WithLabelValues(sub).Inc()
	if err != nil {
		m.pollErrors.WithLabelValues(sub).Inc()
		return
	}
	if changed {
		m.pollChanges.WithLabelValues(sub).Inc()
	}
}

// ObserveMarkRead records one mark-all-read outcome.
func (m *Metrics) ObserveMarkRead(ref models.ThreadRef, err error) {
	m.markReads.WithLabelValues(string(ref.Kind), result(err)).Inc()
}

// ObserveSend records one send outcome.
func (m *Metrics) ObserveSend(ref models.ThreadRef, err error) {
	m.sends.WithLabelValues(string(ref.Kind), result(err)).Inc()
}

// SetBadge records the current badge total.
func (m *Metrics) SetBadge(total int) {
	m.badge.Set(float64(total))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// subscriptionLabel maps "room:group:abc" to "room:group".
func subscriptionLabel(name string) string {
	parts := strings.SplitN(name, ":", 3)
	if len(parts) == 3 {
		return parts[0] + ":" + parts[1]
	}
	return name
}
