// Package observability exposes Prometheus metrics for the real-time layer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeOffline = "offline"
	OutcomeDropped = "dropped"
)

// Event results.
const (
	ResultOK      = "ok"
	ResultIgnored = "ignored"
	ResultError   = "error"
)

// Metrics tracks connection, session and fan-out activity.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// ConnectionsActive counts open real-time connections.
	ConnectionsActive prometheus.Gauge

	// SessionsAuthenticated counts connections bound to a user identity.
	SessionsAuthenticated prometheus.Gauge

	// EventsTotal counts inbound events.
	// Labels: event, result (ok|ignored|error)
	EventsTotal *prometheus.CounterVec

	// DeliveriesTotal counts outbound deliveries.
	// Labels: event, outcome (sent|offline|dropped)
	DeliveriesTotal *prometheus.CounterVec

	// VoiceParticipants counts users currently in any voice room.
	VoiceParticipants prometheus.Gauge

	// StoreCallDuration measures persistence calls made from the event path.
	// Labels: operation
	StoreCallDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "owndc_connections_active",
			Help: "Number of open real-time connections",
		}),
		SessionsAuthenticated: f.NewGauge(prometheus.GaugeOpts{
			Name: "owndc_sessions_authenticated",
			Help: "Number of connections bound to a user",
		}),
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "owndc_events_total",
			Help: "Inbound real-time events by type and result",
		}, []string{"event", "result"}),
		DeliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "owndc_deliveries_total",
			Help: "Outbound event deliveries by type and outcome",
		}, []string{"event", "outcome"}),
		VoiceParticipants: f.NewGauge(prometheus.GaugeOpts{
			Name: "owndc_voice_participants",
			Help: "Users currently joined to a voice room",
		}),
		StoreCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "owndc_store_call_duration_seconds",
			Help:    "Duration of persistence calls made while handling events",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation"}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

func (m *Metrics) SessionAuthenticated() {
	if m == nil {
		return
	}
	m.SessionsAuthenticated.Inc()
}

func (m *Metrics) SessionReleased() {
	if m == nil {
		return
	}
	m.SessionsAuthenticated.Dec()
}

func (m *Metrics) Event(event, result string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(event, result).Inc()
}

func (m *Metrics) Delivery(event, outcome string) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) Deliveries(event, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DeliveriesTotal.WithLabelValues(event, outcome).Add(float64(n))
}

func (m *Metrics) VoiceJoined() {
	if m == nil {
		return
	}
	m.VoiceParticipants.Inc()
}

func (m *Metrics) VoiceLeft() {
	if m == nil {
		return
	}
	m.VoiceParticipants.Dec()
}

func (m *Metrics) ObserveStoreCall(op string, seconds float64) {
	if m == nil {
		return
	}
	m.StoreCallDuration.WithLabelValues(op).Observe(seconds)
}
