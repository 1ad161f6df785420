// Package metrics exposes Prometheus collectors for the chat service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery outcomes for best-effort pushes to live channels.
const (
	DeliveryDelivered = "delivered"
	DeliveryOffline   = "offline"
	DeliveryDropped   = "dropped"
)

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	connections  prometheus.Gauge
	messagesSent *prometheus.CounterVec
	events       *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec

	reg *prometheus.Registry
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "careline",
			Subsystem: "realtime",
			Name:      "connections_active",
			Help:      "Open websocket connections.",
		}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careline",
			Subsystem: "chat",
			Name:      "messages_sent_total",
			Help:      "Messages persisted, by surface.",
		}, []string{"surface"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careline",
			Subsystem: "realtime",
			Name:      "events_received_total",
			Help:      "Inbound websocket events, by name.",
		}, []string{"event"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careline",
			Subsystem: "realtime",
			Name:      "deliveries_total",
			Help:      "Best-effort pushes to live channels, by outcome.",
		}, []string{"result"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "careline",
			Subsystem: "store",
			Name:      "operation_seconds",
			Help:      "Latency of store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
		reg: reg,
	}
	reg.MustRegister(m.connections, m.messagesSent, m.events, m.deliveries, m.storeLatency)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// TrackOnlineUsers exports count as the number of users with a live
// connection, sampled at scrape time.
func (m *Metrics) TrackOnlineUsers(count func() int) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "careline",
		Subsystem: "presence",
		Name:      "online_users",
		Help:      "Users with a registered live connection.",
	}, func() float64 { return float64(count()) }))
}

// ConnectionOpened counts an accepted websocket connection, including ones
// later superseded by a reconnect.
func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

// ConnectionClosed counts a websocket connection going away.
func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

// MessageSent counts a persisted message by the surface it arrived on.
func (m *Metrics) MessageSent(surface string) {
	if m != nil {
		m.messagesSent.WithLabelValues(surface).Inc()
	}
}

// EventReceived counts an inbound websocket event by name.
func (m *Metrics) EventReceived(name string) {
	if m != nil {
		m.events.WithLabelValues(name).Inc()
	}
}

// Delivery counts a push to a live channel by outcome.
func (m *Metrics) Delivery(result string) {
	if m != nil {
		m.deliveries.WithLabelValues(result).Inc()
	}
}

// ObserveStore records how long op took since start.
func (m *Metrics) ObserveStore(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.storeLatency.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}
