package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of the messaging core. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	connections      prometheus.Gauge
	onlineUsers      prometheus.Gauge
	eventsBroadcast  *prometheus.CounterVec
	deliveryFailures prometheus.Counter
	cryptoRequests   *prometheus.CounterVec
	cryptoLatency    *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "freecord",
			Name:      "ws_connections",
			Help:      "Number of open websocket connections.",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "freecord",
			Name:      "online_users",
			Help:      "Number of users with at least one open connection.",
		}),
		eventsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freecord",
			Name:      "events_broadcast_total",
			Help:      "Events fanned out, by event type.",
		}, []string{"type"}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freecord",
			Name:      "delivery_failures_total",
			Help:      "Sends that failed and pruned their connection.",
		}),
		cryptoRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freecord",
			Name:      "crypto_requests_total",
			Help:      "Requests to the encryption service, by operation and result.",
		}, []string{"op", "result"}),
		cryptoLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "freecord",
			Name:      "crypto_request_duration_seconds",
			Help:      "Latency of encryption service requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.connections,
		m.onlineUsers,
		m.eventsBroadcast,
		m.deliveryFailures,
		m.cryptoRequests,
		m.cryptoLatency,
	)
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) SetOnlineUsers(n int) {
	if m != nil {
		m.onlineUsers.Set(float64(n))
	}
}

func (m *Metrics) EventBroadcast(eventType string) {
	if m != nil {
		m.eventsBroadcast.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) DeliveryFailed(n int) {
	if m != nil && n > 0 {
		m.deliveryFailures.Add(float64(n))
	}
}

func (m *Metrics) CryptoRequest(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cryptoRequests.WithLabelValues(op, result).Inc()
	m.cryptoLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
