// Package metrics содержит prometheus-метрики консоли: запросы шлюза по классам
// ответов, результаты опроса статуса и переходы состояния сессии.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics набор коллекторов консоли.
type Metrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	fetches     *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// New создаёт метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Backend requests by method and response class.",
		}, []string{"method", "class"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "console",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "poller",
			Name:      "status_fetches_total",
			Help:      "Connection status fetches by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions by target state.",
		}, []string{"state"}),
	}
	reg.MustRegister(m.requests, m.latency, m.fetches, m.transitions)
	return m
}

// ObserveRequest учитывает запрос шлюза.
func (m *Metrics) ObserveRequest(method, class string, duration time.Duration) {
	m.requests.WithLabelValues(method, class).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveFetch учитывает результат опроса статуса: applied, failed, dropped, skipped.
func (m *Metrics) ObserveFetch(result string) {
	m.fetches.WithLabelValues(result).Inc()
}

// ObserveTransition учитывает переход сессии в состояние state.
func (m *Metrics) ObserveTransition(state string) {
	m.transitions.WithLabelValues(state).Inc()
}
