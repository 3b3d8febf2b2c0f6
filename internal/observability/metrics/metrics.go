package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "clinicdesk"

// HTTPMetrics records request counts and latency per route pattern.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration)
	return m
}

func (m *HTTPMetrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, status).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(seconds)
}

// DomainMetrics exposes counters/histograms for clinic workflows.
type DomainMetrics struct {
	searchLatency   *prometheus.HistogramVec
	seededRows      *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	outboxDelivered *prometheus.CounterVec
}

func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	m := &DomainMetrics{
		searchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "query_latency_seconds",
			Help:      "Latency of global search queries by category",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"category"}),
		seededRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "masterdata",
			Name:      "seeded_rows_total",
			Help:      "Reference rows inserted by seeders",
		}, []string{"unit"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "status_transitions_total",
			Help:      "Status transitions by entity, target status and outcome",
		}, []string{"entity", "to", "outcome"}),
		outboxDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "outbox_delivered_total",
			Help:      "Outbox events handed to downstream transports",
		}, []string{"type", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.searchLatency, m.seededRows, m.transitions, m.outboxDelivered)
	return m
}

func (m *DomainMetrics) ObserveSearch(category string, seconds float64) {
	if m == nil {
		return
	}
	m.searchLatency.WithLabelValues(category).Observe(seconds)
}

func (m *DomainMetrics) AddSeeded(unit string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.seededRows.WithLabelValues(unit).Add(float64(rows))
}

func (m *DomainMetrics) ObserveTransition(entity, to string, ok bool) {
	if m == nil {
		return
	}
	outcome := "applied"
	if !ok {
		outcome = "rejected"
	}
	m.transitions.WithLabelValues(entity, to, outcome).Inc()
}

func (m *DomainMetrics) ObserveDelivery(eventType string, err error) {
	if m == nil {
		return
	}
	status := "delivered"
	if err != nil {
		status = "failed"
	}
	m.outboxDelivered.WithLabelValues(eventType, status).Inc()
}
