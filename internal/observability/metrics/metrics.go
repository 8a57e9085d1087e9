package metrics

import "github.com/prometheus/client_golang/prometheus"

// CallMetrics exposes counters/histograms for the call engine.
type CallMetrics struct {
	dispatchTotal  *prometheus.CounterVec
	webhookTotal   *prometheus.CounterVec
	synthesisTotal *prometheus.CounterVec
	turnLatency    *prometheus.HistogramVec
	callDuration   prometheus.Histogram
	activeSessions prometheus.Gauge
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxdial",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Dispatch outcomes by result",
		}, []string{"outcome"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxdial",
			Subsystem: "webhooks",
			Name:      "events_total",
			Help:      "Carrier webhook events by kind and result",
		}, []string{"kind", "status"}),
		synthesisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxdial",
			Subsystem: "audio",
			Name:      "render_total",
			Help:      "Audio renders by fallback tier",
		}, []string{"tier"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voxdial",
			Subsystem: "session",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end latency of one conversation turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voxdial",
			Subsystem: "calls",
			Name:      "duration_seconds",
			Help:      "Completed call duration",
			Buckets:   []float64{15, 30, 60, 120, 300, 600, 1200},
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxdial",
			Subsystem: "session",
			Name:      "active",
			Help:      "Live in-memory call sessions",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.dispatchTotal,
		m.webhookTotal,
		m.synthesisTotal,
		m.turnLatency,
		m.callDuration,
		m.activeSessions,
	)
	return m
}

func (m *CallMetrics) ObserveDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(outcome).Inc()
}

func (m *CallMetrics) ObserveWebhook(kind, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(kind, status).Inc()
}

func (m *CallMetrics) ObserveSynthesisTier(tier string) {
	if m == nil {
		return
	}
	m.synthesisTotal.WithLabelValues(tier).Inc()
}

func (m *CallMetrics) ObserveTurnLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *CallMetrics) ObserveCallDuration(seconds float64) {
	if m == nil {
		return
	}
	m.callDuration.Observe(seconds)
}

func (m *CallMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
