package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for inbound message processing.
type PipelineMetrics struct {
	messagesTotal     *prometheus.CounterVec
	fallbacksTotal    prometheus.Counter
	statusAdvances    *prometheus.CounterVec
	processLatency    *prometheus.HistogramVec
	generationLatency prometheus.Histogram
	webhookTotal      *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telecom",
			Subsystem: "pipeline",
			Name:      "messages_total",
			Help:      "Inbound messages processed, by outcome",
		}, []string{"outcome"}),
		fallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telecom",
			Subsystem: "pipeline",
			Name:      "generation_fallbacks_total",
			Help:      "Replies that used the fixed fallback text",
		}),
		statusAdvances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telecom",
			Subsystem: "pipeline",
			Name:      "status_advances_total",
			Help:      "Automatic lead status transitions",
		}, []string{"from", "to"}),
		processLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telecom",
			Subsystem: "pipeline",
			Name:      "process_seconds",
			Help:      "End-to-end latency of one inbound message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "telecom",
			Subsystem: "pipeline",
			Name:      "generation_seconds",
			Help:      "Latency of reply generation calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telecom",
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Inbound webhook requests",
		}, []string{"channel", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.fallbacksTotal, m.statusAdvances, m.processLatency, m.generationLatency, m.webhookTotal)
	return m
}

// ObserveMessage records one processed message. outcome is "ok" or a failure class.
func (m *PipelineMetrics) ObserveMessage(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(outcome).Inc()
	m.processLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *PipelineMetrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.fallbacksTotal.Inc()
}

func (m *PipelineMetrics) ObserveStatusAdvance(from, to string) {
	if m == nil {
		return
	}
	m.statusAdvances.WithLabelValues(from, to).Inc()
}

func (m *PipelineMetrics) ObserveGeneration(seconds float64) {
	if m == nil {
		return
	}
	m.generationLatency.Observe(seconds)
}

func (m *PipelineMetrics) ObserveWebhook(channel, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(channel, status).Inc()
}
