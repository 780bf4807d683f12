package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics exposes counters/histograms for the patient store and its persistence writes.
type StoreMetrics struct {
	mutationsTotal  *prometheus.CounterVec
	persistTotal    *prometheus.CounterVec
	persistLatency  *prometheus.HistogramVec
	rejectedRecords *prometheus.CounterVec
}

func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		mutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "store",
			Name:      "mutations_total",
			Help:      "Total successful in-memory mutations by operation",
		}, []string{"op"}),
		persistTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "store",
			Name:      "persist_total",
			Help:      "Total collection writes by outcome",
		}, []string{"collection", "status"}),
		persistLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "store",
			Name:      "persist_latency_seconds",
			Help:      "Latency of collection writes",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection"}),
		rejectedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "store",
			Name:      "rejected_records_total",
			Help:      "Stored records dropped by schema validation on load",
		}, []string{"collection"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.mutationsTotal, m.persistTotal, m.persistLatency, m.rejectedRecords)
	return m
}

func (m *StoreMetrics) ObserveMutation(op string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(op).Inc()
}

// ObservePersist matches persistence.SaveObserver.
func (m *StoreMetrics) ObservePersist(collection string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.persistTotal.WithLabelValues(collection, status).Inc()
	m.persistLatency.WithLabelValues(collection).Observe(elapsed.Seconds())
}

func (m *StoreMetrics) ObserveRejected(collection string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.rejectedRecords.WithLabelValues(collection).Add(float64(count))
}

// AssistantMetrics tracks LLM-backed summary and triage calls.
type AssistantMetrics struct {
	requestsTotal *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

func NewAssistantMetrics(reg prometheus.Registerer) *AssistantMetrics {
	m := &AssistantMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "assistant",
			Name:      "requests_total",
			Help:      "Total assistant requests by kind and outcome",
		}, []string{"kind", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "assistant",
			Name:      "latency_seconds",
			Help:      "Latency of assistant requests including the upstream model call",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45},
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.latency)
	return m
}

func (m *AssistantMetrics) Observe(kind, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(kind, status).Inc()
	m.latency.WithLabelValues(kind).Observe(elapsed.Seconds())
}
