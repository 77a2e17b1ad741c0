package tracez

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by a BatchProcessor.
type Metrics struct {
	SpansExported prometheus.Counter
	SpansDropped  prometheus.Counter
	ExportBatches *prometheus.CounterVec
	QueueLength   prometheus.Gauge
}

// NewMetrics creates the processor metrics and registers them with reg.
// A nil registerer creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SpansExported: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracez_spans_exported_total",
			Help: "Total number of spans delivered to the collector",
		}),
		SpansDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracez_spans_dropped_total",
			Help: "Total number of spans dropped because of a full queue, a failed export or shutdown",
		}),
		ExportBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracez_export_batches_total",
			Help: "Total number of export attempts by result",
		}, []string{"result"}),
		QueueLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tracez_queue_length",
			Help: "Number of finished spans waiting for export",
		}),
	}
}

func (m *Metrics) exported(n int) {
	if m == nil {
		return
	}
	m.SpansExported.Add(float64(n))
	m.ExportBatches.WithLabelValues("success").Inc()
}

func (m *Metrics) failed() {
	if m == nil {
		return
	}
	m.ExportBatches.WithLabelValues("failure").Inc()
}

func (m *Metrics) dropped(n int) {
	if m == nil {
		return
	}
	m.SpansDropped.Add(float64(n))
}

func (m *Metrics) queueLength(n int) {
	if m == nil {
		return
	}
	m.QueueLength.Set(float64(n))
}
