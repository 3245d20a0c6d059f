// Package metrics provides Prometheus metrics for the publish pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"microblog/internal/domain"
)

const namespace = "microblog"

type Metrics struct {
	registry *prometheus.Registry

	// PublishTotal counts publish attempts by trigger (auto, manual) and result.
	PublishTotal *prometheus.CounterVec
	// OutcomesTotal counts per-target outcomes.
	OutcomesTotal *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PublishTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_total",
				Help:      "Total number of publish attempts",
			},
			[]string{"trigger", "result"},
		),
		OutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "target_outcomes_total",
				Help:      "Total number of per-target publish outcomes",
			},
			[]string{"target", "status"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Number of entries waiting in the queue",
			},
		),
	}
}

func (m *Metrics) ObservePublish(trigger, result string) {
	m.PublishTotal.WithLabelValues(trigger, result).Inc()
}

func (m *Metrics) ObserveOutcomes(outcomes domain.Outcomes) {
	for target, out := range outcomes {
		status := "success"
		if !out.Success {
			status = "failure"
		}
		m.OutcomesTotal.WithLabelValues(string(target), status).Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
