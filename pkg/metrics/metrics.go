// Package metrics holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chainsync"

type Metrics struct {
	registry *prometheus.Registry

	steps        *prometheus.CounterVec   // sync_type, outcome
	stepDuration *prometheus.HistogramVec // sync_type
	cursor       *prometheus.GaugeVec     // sync_type
	status       *prometheus.GaugeVec     // sync_type, status
	sinkWrites   *prometheus.CounterVec   // sink, table, result
	channelDrops *prometheus.CounterVec   // channel
}

func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "steps_total",
			Help:      "Ingestion steps by outcome",
		}, []string{"sync_type", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "step_duration_seconds",
			Help:      "Duration of one ingestion step",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"sync_type"}),
		cursor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cursor",
			Help:      "Next index to fetch",
		}, []string{"sync_type"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "status",
			Help:      "1 for the current status of each source",
		}, []string{"sync_type", "status"}),
		sinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "writes_total",
			Help:      "Records handled by sinks",
		}, []string{"sink", "table", "result"}),
		channelDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "send_errors_total",
			Help:      "Messages dropped because a channel was full or closed",
		}, []string{"channel"}),
	}

	collectors := []prometheus.Collector{
		m.steps, m.stepDuration, m.cursor, m.status, m.sinkWrites, m.channelDrops,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveStep(syncType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(syncType, outcome).Inc()
	m.stepDuration.WithLabelValues(syncType).Observe(d.Seconds())
}

func (m *Metrics) SetCursor(syncType string, idx uint64) {
	if m == nil {
		return
	}
	m.cursor.WithLabelValues(syncType).Set(float64(idx))
}

// SetStatus flags status as current and clears the others.
func (m *Metrics) SetStatus(syncType string, status string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == status {
			v = 1
		}
		m.status.WithLabelValues(syncType, s).Set(v)
	}
}

func (m *Metrics) SinkWrite(sink, table, result string) {
	if m == nil {
		return
	}
	m.sinkWrites.WithLabelValues(sink, table, result).Inc()
}

func (m *Metrics) ChannelDrop(channel string) {
	if m == nil {
		return
	}
	m.channelDrops.WithLabelValues(channel).Inc()
}
