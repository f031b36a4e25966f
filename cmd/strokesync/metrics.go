package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"strokesync/stroker"
)

// Metrics are the session's Prometheus instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ticks         prometheus.Counter
	commandsSent  prometheus.Counter
	sendErrors    prometheus.Counter
	limitRequests *prometheus.CounterVec
	position      *prometheus.GaugeVec
	sendLatency   prometheus.Histogram
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strokesync_ticks_total",
			Help: "Session ticks that produced device output.",
		}),
		commandsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strokesync_commands_sent_total",
			Help: "Per-axis commands delivered to the device.",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strokesync_send_errors_total",
			Help: "Device sends that failed and ended the session.",
		}),
		limitRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strokesync_limit_requests_total",
			Help: "Axis limit change requests by result.",
		}, []string{"result"}),
		position: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strokesync_axis_position",
			Help: "Last bounded output per axis, in [0, 1].",
		}, []string{"axis"}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "strokesync_send_latency_seconds",
			Help:    "Time spent in a single device send.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10),
		}),
	}

	reg.MustRegister(m.ticks, m.commandsSent, m.sendErrors, m.limitRequests, m.position, m.sendLatency)
	return m
}

func (m *Metrics) Tick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) Sent(commands int, took time.Duration) {
	if m == nil {
		return
	}
	m.commandsSent.Add(float64(commands))
	m.sendLatency.Observe(took.Seconds())
}

func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

func (m *Metrics) LimitRequest(accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	m.limitRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) Position(axis stroker.Axis, v float64) {
	if m == nil {
		return
	}
	m.position.WithLabelValues(string(axis)).Set(v)
}
