// Package metrics collects and exposes Prometheus metrics for the reminder service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the bot, the dispatcher and the
// lifecycle engine.
type Recorder interface {
	RecordCommand(kind, outcome string)
	RecordNotification(window, result string)
	RecordTickSkipped()
	RecordTickDuration(d time.Duration)
}

// Collector records metrics into a Prometheus registry.
type Collector struct {
	commands      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	ticksSkipped  prometheus.Counter
	tickDuration  prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nhacnho_commands_total",
			Help: "Inbound commands by kind and outcome.",
		}, []string{"kind", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nhacnho_notifications_total",
			Help: "Outbound notifications by window and result.",
		}, []string{"window", "result"}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nhacnho_ticks_skipped_total",
			Help: "Lifecycle ticks skipped because the previous tick was still running.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nhacnho_tick_duration_seconds",
			Help:    "Duration of lifecycle ticks in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.commands,
		c.notifications,
		c.ticksSkipped,
		c.tickDuration,
	)

	return c
}

// RecordCommand counts a handled inbound command.
func (c *Collector) RecordCommand(kind, outcome string) {
	c.commands.WithLabelValues(kind, outcome).Inc()
}

// RecordNotification counts a dispatch attempt.
func (c *Collector) RecordNotification(window, result string) {
	c.notifications.WithLabelValues(window, result).Inc()
}

// RecordTickSkipped counts a tick that did not run.
func (c *Collector) RecordTickSkipped() {
	c.ticksSkipped.Inc()
}

// RecordTickDuration observes how long a tick took.
func (c *Collector) RecordTickDuration(d time.Duration) {
	c.tickDuration.Observe(d.Seconds())
}

// Nop discards every metric.
type Nop struct{}

func (Nop) RecordCommand(string, string)      {}
func (Nop) RecordNotification(string, string) {}
func (Nop) RecordTickSkipped()                {}
func (Nop) RecordTickDuration(time.Duration)  {}

// Handler returns the HTTP handler Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
