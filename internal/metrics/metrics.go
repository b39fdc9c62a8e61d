// Package metrics holds the Prometheus collectors for access decisions,
// commands, free-tier charging and expiry sweeps. A nil *Collector is valid
// and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	decisions     *prometheus.CounterVec
	commands      *prometheus.CounterVec
	usageSeconds  *prometheus.CounterVec
	sweepRemoved  prometheus.Counter
	sweepFailures prometheus.Counter
	sweepDuration prometheus.Histogram
	deliveries    *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates a collector backed by its own registry, including the Go and
// process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_access_decisions_total",
				Help: "Access decisions by granting reason",
			},
			[]string{"reason"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_commands_total",
				Help: "Bot commands handled by name and outcome",
			},
			[]string{"command", "outcome"},
		),
		usageSeconds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_free_tier_seconds_total",
				Help: "Free-tier seconds charged",
			},
			[]string{"bot"},
		),
		sweepRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_sweep_removed_total",
			Help: "Expired subscriptions removed by the sweeper",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_sweep_failures_total",
			Help: "Expired subscriptions the sweeper failed to remove",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_sweep_duration_seconds",
			Help:    "Duration of expiry sweeps",
			Buckets: prometheus.DefBuckets,
		}),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_notifications_total",
				Help: "Notification attempts by outcome",
			},
			[]string{"outcome"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
	}

	c.registry.MustRegister(
		c.decisions, c.commands, c.usageSeconds,
		c.sweepRemoved, c.sweepFailures, c.sweepDuration,
		c.deliveries, c.httpRequests, c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Decision(reason string) {
	if c == nil {
		return
	}
	c.decisions.WithLabelValues(reason).Inc()
}

func (c *Collector) Command(name, outcome string) {
	if c == nil {
		return
	}
	c.commands.WithLabelValues(name, outcome).Inc()
}

func (c *Collector) UsageCharged(bot string, seconds int) {
	if c == nil || seconds <= 0 {
		return
	}
	c.usageSeconds.WithLabelValues(bot).Add(float64(seconds))
}

func (c *Collector) Sweep(removed, failures int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.sweepRemoved.Add(float64(removed))
	c.sweepFailures.Add(float64(failures))
	c.sweepDuration.Observe(elapsed.Seconds())
}

func (c *Collector) Notification(outcome string) {
	if c == nil {
		return
	}
	c.deliveries.WithLabelValues(outcome).Inc()
}

func (c *Collector) HTTPRequest(path, method string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(path, method, http.StatusText(status)).Inc()
	c.httpDuration.WithLabelValues(path, method).Observe(elapsed.Seconds())
}
