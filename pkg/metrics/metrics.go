package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"

	"github.com/sunny-chung/hello-http-sub000/pkg/call"
	"github.com/sunny-chung/hello-http-sub000/pkg/exchange"
	"github.com/sunny-chung/hello-http-sub000/pkg/transport"
)

// DefaultBuckets covers call durations from 5ms to 60s.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Config configures a Collector.
type Config struct {
	// Namespace prefixes every metric name. Defaults to "hellohttp".
	Namespace string

	// DurationBuckets defaults to DefaultBuckets.
	DurationBuckets []float64

	// RuntimeMetrics adds the Go runtime and process collectors.
	RuntimeMetrics bool
}

// Collector records call metrics.
type Collector struct {
	registry *prometheus.Registry

	callsStarted    *prometheus.CounterVec
	callsCompleted  *prometheus.CounterVec
	activeCalls     *prometheus.GaugeVec
	callDuration    *prometheus.HistogramVec
	exchangeEntries *prometheus.CounterVec
}

var _ transport.Observer = (*Collector)(nil)

// New creates a Collector and registers it on registry. A nil registry
// gets a fresh one.
func New(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "hellohttp"
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = DefaultBuckets
	}

	c := &Collector{
		registry: registry,
		callsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "calls_started_total",
				Help:      "Total number of calls started",
			},
			[]string{"protocol"},
		),
		callsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "calls_completed_total",
				Help:      "Total number of calls completed, by outcome",
			},
			[]string{"protocol", "outcome"},
		),
		activeCalls: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "active_calls",
				Help:      "Number of calls in progress",
			},
			[]string{"protocol"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "call_duration_seconds",
				Help:      "Duration of calls in seconds, from connecting to completion",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"protocol"},
		),
		exchangeEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "exchange_entries_total",
				Help:      "Total number of raw exchange entries recorded",
			},
			[]string{"protocol", "direction"},
		),
	}

	registry.MustRegister(
		c.callsStarted,
		c.callsCompleted,
		c.activeCalls,
		c.callDuration,
		c.exchangeEntries,
	)
	if cfg.RuntimeMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

// Registry returns the registry the collector is registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CallStarted implements transport.Observer.
func (c *Collector) CallStarted(s *call.State) {
	c.callsStarted.WithLabelValues(s.Protocol).Inc()
	c.activeCalls.WithLabelValues(s.Protocol).Inc()
}

// CallFinished implements transport.Observer.
func (c *Collector) CallFinished(s *call.State, outcome transport.Outcome, d time.Duration) {
	c.activeCalls.WithLabelValues(s.Protocol).Dec()
	c.callsCompleted.WithLabelValues(s.Protocol, string(outcome)).Inc()
	if d > 0 {
		c.callDuration.WithLabelValues(s.Protocol).Observe(d.Seconds())
	}

	counts := make(map[exchange.Direction]int)
	for _, e := range s.Exchange().Entries() {
		counts[e.Direction]++
	}
	for dir, n := range counts {
		c.exchangeEntries.WithLabelValues(s.Protocol, dir.String()).Add(float64(n))
	}
}

// WriteText writes every gathered metric family in the Prometheus text
// exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
