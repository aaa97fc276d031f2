// Package prometheus exposes the engine's operational metrics: solver
// outcomes, run lifecycle, cache behavior, and the enhancement chain's tier
// and breaker activity.  Components observe through small interfaces; the
// client_golang registry stays inside this package.
package prometheus

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
)

// MetricsCollector registers metrics against a private registry and serves
// them over HTTP.  Registration failures degrade to no-op instruments
// instead of panicking: a metrics bug must never take the engine down.
type MetricsCollector interface {
	RegisterCounter(name, help string, labels ...string) CounterVec
	RegisterGauge(name, help string, labels ...string) GaugeVec
	RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec
	Handler() http.Handler
}

// CounterVec wraps prometheus.CounterVec.
type CounterVec interface {
	WithLabelValues(lvs ...string) Counter
}

// Counter wraps prometheus.Counter.
type Counter interface {
	Inc()
	Add(delta float64)
}

// GaugeVec wraps prometheus.GaugeVec.
type GaugeVec interface {
	WithLabelValues(lvs ...string) Gauge
}

// Gauge wraps prometheus.Gauge.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
}

// HistogramVec wraps prometheus.HistogramVec.
type HistogramVec interface {
	WithLabelValues(lvs ...string) Histogram
}

// Histogram wraps prometheus.Histogram.
type Histogram interface {
	Observe(value float64)
}

// CollectorConfig holds collector parameters.
type CollectorConfig struct {
	Namespace            string
	Subsystem            string
	EnableProcessMetrics bool
	EnableGoMetrics      bool
	ConstLabels          map[string]string
}

type promCollector struct {
	registry   *prometheus.Registry
	cfg        CollectorConfig
	registered map[string]prometheus.Collector
	mu         sync.Mutex
	logger     logging.Logger
}

// NewMetricsCollector builds a collector with its own registry.
func NewMetricsCollector(cfg CollectorConfig, log logging.Logger) (MetricsCollector, error) {
	if cfg.Namespace == "" {
		return nil, errors.New(errors.ErrCodeValidation, "metrics namespace required")
	}

	registry := prometheus.NewRegistry()
	if cfg.EnableProcessMetrics {
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{
			Namespace: cfg.Namespace,
		}))
	}
	if cfg.EnableGoMetrics {
		registry.MustRegister(prometheus.NewGoCollector())
	}

	return &promCollector{
		registry:   registry,
		cfg:        cfg,
		registered: make(map[string]prometheus.Collector),
		logger:     log.Named("metrics"),
	}, nil
}

func (c *promCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// register deduplicates by fully-qualified name so a component constructed
// twice shares one instrument.
func (c *promCollector) register(name string, collector prometheus.Collector) (prometheus.Collector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fqName := prometheus.BuildFQName(c.cfg.Namespace, c.cfg.Subsystem, name)
	if existing, ok := c.registered[fqName]; ok {
		return existing, nil
	}
	if err := c.registry.Register(collector); err != nil {
		return nil, err
	}
	c.registered[fqName] = collector
	return collector, nil
}

func (c *promCollector) RegisterCounter(name, help string, labels ...string) CounterVec {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   c.cfg.Namespace,
		Subsystem:   c.cfg.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.cfg.ConstLabels,
	}, labels)

	registered, err := c.register(name, vec)
	if err != nil {
		c.logger.Error("failed to register counter",
			logging.String("name", name), logging.Err(err))
		return noopCounterVec{}
	}
	if v, ok := registered.(*prometheus.CounterVec); ok {
		return counterVec{vec: v}
	}
	return noopCounterVec{}
}

func (c *promCollector) RegisterGauge(name, help string, labels ...string) GaugeVec {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   c.cfg.Namespace,
		Subsystem:   c.cfg.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.cfg.ConstLabels,
	}, labels)

	registered, err := c.register(name, vec)
	if err != nil {
		c.logger.Error("failed to register gauge",
			logging.String("name", name), logging.Err(err))
		return noopGaugeVec{}
	}
	if v, ok := registered.(*prometheus.GaugeVec); ok {
		return gaugeVec{vec: v}
	}
	return noopGaugeVec{}
}

func (c *promCollector) RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec {
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   c.cfg.Namespace,
		Subsystem:   c.cfg.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.cfg.ConstLabels,
		Buckets:     buckets,
	}, labels)

	registered, err := c.register(name, vec)
	if err != nil {
		c.logger.Error("failed to register histogram",
			logging.String("name", name), logging.Err(err))
		return noopHistogramVec{}
	}
	if v, ok := registered.(*prometheus.HistogramVec); ok {
		return histogramVec{vec: v}
	}
	return noopHistogramVec{}
}

// ─────────────────────────────────────────────────────────────────────────────
// prometheus-backed instruments
// ─────────────────────────────────────────────────────────────────────────────

type counterVec struct{ vec *prometheus.CounterVec }

func (v counterVec) WithLabelValues(lvs ...string) Counter {
	return v.vec.WithLabelValues(lvs...)
}

type gaugeVec struct{ vec *prometheus.GaugeVec }

func (v gaugeVec) WithLabelValues(lvs ...string) Gauge {
	return v.vec.WithLabelValues(lvs...)
}

type histogramVec struct{ vec *prometheus.HistogramVec }

func (v histogramVec) WithLabelValues(lvs ...string) Histogram {
	return v.vec.WithLabelValues(lvs...)
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op instruments
// ─────────────────────────────────────────────────────────────────────────────

type noopCounterVec struct{}

func (noopCounterVec) WithLabelValues(...string) Counter { return noopCounter{} }

type noopCounter struct{}

func (noopCounter) Inc()        {}
func (noopCounter) Add(float64) {}

type noopGaugeVec struct{}

func (noopGaugeVec) WithLabelValues(...string) Gauge { return noopGauge{} }

type noopGauge struct{}

func (noopGauge) Set(float64) {}
func (noopGauge) Inc()        {}
func (noopGauge) Dec()        {}

type noopHistogramVec struct{}

func (noopHistogramVec) WithLabelValues(...string) Histogram { return noopHistogram{} }

type noopHistogram struct{}

func (noopHistogram) Observe(float64) {}

// Timer observes elapsed time into a histogram.
type Timer struct {
	histogram Histogram
	start     time.Time
}

// NewTimer starts a timer against histogram.
func NewTimer(histogram Histogram) *Timer {
	return &Timer{histogram: histogram, start: time.Now()}
}

// ObserveDuration records the elapsed seconds.
func (t *Timer) ObserveDuration() {
	if t.histogram == nil {
		return
	}
	t.histogram.Observe(time.Since(t.start).Seconds())
}
