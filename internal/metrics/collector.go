package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/diskvfs/diskvfs/internal/config"
	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/types"
)

// Collector records filesystem operations and stream traffic. It implements
// types.OperationRecorder and types.StreamObserver.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	// Prometheus metrics
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorCounter      *prometheus.CounterVec
	streamBytes       *prometheus.CounterVec
	streamSize        *prometheus.HistogramVec
	componentHealth   *prometheus.GaugeVec

	// Internal tracking
	operations map[string]*OperationMetrics
	lastReset  time.Time
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
	Labels    map[string]string `yaml:"labels"`
}

// ConfigFromSettings converts the metrics section of the configuration file.
func ConfigFromSettings(settings config.MetricsConfig) *Config {
	return &Config{
		Enabled:   settings.Enabled,
		Namespace: settings.Namespace,
		Subsystem: settings.Subsystem,
		Labels:    make(map[string]string),
	}
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count         int64            `json:"count"`
	Errors        int64            `json:"errors"`
	TotalDuration time.Duration    `json:"total_duration"`
	AvgDuration   time.Duration    `json:"avg_duration"`
	LastOperation time.Time        `json:"last_operation"`
	LastErrorCode errors.ErrorCode `json:"last_error_code,omitempty"`
}

// NewCollector creates a new metrics collector
func NewCollector(cfg *Config) (*Collector, error) {
	if cfg == nil {
		cfg = &Config{
			Enabled:   true,
			Namespace: "diskvfs",
			Labels:    make(map[string]string),
		}
	}

	c := &Collector{
		config:     cfg,
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}
	if !cfg.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()
	c.initMetrics()
	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

// Enabled reports whether metrics are recorded.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Registry returns the Prometheus registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if !c.config.Enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordOperation records one completed filesystem operation.
func (c *Collector) RecordOperation(operation string, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}

	code := errors.CodeOf(err)
	if err != nil && code == "" {
		code = "UNCODED"
	}

	c.mu.Lock()
	metrics, exists := c.operations[operation]
	if !exists {
		metrics = &OperationMetrics{}
		c.operations[operation] = metrics
	}
	metrics.Count++
	metrics.TotalDuration += duration
	metrics.AvgDuration = time.Duration(int64(metrics.TotalDuration) / metrics.Count)
	metrics.LastOperation = time.Now()
	if err != nil {
		metrics.Errors++
		metrics.LastErrorCode = code
	}
	c.mu.Unlock()

	status := "success"
	if err != nil {
		status = "error"
	}
	c.operationCounter.With(prometheus.Labels{
		"operation": operation,
		"status":    status,
	}).Inc()
	c.operationDuration.With(prometheus.Labels{
		"operation": operation,
	}).Observe(duration.Seconds())

	if err != nil {
		c.errorCounter.With(prometheus.Labels{
			"operation": operation,
			"code":      string(code),
		}).Inc()
	}
}

// StreamClosed records the bytes moved by a stream over its lifetime.
func (c *Collector) StreamClosed(kind types.StreamKind, bytes int64) {
	if !c.config.Enabled {
		return
	}
	direction := string(kind)
	c.streamBytes.With(prometheus.Labels{"direction": direction}).Add(float64(bytes))
	c.streamSize.With(prometheus.Labels{"direction": direction}).Observe(float64(bytes))
}

// UpdateComponentHealth exports whether a health component currently accepts work.
func (c *Collector) UpdateComponentHealth(component string, available bool) {
	if !c.config.Enabled {
		return
	}
	value := 0.0
	if available {
		value = 1
	}
	c.componentHealth.With(prometheus.Labels{"component": component}).Set(value)
}

// GetMetrics returns a copy of the per-operation tracking.
func (c *Collector) GetMetrics() map[string]OperationMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		out[k] = *v
	}
	return out
}

// ResetMetrics resets the internal tracking. Prometheus counters keep counting.
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

func (c *Collector) initMetrics() {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: c.config.Labels,
		}
	}

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("operations_total", "Total number of filesystem operations")),
		[]string{"operation", "status"},
	)

	durationOpts := opts("operation_duration_seconds", "Duration of filesystem operations in seconds")
	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   durationOpts.Namespace,
			Subsystem:   durationOpts.Subsystem,
			Name:        durationOpts.Name,
			Help:        durationOpts.Help,
			ConstLabels: durationOpts.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3s
		},
		[]string{"operation"},
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("errors_total", "Total number of failed operations by error code")),
		[]string{"operation", "code"},
	)

	c.streamBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("stream_bytes_total", "Bytes moved through closed streams")),
		[]string{"direction"},
	)

	sizeOpts := opts("stream_size_bytes", "Bytes moved per stream")
	c.streamSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   sizeOpts.Namespace,
			Subsystem:   sizeOpts.Subsystem,
			Name:        sizeOpts.Name,
			Help:        sizeOpts.Help,
			ConstLabels: sizeOpts.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(1024, 2, 20), // 1KB to ~1GB
		},
		[]string{"direction"},
	)

	c.componentHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts(opts("component_available", "Whether a health component accepts work")),
		[]string{"component"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.errorCounter,
		c.streamBytes,
		c.streamSize,
		c.componentHealth,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

// DebugHandler renders the internal tracking as a plain text table.
func (c *Collector) DebugHandler() http.Handler {
	return http.HandlerFunc(c.debugOperationsHandler)
}

func (c *Collector) debugOperationsHandler(w http.ResponseWriter, _ *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("diskvfs operations summary\n")
	writef("==========================\n\n")
	writef("Since: %v (%v)\n\n", c.lastReset.Format(time.RFC3339), time.Since(c.lastReset).Round(time.Second))

	if len(c.operations) == 0 {
		writef("No operations recorded.\n")
		return
	}

	names := make([]string, 0, len(c.operations))
	for name := range c.operations {
		names = append(names, name)
	}
	sort.Strings(names)

	writef("%-20s %10s %10s %14s %s\n", "Operation", "Count", "Errors", "Avg Duration", "Last Error")
	writef("%-20s %10s %10s %14s %s\n", "---------", "-----", "------", "------------", "----------")
	for _, name := range names {
		op := c.operations[name]
		writef("%-20s %10d %10d %14v %s\n", name, op.Count, op.Errors, op.AvgDuration, op.LastErrorCode)
	}
}
