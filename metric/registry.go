// Package metric manages the registration and lifecycle of Prometheus
// metrics for driver instances. Metrics are namespaced per driver so several
// drivers can share one registry, and duplicate registrations are detected
// before they reach Prometheus.
package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/iodriver/errors"
)

// Registrar defines the interface for registering driver-specific metrics.
type Registrar interface {
	RegisterCounter(driverName, metricName string, counter prometheus.Counter) error
	RegisterGauge(driverName, metricName string, gauge prometheus.Gauge) error
	Unregister(driverName, metricName string) bool
}

// Registry manages the registration and lifecycle of metrics.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewRegistry creates an empty metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		prometheusRegistry: prometheus.NewRegistry(),
		registeredMetrics:  make(map[string]prometheus.Collector),
	}
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// RegisterCounter registers a counter metric for a driver.
func (r *Registry) RegisterCounter(driverName, metricName string, counter prometheus.Counter) error {
	return r.register(driverName, metricName, counter)
}

// RegisterGauge registers a gauge metric for a driver.
func (r *Registry) RegisterGauge(driverName, metricName string, gauge prometheus.Gauge) error {
	return r.register(driverName, metricName, gauge)
}

func (r *Registry) register(driverName, metricName string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", driverName, metricName)

	if _, exists := r.registeredMetrics[key]; exists {
		return errors.Invalidf("metric.Register",
			"metric %s already registered for driver %s", metricName, driverName)
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.Invalidf("metric.Register",
				"prometheus conflict for metric %s: %s", metricName, err)
		}
		return fmt.Errorf("failed to register %s with prometheus: %w", key, err)
	}

	r.registeredMetrics[key] = collector
	return nil
}

// Unregister removes a metric from the registry.
func (r *Registry) Unregister(driverName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", driverName, metricName)

	collector, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}

	success := r.prometheusRegistry.Unregister(collector)
	if success {
		delete(r.registeredMetrics, key)
	}
	return success
}
