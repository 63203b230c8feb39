package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/iodriver/errors"
)

func newTestCounter(name string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "iodriver",
		Name:      name,
		Help:      "test counter",
	})
}

func TestRegisterCounter(t *testing.T) {
	registry := NewRegistry()
	err := registry.RegisterCounter("driver-a", "rx_bytes", newTestCounter("rx_bytes_total"))
	require.NoError(t, err)
}

func TestRegisterDuplicateKeyFails(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.RegisterCounter("driver-a", "rx", newTestCounter("rx_total")))

	err := registry.RegisterCounter("driver-a", "rx", newTestCounter("rx2_total"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestRegisterPrometheusConflict(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.RegisterCounter("driver-a", "rx", newTestCounter("rx_total")))

	// same prometheus name under a different registry key
	err := registry.RegisterCounter("driver-b", "rx", newTestCounter("rx_total"))
	require.Error(t, err)
}

func TestUnregister(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.RegisterCounter("driver-a", "rx", newTestCounter("rx_total")))

	assert.True(t, registry.Unregister("driver-a", "rx"))
	assert.False(t, registry.Unregister("driver-a", "rx"))

	// the slot is free again
	require.NoError(t, registry.RegisterCounter("driver-a", "rx", newTestCounter("rx_total")))
}

func TestRegisterGauge(t *testing.T) {
	registry := NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "iodriver",
		Name:      "queued_bytes",
		Help:      "test gauge",
	})
	require.NoError(t, registry.RegisterGauge("driver-a", "queued", gauge))
}
