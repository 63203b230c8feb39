package driver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/iodriver/metric"
)

// driverMetrics holds Prometheus metrics mirroring the driver statistics.
type driverMetrics struct {
	goodRxBytes prometheus.Counter
	badRxBytes  prometheus.Counter
	txBytes     prometheus.Counter
	queuedBytes prometheus.Gauge
}

// newDriverMetrics creates and registers driver metrics with the provided
// registry.
func newDriverMetrics(registry *metric.Registry, name string) (*driverMetrics, error) {
	m := &driverMetrics{
		goodRxBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "iodriver",
			Subsystem:   "driver",
			Name:        "good_rx_bytes_total",
			ConstLabels: prometheus.Labels{"driver": name},
			Help:        "Bytes recognized as packets by the extractor",
		}),
		badRxBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "iodriver",
			Subsystem:   "driver",
			Name:        "bad_rx_bytes_total",
			ConstLabels: prometheus.Labels{"driver": name},
			Help:        "Bytes discarded as junk by the extractor",
		}),
		txBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "iodriver",
			Subsystem:   "driver",
			Name:        "tx_bytes_total",
			ConstLabels: prometheus.Labels{"driver": name},
			Help:        "Bytes successfully written to the stream",
		}),
		queuedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "iodriver",
			Subsystem:   "driver",
			Name:        "queued_bytes",
			ConstLabels: prometheus.Labels{"driver": name},
			Help:        "Unparsed bytes currently held in the internal buffer",
		}),
	}

	if err := registry.RegisterCounter(name, "good_rx_bytes", m.goodRxBytes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(name, "bad_rx_bytes", m.badRxBytes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(name, "tx_bytes", m.txBytes); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(name, "queued_bytes", m.queuedBytes); err != nil {
		return nil, err
	}
	return m, nil
}

// recordRx tracks packet extraction results.
func (m *driverMetrics) recordRx(good, bad, queued int) {
	if good > 0 {
		m.goodRxBytes.Add(float64(good))
	}
	if bad > 0 {
		m.badRxBytes.Add(float64(bad))
	}
	m.queuedBytes.Set(float64(queued))
}

// recordTx tracks completed writes.
func (m *driverMetrics) recordTx(n int) {
	m.txBytes.Add(float64(n))
}
