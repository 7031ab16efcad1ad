// Package metrics records storage round trips as Prometheus series.
package metrics

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/flashbackbot/filestore/internal/storage"
)

// StorageMetrics holds the collectors fed by storage.Observer calls.
type StorageMetrics struct {
	reg     *prometheus.Registry
	bytes   *prometheus.CounterVec
	ops     *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewStorageMetrics registers storage metrics on reg, labelled with the
// backend name. Collectors already registered for the same backend are
// reused, so several stores may share one registry.
func NewStorageMetrics(reg *prometheus.Registry, backend string) (*StorageMetrics, error) {
	labels := prometheus.Labels{"backend": backend}
	bytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "filestore",
		Subsystem:   "storage",
		Name:        "bytes_total",
		Help:        "Total bytes sent to the storage backend.",
		ConstLabels: labels,
	}, []string{"op"})
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "filestore",
		Subsystem:   "storage",
		Name:        "ops_total",
		Help:        "Total number of backend round trips by result.",
		ConstLabels: labels,
	}, []string{"op", "result"}) // result = "ok" | "not_found" | "error"
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "filestore",
		Subsystem:   "storage",
		Name:        "op_duration_seconds",
		Help:        "Histogram of backend round-trip durations in seconds.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: labels,
	}, []string{"op"})

	var err error
	if bytes, err = register(reg, bytes); err != nil {
		return nil, err
	}
	if ops, err = register(reg, ops); err != nil {
		return nil, err
	}
	if latency, err = register(reg, latency); err != nil {
		return nil, err
	}
	return &StorageMetrics{reg: reg, bytes: bytes, ops: ops, latency: latency}, nil
}

// register adds c to reg, or returns the equivalent collector that is
// already there.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("register storage metrics: %w", err)
}

// Observe records one round trip.
func (m *StorageMetrics) Observe(op string, bytes int64, err error, dur time.Duration) {
	result := "ok"
	switch {
	case errors.Is(err, storage.ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	if bytes > 0 {
		m.bytes.WithLabelValues(op).Add(float64(bytes))
	}
	m.ops.WithLabelValues(op, result).Inc()
	m.latency.WithLabelValues(op).Observe(dur.Seconds())
}

// WriteText writes the families registered with m in the Prometheus text
// format.
func (m *StorageMetrics) WriteText(w io.Writer) error { return WriteText(w, m.reg) }

// WriteText writes every family gathered from g in the Prometheus text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

var _ storage.Observer = (*StorageMetrics)(nil)
