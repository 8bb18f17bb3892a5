// metrics.go - Metrics collected from client notifications
package main

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/metrics"

	"shielder/internal/client"
	"shielder/internal/shielder"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter   MetricType = "counter"
	Gauge     MetricType = "gauge"
	Histogram MetricType = "histogram"
)

// Histogram reservoir, as used by geth's own timers.
const (
	histogramReservoir = 1028
	histogramAlpha     = 0.015
)

// Metric is a point-in-time view of one registered metric
type Metric struct {
	Name   string            `json:"name"`
	Type   MetricType        `json:"type"`
	Value  float64           `json:"value"`
	Labels map[string]string `json:"labels,omitempty"`
}

var enableMetrics sync.Once

// MetricsCollector aggregates metrics in a private registry. It implements
// client.Observer.
type MetricsCollector struct {
	registry metrics.Registry
}

var _ client.Observer = (*MetricsCollector)(nil)

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	// Samples are dropped until the metrics system is enabled.
	enableMetrics.Do(metrics.Enable)
	return &MetricsCollector{registry: metrics.NewRegistry()}
}

// IncrementCounter increments a counter metric
func (mc *MetricsCollector) IncrementCounter(name string, labels map[string]string) {
	metrics.GetOrRegisterCounter(makeKey(name, labels), mc.registry).Inc(1)
}

// SetGauge sets a gauge metric value
func (mc *MetricsCollector) SetGauge(name string, value int64, labels map[string]string) {
	metrics.GetOrRegisterGauge(makeKey(name, labels), mc.registry).Update(value)
}

// RecordHistogram records a value in a histogram
func (mc *MetricsCollector) RecordHistogram(name string, value int64, labels map[string]string) {
	metrics.GetOrRegisterHistogramLazy(makeKey(name, labels), mc.registry, func() metrics.Sample {
		return metrics.NewExpDecaySample(histogramReservoir, histogramAlpha)
	}).Update(value)
}

// GetMetric retrieves a metric by name and labels. Histograms report their last
// maximum.
func (mc *MetricsCollector) GetMetric(name string, labels map[string]string) *Metric {
	m := &Metric{Name: name, Labels: labels}
	switch v := mc.registry.Get(makeKey(name, labels)).(type) {
	case *metrics.Counter:
		m.Type, m.Value = Counter, float64(v.Snapshot().Count())
	case *metrics.Gauge:
		m.Type, m.Value = Gauge, float64(v.Snapshot().Value())
	case metrics.Histogram:
		m.Type, m.Value = Histogram, float64(v.Snapshot().Max())
	default:
		return nil
	}
	return m
}

// GetMetricsSummary returns a summary of all metrics
func (mc *MetricsCollector) GetMetricsSummary() map[string]interface{} {
	counters := make(map[string]int64)
	gauges := make(map[string]int64)
	histograms := make(map[string]map[string]float64)
	mc.registry.Each(func(key string, i interface{}) {
		switch v := i.(type) {
		case *metrics.Counter:
			counters[key] = v.Snapshot().Count()
		case *metrics.Gauge:
			gauges[key] = v.Snapshot().Value()
		case metrics.Histogram:
			s := v.Snapshot()
			if s.Count() == 0 {
				return
			}
			ps := s.Percentiles([]float64{0.5, 0.95})
			histograms[key] = map[string]float64{
				"count": float64(s.Count()),
				"min":   float64(s.Min()),
				"max":   float64(s.Max()),
				"avg":   s.Mean(),
				"p50":   ps[0],
				"p95":   ps[1],
			}
		}
	})
	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// makeKey creates a unique key for a metric name and labels, sorted by label name
func makeKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(name)
	for _, k := range names {
		fmt.Fprintf(&b, "_%s_%s", k, labels[k])
	}
	return b.String()
}

// Predefined metric names
const (
	MetricCalldataGenerated = "calldata_generated"
	MetricCalldataSent      = "calldata_sent"
	MetricProvingTime       = "proving_time_ms"
	MetricTransactions      = "synced_transactions"
	MetricErrorCount        = "error_count"
	MetricLastBlock         = "last_synced_block"
)

func (mc *MetricsCollector) CalldataGenerated(op client.Operation, cd client.GeneratedCalldata) {
	mc.IncrementCounter(MetricCalldataGenerated, map[string]string{"operation": string(op)})
	mc.RecordHistogram(MetricProvingTime, cd.ProvingTime.Milliseconds(), map[string]string{"kind": cd.Kind.String()})
}

func (mc *MetricsCollector) CalldataSent(op client.Operation, _ common.Hash) {
	mc.IncrementCounter(MetricCalldataSent, map[string]string{"operation": string(op)})
}

func (mc *MetricsCollector) NewTransaction(tx shielder.ShielderTransaction) {
	mc.IncrementCounter(MetricTransactions, map[string]string{"kind": tx.Kind.String()})
	metrics.GetOrRegisterGauge(MetricLastBlock, mc.registry).UpdateIfGt(int64(tx.Block))
}

func (mc *MetricsCollector) Error(_ error, stage client.Stage, op client.Operation) {
	mc.IncrementCounter(MetricErrorCount, map[string]string{"stage": string(stage), "operation": string(op)})
}
