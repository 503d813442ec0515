// Copyright 2025 SurveyFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdk

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ConnectorMetrics tracks per-connector operational metrics
type ConnectorMetrics struct {
	connectorType string

	// Counters
	exportsTotal     int64
	pollsTotal       int64
	downloadsTotal   int64
	errorsTotal      int64
	timeoutsTotal    int64
	connectsTotal    int64
	disconnectsTotal int64

	// Durations (nanoseconds)
	exportDurationTotal int64
	exportCount         int64

	// Current state
	connected int32

	exportLatencies *LatencyHistogram
}

// NewConnectorMetrics creates a new metrics collector
func NewConnectorMetrics(connectorType string) *ConnectorMetrics {
	return &ConnectorMetrics{
		connectorType:   connectorType,
		exportLatencies: NewLatencyHistogram(),
	}
}

// RecordExport records a completed export operation
func (m *ConnectorMetrics) RecordExport(duration time.Duration, err error) {
	atomic.AddInt64(&m.exportsTotal, 1)
	atomic.AddInt64(&m.exportDurationTotal, int64(duration))
	atomic.AddInt64(&m.exportCount, 1)

	if err != nil {
		atomic.AddInt64(&m.errorsTotal, 1)
	}

	m.exportLatencies.Record(duration)
}

// RecordPoll records one progress poll against the remote platform
func (m *ConnectorMetrics) RecordPoll() {
	atomic.AddInt64(&m.pollsTotal, 1)
}

// RecordDownload records a completed file download
func (m *ConnectorMetrics) RecordDownload() {
	atomic.AddInt64(&m.downloadsTotal, 1)
}

// RecordTimeout records an export that exhausted its polling budget
func (m *ConnectorMetrics) RecordTimeout() {
	atomic.AddInt64(&m.timeoutsTotal, 1)
}

// RecordConnect records a connect operation
func (m *ConnectorMetrics) RecordConnect() {
	atomic.AddInt64(&m.connectsTotal, 1)
	atomic.StoreInt32(&m.connected, 1)
}

// RecordDisconnect records a disconnect operation
func (m *ConnectorMetrics) RecordDisconnect() {
	atomic.AddInt64(&m.disconnectsTotal, 1)
	atomic.StoreInt32(&m.connected, 0)
}

// RecordError records an error
func (m *ConnectorMetrics) RecordError() {
	atomic.AddInt64(&m.errorsTotal, 1)
}

// GetStats returns current metrics
func (m *ConnectorMetrics) GetStats() *MetricsSnapshot {
	exportCount := atomic.LoadInt64(&m.exportCount)

	var avgExportLatency time.Duration
	if exportCount > 0 {
		avgExportLatency = time.Duration(atomic.LoadInt64(&m.exportDurationTotal) / exportCount)
	}

	return &MetricsSnapshot{
		ConnectorType:    m.connectorType,
		ExportsTotal:     atomic.LoadInt64(&m.exportsTotal),
		PollsTotal:       atomic.LoadInt64(&m.pollsTotal),
		DownloadsTotal:   atomic.LoadInt64(&m.downloadsTotal),
		ErrorsTotal:      atomic.LoadInt64(&m.errorsTotal),
		TimeoutsTotal:    atomic.LoadInt64(&m.timeoutsTotal),
		ConnectsTotal:    atomic.LoadInt64(&m.connectsTotal),
		DisconnectsTotal: atomic.LoadInt64(&m.disconnectsTotal),
		Connected:        atomic.LoadInt32(&m.connected) == 1,
		AvgExportLatency: avgExportLatency,
		ExportLatencyP50: m.exportLatencies.Percentile(0.5),
		ExportLatencyP95: m.exportLatencies.Percentile(0.95),
		ExportLatencyP99: m.exportLatencies.Percentile(0.99),
	}
}

// Reset resets all metrics
func (m *ConnectorMetrics) Reset() {
	atomic.StoreInt64(&m.exportsTotal, 0)
	atomic.StoreInt64(&m.pollsTotal, 0)
	atomic.StoreInt64(&m.downloadsTotal, 0)
	atomic.StoreInt64(&m.errorsTotal, 0)
	atomic.StoreInt64(&m.timeoutsTotal, 0)
	atomic.StoreInt64(&m.connectsTotal, 0)
	atomic.StoreInt64(&m.disconnectsTotal, 0)
	atomic.StoreInt64(&m.exportDurationTotal, 0)
	atomic.StoreInt64(&m.exportCount, 0)

	m.exportLatencies.Reset()
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	ConnectorType    string        `json:"connector_type"`
	ExportsTotal     int64         `json:"exports_total"`
	PollsTotal       int64         `json:"polls_total"`
	DownloadsTotal   int64         `json:"downloads_total"`
	ErrorsTotal      int64         `json:"errors_total"`
	TimeoutsTotal    int64         `json:"timeouts_total"`
	ConnectsTotal    int64         `json:"connects_total"`
	DisconnectsTotal int64         `json:"disconnects_total"`
	Connected        bool          `json:"connected"`
	AvgExportLatency time.Duration `json:"avg_export_latency"`
	ExportLatencyP50 time.Duration `json:"export_latency_p50"`
	ExportLatencyP95 time.Duration `json:"export_latency_p95"`
	ExportLatencyP99 time.Duration `json:"export_latency_p99"`
}

// LatencyHistogram provides simple percentile calculations
type LatencyHistogram struct {
	samples []time.Duration
	maxSize int
	mu      sync.Mutex
}

// NewLatencyHistogram creates a new latency histogram
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		samples: make([]time.Duration, 0, 1000),
		maxSize: 10000,
	}
}

// Record adds a latency sample
func (h *LatencyHistogram) Record(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		// Drop the oldest half to bound memory
		h.samples = h.samples[len(h.samples)/2:]
	}
	h.samples = append(h.samples, d)
}

// Percentile calculates the given percentile
func (h *LatencyHistogram) Percentile(p float64) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(h.samples))
	copy(sorted, h.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// Reset clears all samples
func (h *LatencyHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = h.samples[:0]
}

// Count returns the number of samples
func (h *LatencyHistogram) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}

// PrometheusExporter exports connector metrics in Prometheus text format
type PrometheusExporter struct {
	namespace string
	metrics   map[string]*ConnectorMetrics
	mu        sync.RWMutex
}

// NewPrometheusExporter creates a new Prometheus exporter
func NewPrometheusExporter(namespace string) *PrometheusExporter {
	return &PrometheusExporter{
		namespace: namespace,
		metrics:   make(map[string]*ConnectorMetrics),
	}
}

// Register registers a connector's metrics
func (p *PrometheusExporter) Register(name string, metrics *ConnectorMetrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics[name] = metrics
}

// Unregister removes a connector's metrics
func (p *PrometheusExporter) Unregister(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.metrics, name)
}

// Export returns metrics in Prometheus text format
func (p *PrometheusExporter) Export() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var output string

	for name, m := range p.metrics {
		stats := m.GetStats()
		prefix := fmt.Sprintf("%s_%s", p.namespace, sanitizeName(name))

		output += fmt.Sprintf("# HELP %s_exports_total Total number of export runs\n", prefix)
		output += fmt.Sprintf("# TYPE %s_exports_total counter\n", prefix)
		output += fmt.Sprintf("%s_exports_total %d\n", prefix, stats.ExportsTotal)

		output += fmt.Sprintf("# HELP %s_polls_total Total number of progress polls\n", prefix)
		output += fmt.Sprintf("# TYPE %s_polls_total counter\n", prefix)
		output += fmt.Sprintf("%s_polls_total %d\n", prefix, stats.PollsTotal)

		output += fmt.Sprintf("# HELP %s_timeouts_total Export runs that exhausted polling\n", prefix)
		output += fmt.Sprintf("# TYPE %s_timeouts_total counter\n", prefix)
		output += fmt.Sprintf("%s_timeouts_total %d\n", prefix, stats.TimeoutsTotal)

		output += fmt.Sprintf("# HELP %s_errors_total Total number of errors\n", prefix)
		output += fmt.Sprintf("# TYPE %s_errors_total counter\n", prefix)
		output += fmt.Sprintf("%s_errors_total %d\n", prefix, stats.ErrorsTotal)

		connected := 0
		if stats.Connected {
			connected = 1
		}
		output += fmt.Sprintf("# HELP %s_connected Whether the connector is connected\n", prefix)
		output += fmt.Sprintf("# TYPE %s_connected gauge\n", prefix)
		output += fmt.Sprintf("%s_connected %d\n", prefix, connected)

		output += fmt.Sprintf("# HELP %s_export_latency_seconds Export latency distribution\n", prefix)
		output += fmt.Sprintf("# TYPE %s_export_latency_seconds summary\n", prefix)
		output += fmt.Sprintf("%s_export_latency_seconds{quantile=\"0.5\"} %f\n", prefix, stats.ExportLatencyP50.Seconds())
		output += fmt.Sprintf("%s_export_latency_seconds{quantile=\"0.95\"} %f\n", prefix, stats.ExportLatencyP95.Seconds())
		output += fmt.Sprintf("%s_export_latency_seconds{quantile=\"0.99\"} %f\n", prefix, stats.ExportLatencyP99.Seconds())

		output += "\n"
	}

	return output
}

// sanitizeName converts a name to Prometheus-compatible format
func sanitizeName(name string) string {
	result := make([]byte, 0, len(name))
	for _, c := range []byte(name) {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result = append(result, c)
		} else {
			result = append(result, '_')
		}
	}
	return string(result)
}

// OperationTimer provides convenient timing for operations
type OperationTimer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *OperationTimer {
	return &OperationTimer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was started
func (t *OperationTimer) Duration() time.Duration {
	return time.Since(t.start)
}

// RecordTo records the duration to the given callback
func (t *OperationTimer) RecordTo(record func(time.Duration, error), err error) {
	record(t.Duration(), err)
}
