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

package service

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"
)

// ExportServiceMetrics tracks per-connector export statistics for the
// JSON /metrics endpoint. Prometheus counters cover the same ground in
// native format; this surface exists for dashboards that consume JSON.
type ExportServiceMetrics struct {
	mu        sync.RWMutex
	startTime time.Time

	totalExports    int64
	completedRuns   int64
	failedRuns      int64
	timedOutRuns    int64
	connectorStats  map[string]*ConnectorExportStats
}

// ConnectorExportStats tracks export latency per connector
type ConnectorExportStats struct {
	TotalRuns     int64
	CompletedRuns int64
	FailedRuns    int64
	TimedOutRuns  int64
	Latencies     []int64 // milliseconds, capped at the last 1000 runs
}

// NewExportServiceMetrics creates an empty metrics collector
func NewExportServiceMetrics() *ExportServiceMetrics {
	return &ExportServiceMetrics{
		startTime:      time.Now(),
		connectorStats: make(map[string]*ConnectorExportStats),
	}
}

// RecordExport records one finished export run
func (m *ExportServiceMetrics) RecordExport(connector string, latencyMs int64, status string) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalExports++
	stats, exists := m.connectorStats[connector]
	if !exists {
		stats = &ConnectorExportStats{Latencies: make([]int64, 0, 1000)}
		m.connectorStats[connector] = stats
	}
	stats.TotalRuns++

	switch status {
	case runStatusCompleted:
		m.completedRuns++
		stats.CompletedRuns++
	case runStatusTimedOut:
		m.timedOutRuns++
		stats.TimedOutRuns++
	default:
		m.failedRuns++
		stats.FailedRuns++
	}

	stats.Latencies = append(stats.Latencies, latencyMs)
	if len(stats.Latencies) > 1000 {
		stats.Latencies = stats.Latencies[1:]
	}
}

func calculatePercentile(timings []int64, percentile float64) float64 {
	if len(timings) == 0 {
		return 0
	}

	sorted := make([]int64, len(timings))
	copy(sorted, timings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := int(float64(len(sorted)) * percentile)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return float64(sorted[index])
}

func calculateAverage(timings []int64) float64 {
	if len(timings) == 0 {
		return 0
	}

	sum := int64(0)
	for _, t := range timings {
		sum += t
	}
	return float64(sum) / float64(len(timings))
}

// simpleMetricsHandler returns simplified metrics for easy consumption
func simpleMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if serviceMetrics == nil {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"error":     "Metrics not initialized",
			"timestamp": time.Now().UTC(),
		}); err != nil {
			log.Printf("Error encoding metrics error response: %v", err)
		}
		return
	}

	serviceMetrics.mu.RLock()

	connectors := make(map[string]interface{}, len(serviceMetrics.connectorStats))
	for name, stats := range serviceMetrics.connectorStats {
		connectors[name] = map[string]interface{}{
			"total_runs":     stats.TotalRuns,
			"completed_runs": stats.CompletedRuns,
			"failed_runs":    stats.FailedRuns,
			"timed_out_runs": stats.TimedOutRuns,
			"p50_ms":         calculatePercentile(stats.Latencies, 0.50),
			"p95_ms":         calculatePercentile(stats.Latencies, 0.95),
			"p99_ms":         calculatePercentile(stats.Latencies, 0.99),
			"avg_ms":         calculateAverage(stats.Latencies),
		}
	}

	uptime := time.Since(serviceMetrics.startTime)
	successRate := float64(100.0)
	if serviceMetrics.totalExports > 0 {
		successRate = float64(serviceMetrics.completedRuns) * 100.0 / float64(serviceMetrics.totalExports)
	}

	metrics := map[string]interface{}{
		"service":          "surveyflow-export",
		"uptime_seconds":   uptime.Seconds(),
		"total_exports":    serviceMetrics.totalExports,
		"completed_runs":   serviceMetrics.completedRuns,
		"failed_runs":      serviceMetrics.failedRuns,
		"timed_out_runs":   serviceMetrics.timedOutRuns,
		"success_rate_pct": successRate,
		"connectors":       connectors,
		"timestamp":        time.Now().UTC(),
	}

	serviceMetrics.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(metrics); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
