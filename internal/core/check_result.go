package core

import (
	"time"
)

type ProbeSource string

const (
	SourceBackend  ProbeSource = "backend"
	SourceDatabase ProbeSource = "database"
	SourceSystem   ProbeSource = "system"
	SourceTenant   ProbeSource = "tenant"
)

type MetricName string

const (
	MetricLatencyMs    MetricName = "latency_ms"
	MetricUptimePct    MetricName = "uptime_pct"
	MetricErrorRate    MetricName = "error_rate"
	MetricReplicaLagS  MetricName = "replica_lag_s"
	MetricCPUPct       MetricName = "cpu_pct"
	MetricMemoryPct    MetricName = "memory_pct"
	MetricQueueDelayS  MetricName = "queue_delay_s"
	MetricConnections  MetricName = "connections"
	MetricActiveWorker MetricName = "active_workers"
	MetricRequestsMin  MetricName = "requests_per_min"
)

// Metrics holds the readings a probe reported. A missing key means the
// source did not report that metric, which is not the same as zero.
type Metrics map[MetricName]float64

func (m Metrics) Get(name MetricName) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[name]
	return v, ok
}

func (m Metrics) Clone() Metrics {
	if m == nil {
		return nil
	}
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type ErrorDescriptor struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
	Severity  string    `json:"severity,omitempty"`
}

type ServerMetrics struct {
	Name    string  `json:"name"`
	Metrics Metrics `json:"metrics"`
}

// ProbeResult is one successful fetch from a metric source.
type ProbeResult struct {
	Source    ProbeSource      `json:"source"`
	TenantID  string           `json:"tenant_id,omitempty"`
	Metrics   Metrics          `json:"metrics"`
	LastError *ErrorDescriptor `json:"last_error,omitempty"`
	Servers   []ServerMetrics  `json:"servers,omitempty"`
	FetchedAt time.Time        `json:"fetched_at"`
}
