package probe

import (
	"time"

	"github.com/leozw/storefront-controlplane/internal/core"
)

// payload is the union of the fields the health endpoints report. Each
// source fills in its own subset.
type payload struct {
	LatencyMs         *float64 `json:"latencyMs"`
	UptimePercent     *float64 `json:"uptimePercent"`
	ErrorRate         *float64 `json:"errorRate"`
	RequestsPerMinute *float64 `json:"requestsPerMinute"`
	ReplicaLagSeconds *float64 `json:"replicaLagSeconds"`
	Connections       *float64 `json:"connections"`
	CPUPercent        *float64 `json:"cpuPercent"`
	MemoryPercent     *float64 `json:"memoryPercent"`
	QueueDelaySeconds *float64 `json:"queueDelaySeconds"`
	ActiveWorkers     *float64 `json:"activeWorkers"`

	LastError *errorPayload   `json:"lastError"`
	Servers   []serverPayload `json:"servers"`
}

type errorPayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Severity  string    `json:"severity"`
}

type serverPayload struct {
	Name              string   `json:"name"`
	CPUPercent        *float64 `json:"cpuPercent"`
	MemoryPercent     *float64 `json:"memoryPercent"`
	QueueDelaySeconds *float64 `json:"queueDelaySeconds"`
}

func (p *payload) toResult(source core.ProbeSource) *core.ProbeResult {
	m := core.Metrics{}
	put(m, core.MetricLatencyMs, p.LatencyMs)
	put(m, core.MetricUptimePct, p.UptimePercent)
	put(m, core.MetricErrorRate, p.ErrorRate)
	put(m, core.MetricRequestsMin, p.RequestsPerMinute)
	put(m, core.MetricReplicaLagS, p.ReplicaLagSeconds)
	put(m, core.MetricConnections, p.Connections)
	put(m, core.MetricCPUPct, p.CPUPercent)
	put(m, core.MetricMemoryPct, p.MemoryPercent)
	put(m, core.MetricQueueDelayS, p.QueueDelaySeconds)
	put(m, core.MetricActiveWorker, p.ActiveWorkers)

	result := &core.ProbeResult{
		Source:  source,
		Metrics: m,
	}

	if p.LastError != nil && p.LastError.Message != "" {
		result.LastError = &core.ErrorDescriptor{
			Message:   p.LastError.Message,
			Timestamp: p.LastError.Timestamp,
			Source:    p.LastError.Source,
			Severity:  p.LastError.Severity,
		}
	}

	for _, s := range p.Servers {
		sm := core.Metrics{}
		put(sm, core.MetricCPUPct, s.CPUPercent)
		put(sm, core.MetricMemoryPct, s.MemoryPercent)
		put(sm, core.MetricQueueDelayS, s.QueueDelaySeconds)
		result.Servers = append(result.Servers, core.ServerMetrics{Name: s.Name, Metrics: sm})
	}

	return result
}

func put(m core.Metrics, name core.MetricName, v *float64) {
	if v != nil {
		m[name] = *v
	}
}
