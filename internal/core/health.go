package core

import (
	"time"
)

type Level string

const (
	LevelOK   Level = "ok"
	LevelWarn Level = "warn"
	LevelDown Level = "down"
)

func (l Level) Severity() int {
	switch l {
	case LevelOK:
		return 0
	case LevelWarn:
		return 1
	default:
		return 2
	}
}

type HealthStatus struct {
	Level  Level  `json:"status"`
	Reason string `json:"reason"`
}

// Component is the evaluated state of one probe source within a snapshot.
// Placeholder components were synthesized from a failed fetch; they carry
// the last known-good metrics, if any, rather than fresh readings.
type Component struct {
	Source        ProbeSource      `json:"source"`
	Health        HealthStatus     `json:"health"`
	Metrics       Metrics          `json:"metrics,omitempty"`
	LastError     *ErrorDescriptor `json:"last_error,omitempty"`
	Placeholder   bool             `json:"placeholder"`
	FetchedAt     time.Time        `json:"fetched_at"`
	LastSuccessAt *time.Time       `json:"last_success_at,omitempty"`
}

type ServerStatus struct {
	Name    string       `json:"name"`
	Metrics Metrics      `json:"metrics"`
	Health  HealthStatus `json:"health"`
}

// Snapshot is one atomically published bundle of platform health.
type Snapshot struct {
	Seq       uint64         `json:"seq"`
	TakenAt   time.Time      `json:"taken_at"`
	Backend   Component      `json:"backend"`
	Database  Component      `json:"database"`
	System    Component      `json:"system"`
	Servers   []ServerStatus `json:"servers"`
	AllFailed bool           `json:"all_failed"`
	Error     string         `json:"error,omitempty"`
}

func (s *Snapshot) Components() []Component {
	return []Component{s.Backend, s.Database, s.System}
}

// Overall is the worst level across the platform components.
func (s *Snapshot) Overall() Level {
	worst := LevelOK
	for _, c := range s.Components() {
		if c.Health.Level.Severity() > worst.Severity() {
			worst = c.Health.Level
		}
	}
	return worst
}

type TenantHealth struct {
	TenantID  string    `json:"tenant_id"`
	Component Component `json:"component"`
}

type TenantHealthSnapshot struct {
	Seq     uint64                  `json:"seq"`
	TakenAt time.Time               `json:"taken_at"`
	Tenants map[string]TenantHealth `json:"tenants"`
}

type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"
)

type MetricTrend struct {
	Metric        string    `json:"metric"`
	Direction     Direction `json:"direction"`
	PercentChange *float64  `json:"percent_change"`
	Current       *float64  `json:"current,omitempty"`
	Previous      *float64  `json:"previous,omitempty"`
}
