package trends

import (
	"math"
	"sync"

	"github.com/leozw/storefront-controlplane/internal/core"
)

type tracked struct {
	source core.ProbeSource
	metric core.MetricName
}

func (t tracked) name() string {
	return string(t.source) + "." + string(t.metric)
}

var trackedMetrics = []tracked{
	{core.SourceBackend, core.MetricLatencyMs},
	{core.SourceBackend, core.MetricUptimePct},
	{core.SourceBackend, core.MetricErrorRate},
	{core.SourceDatabase, core.MetricLatencyMs},
	{core.SourceDatabase, core.MetricReplicaLagS},
	{core.SourceDatabase, core.MetricUptimePct},
	{core.SourceSystem, core.MetricCPUPct},
	{core.SourceSystem, core.MetricMemoryPct},
	{core.SourceSystem, core.MetricQueueDelayS},
}

// Engine keeps the two most recent snapshots and the trends between them.
type Engine struct {
	mu       sync.RWMutex
	current  *core.Snapshot
	previous *core.Snapshot
	trends   []core.MetricTrend
}

func NewEngine() *Engine {
	return &Engine{trends: Compute(nil, nil)}
}

// Observe shifts snap in as the current snapshot. Snapshots that are not
// newer than the current one are ignored.
func (e *Engine) Observe(snap *core.Snapshot) {
	if snap == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil && snap.Seq <= e.current.Seq {
		return
	}
	e.previous = e.current
	e.current = snap
	e.trends = Compute(e.current, e.previous)
}

func (e *Engine) Trends() []core.MetricTrend {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]core.MetricTrend, len(e.trends))
	copy(out, e.trends)
	return out
}

// Compute derives one trend per tracked metric. A metric missing from either
// side, or carried by a placeholder component, is reported stable with no
// percent change.
func Compute(current, previous *core.Snapshot) []core.MetricTrend {
	out := make([]core.MetricTrend, 0, len(trackedMetrics))

	for _, tm := range trackedMetrics {
		trend := core.MetricTrend{Metric: tm.name(), Direction: core.DirectionStable}

		cur, curOK := value(current, tm)
		prev, prevOK := value(previous, tm)
		if curOK {
			trend.Current = &cur
		}
		if prevOK {
			trend.Previous = &prev
		}
		if curOK && prevOK {
			trend.Direction = Direction(cur, prev)
			trend.PercentChange = PercentChange(cur, prev)
		}

		out = append(out, trend)
	}

	return out
}

func Direction(current, previous float64) core.Direction {
	switch {
	case current > previous:
		return core.DirectionUp
	case current < previous:
		return core.DirectionDown
	default:
		return core.DirectionStable
	}
}

// PercentChange is rounded to one decimal and nil when previous is zero.
func PercentChange(current, previous float64) *float64 {
	if previous == 0 {
		return nil
	}
	pct := math.Round((current-previous)/previous*100*10) / 10
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return nil
	}
	return &pct
}

func value(snap *core.Snapshot, tm tracked) (float64, bool) {
	if snap == nil {
		return 0, false
	}

	var comp core.Component
	switch tm.source {
	case core.SourceBackend:
		comp = snap.Backend
	case core.SourceDatabase:
		comp = snap.Database
	case core.SourceSystem:
		comp = snap.System
	default:
		return 0, false
	}

	if comp.Placeholder {
		return 0, false
	}
	return comp.Metrics.Get(tm.metric)
}
