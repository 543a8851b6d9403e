package trends

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozw/storefront-controlplane/internal/core"
)

func snapshot(seq uint64, latency float64) *core.Snapshot {
	return &core.Snapshot{
		Seq:      seq,
		Backend:  core.Component{Source: core.SourceBackend, Metrics: core.Metrics{core.MetricLatencyMs: latency}},
		Database: core.Component{Source: core.SourceDatabase, Metrics: core.Metrics{core.MetricLatencyMs: 40}},
		System:   core.Component{Source: core.SourceSystem, Metrics: core.Metrics{core.MetricCPUPct: 0}},
	}
}

func find(t *testing.T, trends []core.MetricTrend, name string) core.MetricTrend {
	t.Helper()
	for _, tr := range trends {
		if tr.Metric == name {
			return tr
		}
	}
	t.Fatalf("trend %s not found", name)
	return core.MetricTrend{}
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name      string
		cur, prev float64
		want      *float64
	}{
		{"increase", 150, 100, ptr(50.0)},
		{"decrease", 75, 100, ptr(-25.0)},
		{"rounded", 101, 3, ptr(3266.7)},
		{"one decimal", 100.06, 100, ptr(0.1)},
		{"unchanged", 10, 10, ptr(0.0)},
		{"previous zero", 5, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PercentChange(tt.cur, tt.prev)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestDirection(t *testing.T) {
	assert.Equal(t, core.DirectionUp, Direction(150, 100))
	assert.Equal(t, core.DirectionDown, Direction(1, 2))
	assert.Equal(t, core.DirectionStable, Direction(3, 3))
}

func TestEngineWithoutPrevious(t *testing.T) {
	e := NewEngine()
	for _, tr := range e.Trends() {
		assert.Nil(t, tr.PercentChange)
		assert.Equal(t, core.DirectionStable, tr.Direction)
	}

	e.Observe(snapshot(1, 100))
	tr := find(t, e.Trends(), "backend.latency_ms")
	assert.Nil(t, tr.PercentChange)
	assert.Equal(t, core.DirectionStable, tr.Direction)
	require.NotNil(t, tr.Current)
	assert.Nil(t, tr.Previous)
}

func TestEngineComputesAgainstPrevious(t *testing.T) {
	e := NewEngine()
	e.Observe(snapshot(1, 100))
	e.Observe(snapshot(2, 150))

	tr := find(t, e.Trends(), "backend.latency_ms")
	assert.Equal(t, core.DirectionUp, tr.Direction)
	require.NotNil(t, tr.PercentChange)
	assert.Equal(t, 50.0, *tr.PercentChange)

	db := find(t, e.Trends(), "database.latency_ms")
	assert.Equal(t, core.DirectionStable, db.Direction)
	require.NotNil(t, db.PercentChange)
	assert.Equal(t, 0.0, *db.PercentChange)

	cpu := find(t, e.Trends(), "system.cpu_pct")
	assert.Nil(t, cpu.PercentChange, "previous reading of zero")

	// Only one prior snapshot is kept.
	e.Observe(snapshot(3, 75))
	tr = find(t, e.Trends(), "backend.latency_ms")
	assert.Equal(t, core.DirectionDown, tr.Direction)
	assert.Equal(t, -50.0, *tr.PercentChange)
}

func TestEngineIgnoresOlderSnapshots(t *testing.T) {
	e := NewEngine()
	e.Observe(snapshot(5, 100))
	e.Observe(snapshot(4, 900))
	e.Observe(snapshot(5, 900))

	tr := find(t, e.Trends(), "backend.latency_ms")
	assert.Nil(t, tr.PercentChange)
	assert.Equal(t, 100.0, *tr.Current)
}

func TestPlaceholderComponentHasNoTrend(t *testing.T) {
	prev := snapshot(1, 100)
	cur := snapshot(2, 150)
	cur.Backend.Placeholder = true

	tr := find(t, Compute(cur, prev), "backend.latency_ms")
	assert.Equal(t, core.DirectionStable, tr.Direction)
	assert.Nil(t, tr.PercentChange)
	assert.Nil(t, tr.Current)
}

func ptr(v float64) *float64 { return &v }
