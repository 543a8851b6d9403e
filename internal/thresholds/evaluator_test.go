package thresholds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozw/storefront-controlplane/internal/config"
	"github.com/leozw/storefront-controlplane/internal/core"
)

func probe(m core.Metrics) *core.ProbeResult {
	return &core.ProbeResult{Metrics: m}
}

func TestEvaluateBackend(t *testing.T) {
	table := Default()

	tests := []struct {
		name    string
		metrics core.Metrics
		level   core.Level
		reason  []string
	}{
		{"healthy", core.Metrics{core.MetricLatencyMs: 120, core.MetricUptimePct: 99.9}, core.LevelOK, nil},
		{"latency warn", core.Metrics{core.MetricLatencyMs: 300}, core.LevelWarn, []string{"300ms", "warning"}},
		{"latency down", core.Metrics{core.MetricLatencyMs: 850}, core.LevelDown, []string{"850ms", "800ms"}},
		{"latency exactly down", core.Metrics{core.MetricLatencyMs: 800}, core.LevelDown, []string{"800ms"}},
		{"uptime warn", core.Metrics{core.MetricUptimePct: 98.5}, core.LevelWarn, []string{"uptime 98.5%", "99%"}},
		{"uptime down", core.Metrics{core.MetricUptimePct: 94}, core.LevelDown, []string{"94%", "95%"}},
		{"uptime at warn cut is ok", core.Metrics{core.MetricUptimePct: 99}, core.LevelOK, nil},
		{"worst wins", core.Metrics{core.MetricLatencyMs: 400, core.MetricUptimePct: 90}, core.LevelDown, []string{"uptime"}},
		{"no readings", core.Metrics{}, core.LevelDown, []string{"service unavailable"}},
		{"no rule metric reported", core.Metrics{core.MetricCPUPct: 10}, core.LevelDown, []string{"service unavailable"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.EvaluateBackend(probe(tt.metrics))
			assert.Equal(t, tt.level, got.Level)
			for _, s := range tt.reason {
				assert.Contains(t, got.Reason, s)
			}
		})
	}
}

func TestEvaluateDatabaseHardRulesFirst(t *testing.T) {
	table := Default()

	// Latency and replica lag both critical: replica lag is the hard rule.
	got := table.EvaluateDatabase(probe(core.Metrics{
		core.MetricLatencyMs:   900,
		core.MetricReplicaLagS: 400,
	}))
	assert.Equal(t, core.LevelDown, got.Level)
	assert.Contains(t, got.Reason, "replica lag 400s")

	// A soft critical breach outranks a hard warning.
	got = table.EvaluateDatabase(probe(core.Metrics{
		core.MetricLatencyMs:   600,
		core.MetricReplicaLagS: 150,
	}))
	assert.Equal(t, core.LevelDown, got.Level)
	assert.Contains(t, got.Reason, "latency 600ms")
}

func TestEvaluateSystem(t *testing.T) {
	table := Default()

	tests := []struct {
		name    string
		metrics core.Metrics
		level   core.Level
		reason  string
	}{
		{"ok", core.Metrics{core.MetricCPUPct: 40, core.MetricMemoryPct: 50, core.MetricQueueDelayS: 5}, core.LevelOK, "within"},
		{"cpu critical", core.Metrics{core.MetricCPUPct: 93}, core.LevelDown, "cpu 93%"},
		{"memory warn", core.Metrics{core.MetricMemoryPct: 81}, core.LevelWarn, "memory 81%"},
		{"queue delay down", core.Metrics{core.MetricQueueDelayS: 301}, core.LevelDown, "queue delay 301s"},
		{"cpu before queue at same level", core.Metrics{core.MetricCPUPct: 76, core.MetricQueueDelayS: 61}, core.LevelWarn, "cpu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.EvaluateSystem(probe(tt.metrics))
			assert.Equal(t, tt.level, got.Level)
			assert.Contains(t, got.Reason, tt.reason)
		})
	}
}

func TestEvaluateNilIsDown(t *testing.T) {
	table := Default()

	for _, got := range []core.HealthStatus{
		table.EvaluateBackend(nil),
		table.EvaluateDatabase(nil),
		table.EvaluateSystem(nil),
		table.EvaluateServer(nil),
		table.EvaluateTenant(nil),
		Evaluate(table.Backend, nil),
		table.EvaluateBackend(probe(nil)),
		table.EvaluateDatabase(probe(core.Metrics{})),
		table.EvaluateServer(&core.ServerMetrics{Name: "worker-1"}),
		table.EvaluateSystem(probe(core.Metrics{core.MetricLatencyMs: 10})),
	} {
		assert.Equal(t, core.LevelDown, got.Level)
		assert.Equal(t, "service unavailable", got.Reason)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	table := Default()
	in := probe(core.Metrics{core.MetricCPUPct: 91, core.MetricMemoryPct: 96, core.MetricQueueDelayS: 400})

	first := table.EvaluateSystem(in)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, table.EvaluateSystem(in))
	}
	assert.Contains(t, first.Reason, "cpu")
}

func TestFromConfig(t *testing.T) {
	table, err := FromConfig(config.ThresholdsConfig{
		Backend: []config.ThresholdRule{
			{Metric: "latency_ms", Label: "latency", Unit: "ms", Warn: 100, Down: 200},
		},
	})
	require.NoError(t, err)

	got := table.EvaluateBackend(probe(core.Metrics{core.MetricLatencyMs: 150}))
	assert.Equal(t, core.LevelWarn, got.Level)

	// Untouched classes keep their defaults.
	assert.Equal(t, Default().Database, table.Database)
	// Uptime is no longer evaluated for backend.
	got = table.EvaluateBackend(probe(core.Metrics{core.MetricLatencyMs: 50, core.MetricUptimePct: 10}))
	assert.Equal(t, core.LevelOK, got.Level)
	// With only uptime reported, no backend rule has a reading.
	got = table.EvaluateBackend(probe(core.Metrics{core.MetricUptimePct: 10}))
	assert.Equal(t, core.LevelDown, got.Level)
}

func TestFromConfigRejectsInvertedCuts(t *testing.T) {
	_, err := FromConfig(config.ThresholdsConfig{
		System: []config.ThresholdRule{{Metric: "cpu_pct", Warn: 95, Down: 90}},
	})
	require.Error(t, err)

	_, err = FromConfig(config.ThresholdsConfig{
		Database: []config.ThresholdRule{{Metric: "uptime_pct", Warn: 90, Down: 95, Below: true}},
	})
	require.Error(t, err)
}
