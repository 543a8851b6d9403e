package thresholds

import (
	"fmt"

	"github.com/leozw/storefront-controlplane/internal/config"
	"github.com/leozw/storefront-controlplane/internal/core"
)

// Rule holds the two cut points of one metric. Below rules breach when the
// reading drops under a cut point (uptime); the rest breach at or above it.
type Rule struct {
	Metric core.MetricName
	Label  string
	Unit   string
	Warn   float64
	Down   float64
	Below  bool
	Hard   bool
}

type Table struct {
	Backend  []Rule
	Database []Rule
	System   []Rule
	Tenant   []Rule
}

func Default() *Table {
	backend := []Rule{
		{Metric: core.MetricLatencyMs, Label: "latency", Unit: "ms", Warn: 300, Down: 800},
		{Metric: core.MetricUptimePct, Label: "uptime", Unit: "%", Warn: 99.0, Down: 95.0, Below: true},
	}
	return &Table{
		Backend: backend,
		Database: []Rule{
			{Metric: core.MetricReplicaLagS, Label: "replica lag", Unit: "s", Warn: 100, Down: 300, Hard: true},
			{Metric: core.MetricLatencyMs, Label: "latency", Unit: "ms", Warn: 250, Down: 500},
			{Metric: core.MetricUptimePct, Label: "uptime", Unit: "%", Warn: 99.0, Down: 95.0, Below: true},
		},
		System: []Rule{
			{Metric: core.MetricCPUPct, Label: "cpu", Unit: "%", Warn: 75, Down: 90, Hard: true},
			{Metric: core.MetricMemoryPct, Label: "memory", Unit: "%", Warn: 80, Down: 95, Hard: true},
			{Metric: core.MetricQueueDelayS, Label: "queue delay", Unit: "s", Warn: 60, Down: 300},
		},
		Tenant: append([]Rule(nil), backend...),
	}
}

// FromConfig builds a table from configuration. Probe classes left empty in
// the configuration keep their default rules.
func FromConfig(cfg config.ThresholdsConfig) (*Table, error) {
	t := Default()

	var err error
	if t.Backend, err = overlay(t.Backend, cfg.Backend); err != nil {
		return nil, fmt.Errorf("backend thresholds: %w", err)
	}
	if t.Database, err = overlay(t.Database, cfg.Database); err != nil {
		return nil, fmt.Errorf("database thresholds: %w", err)
	}
	if t.System, err = overlay(t.System, cfg.System); err != nil {
		return nil, fmt.Errorf("system thresholds: %w", err)
	}
	if t.Tenant, err = overlay(t.Tenant, cfg.Tenant); err != nil {
		return nil, fmt.Errorf("tenant thresholds: %w", err)
	}

	return t, nil
}

func overlay(defaults []Rule, configured []config.ThresholdRule) ([]Rule, error) {
	if len(configured) == 0 {
		return defaults, nil
	}

	rules := make([]Rule, 0, len(configured))
	for _, c := range configured {
		r := Rule{
			Metric: core.MetricName(c.Metric),
			Label:  c.Label,
			Unit:   c.Unit,
			Warn:   c.Warn,
			Down:   c.Down,
			Below:  c.Below,
			Hard:   c.Hard,
		}
		if r.Label == "" {
			r.Label = string(r.Metric)
		}
		if err := r.validate(); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (r Rule) validate() error {
	if r.Metric == "" {
		return fmt.Errorf("rule without metric")
	}
	if r.Below && r.Warn < r.Down {
		return fmt.Errorf("%s: warn %v must not be below down %v", r.Metric, r.Warn, r.Down)
	}
	if !r.Below && r.Warn > r.Down {
		return fmt.Errorf("%s: warn %v must not exceed down %v", r.Metric, r.Warn, r.Down)
	}
	return nil
}
