package thresholds

import (
	"fmt"
	"math"
	"strconv"

	"github.com/leozw/storefront-controlplane/internal/core"
)

const reasonUnavailable = "service unavailable"

func (t *Table) EvaluateBackend(r *core.ProbeResult) core.HealthStatus {
	if r == nil {
		return unavailable()
	}
	return Evaluate(t.Backend, r.Metrics)
}

func (t *Table) EvaluateDatabase(r *core.ProbeResult) core.HealthStatus {
	if r == nil {
		return unavailable()
	}
	return Evaluate(t.Database, r.Metrics)
}

func (t *Table) EvaluateSystem(r *core.ProbeResult) core.HealthStatus {
	if r == nil {
		return unavailable()
	}
	return Evaluate(t.System, r.Metrics)
}

// EvaluateServer applies the system rules to a single worker node.
func (t *Table) EvaluateServer(s *core.ServerMetrics) core.HealthStatus {
	if s == nil {
		return unavailable()
	}
	return Evaluate(t.System, s.Metrics)
}

func (t *Table) EvaluateTenant(r *core.ProbeResult) core.HealthStatus {
	if r == nil {
		return unavailable()
	}
	return Evaluate(t.Tenant, r.Metrics)
}

// Evaluate returns the worst level any metric implies. Down cut points are
// checked before warn cut points and hard rules before soft ones, so the
// reason names the first breach of the worst level. Metrics the source did
// not report are skipped, but a source reporting none of the rule metrics is
// down: an empty reading says nothing about health.
func Evaluate(rules []Rule, metrics core.Metrics) core.HealthStatus {
	if len(metrics) == 0 {
		return unavailable()
	}

	reported := false
	for _, level := range []core.Level{core.LevelDown, core.LevelWarn} {
		for _, hard := range []bool{true, false} {
			for _, rule := range rules {
				if rule.Hard != hard {
					continue
				}
				v, ok := metrics.Get(rule.Metric)
				if !ok {
					continue
				}
				reported = true
				if rule.breaches(level, v) {
					return core.HealthStatus{Level: level, Reason: rule.reason(level, v)}
				}
			}
		}
	}

	if !reported {
		return unavailable()
	}
	return core.HealthStatus{Level: core.LevelOK, Reason: "all metrics within thresholds"}
}

func (r Rule) cut(level core.Level) float64 {
	if level == core.LevelDown {
		return r.Down
	}
	return r.Warn
}

func (r Rule) breaches(level core.Level, v float64) bool {
	if r.Below {
		return v < r.cut(level)
	}
	return v >= r.cut(level)
}

func (r Rule) reason(level core.Level, v float64) string {
	severity := "warning"
	if level == core.LevelDown {
		severity = "critical"
	}
	relation := "at or above"
	if r.Below {
		relation = "below"
	}
	return fmt.Sprintf("%s %s %s %s threshold %s",
		r.Label, formatValue(v, r.Unit), relation, severity, formatValue(r.cut(level), r.Unit))
}

func formatValue(v float64, unit string) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + unit
}

func unavailable() core.HealthStatus {
	return core.HealthStatus{Level: core.LevelDown, Reason: reasonUnavailable}
}
