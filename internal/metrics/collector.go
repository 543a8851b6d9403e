package metrics

import (
	"time"

	"github.com/leozw/storefront-controlplane/internal/config"
	"github.com/leozw/storefront-controlplane/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector owns the control plane's prometheus series. A nil *Collector is
// valid and records nothing.
type Collector struct {
	config   *config.MimirConfig
	registry *prometheus.Registry

	// Probe metrics
	probeDuration *prometheus.HistogramVec
	probesTotal   *prometheus.CounterVec

	// Aggregated health
	componentLevel  *prometheus.GaugeVec
	serverLevel     *prometheus.GaugeVec
	allProbesFailed prometheus.Gauge
	snapshotSeq     prometheus.Gauge
	tenantLevel     *prometheus.GaugeVec
	staleDiscarded  prometheus.Counter

	// Lifecycle
	transitionsTotal *prometheus.CounterVec
	rollbacksTotal   *prometheus.CounterVec
	tenantsByStatus  *prometheus.GaugeVec
	syncsTotal       *prometheus.CounterVec
}

func NewCollector(cfg config.MimirConfig) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		config:   &cfg,
		registry: reg,

		probeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "controlplane_probe_duration_seconds",
				Help:    "Duration of health probe calls in seconds",
				Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"source"},
		),

		probesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlplane_probes_total",
				Help: "Total number of probe calls by outcome",
			},
			[]string{"source", "outcome"},
		),

		componentLevel: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "controlplane_component_status",
				Help: "Evaluated component status (0 ok, 1 warn, 2 down)",
			},
			[]string{"component"},
		),

		serverLevel: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "controlplane_server_status",
				Help: "Evaluated worker node status (0 ok, 1 warn, 2 down)",
			},
			[]string{"server"},
		),

		allProbesFailed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "controlplane_all_probes_failed",
				Help: "Whether every platform probe failed in the last published tick (1) or not (0)",
			},
		),

		snapshotSeq: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "controlplane_snapshot_sequence",
				Help: "Sequence number of the last published health snapshot",
			},
		),

		tenantLevel: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "controlplane_tenant_status",
				Help: "Evaluated tenant health status (0 ok, 1 warn, 2 down)",
			},
			[]string{"tenant_id"},
		),

		staleDiscarded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "controlplane_stale_ticks_discarded_total",
				Help: "Poll ticks whose results were older than the published snapshot",
			},
		),

		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlplane_tenant_transitions_total",
				Help: "Tenant lifecycle operations by action and outcome",
			},
			[]string{"action", "outcome"},
		),

		rollbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlplane_tenant_rollbacks_total",
				Help: "Optimistic tenant updates rolled back after remote failure",
			},
			[]string{"action"},
		),

		tenantsByStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "controlplane_tenants",
				Help: "Number of tenants in the local working copy by status",
			},
			[]string{"status"},
		),

		syncsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlplane_tenant_syncs_total",
				Help: "Tenant list synchronizations by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RecordProbe(source core.ProbeSource, err error, duration time.Duration) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.probeDuration.WithLabelValues(string(source)).Observe(duration.Seconds())
	c.probesTotal.WithLabelValues(string(source), outcome).Inc()
}

func (c *Collector) RecordSnapshot(snap *core.Snapshot) {
	if c == nil || snap == nil {
		return
	}
	for _, comp := range snap.Components() {
		c.componentLevel.WithLabelValues(string(comp.Source)).Set(levelValue(comp.Health.Level))
	}
	c.serverLevel.Reset()
	for _, s := range snap.Servers {
		c.serverLevel.WithLabelValues(s.Name).Set(levelValue(s.Health.Level))
	}
	if snap.AllFailed {
		c.allProbesFailed.Set(1)
	} else {
		c.allProbesFailed.Set(0)
	}
	c.snapshotSeq.Set(float64(snap.Seq))
}

func (c *Collector) RecordTenantHealth(snap *core.TenantHealthSnapshot) {
	if c == nil || snap == nil {
		return
	}
	c.tenantLevel.Reset()
	for id, th := range snap.Tenants {
		c.tenantLevel.WithLabelValues(id).Set(levelValue(th.Component.Health.Level))
	}
}

func (c *Collector) RecordStaleDiscard() {
	if c == nil {
		return
	}
	c.staleDiscarded.Inc()
}

func (c *Collector) RecordTransition(action core.TenantAction, err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.transitionsTotal.WithLabelValues(string(action), outcome).Inc()
}

func (c *Collector) RecordRollback(action core.TenantAction) {
	if c == nil {
		return
	}
	c.rollbacksTotal.WithLabelValues(string(action)).Inc()
}

func (c *Collector) RecordTenantCounts(byStatus map[core.TenantStatus]int) {
	if c == nil {
		return
	}
	for _, s := range []core.TenantStatus{core.TenantProvisioning, core.TenantActive, core.TenantSuspended, core.TenantArchived} {
		c.tenantsByStatus.WithLabelValues(string(s)).Set(float64(byStatus[s]))
	}
}

func (c *Collector) RecordSync(err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.syncsTotal.WithLabelValues(outcome).Inc()
}

func levelValue(l core.Level) float64 {
	return float64(l.Severity())
}
