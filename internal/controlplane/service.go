// Package controlplane wires the health subsystem and the tenant lifecycle
// manager behind one surface used by the HTTP API and the operator CLI.
package controlplane

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/storefront-controlplane/internal/config"
	"github.com/leozw/storefront-controlplane/internal/core"
	"github.com/leozw/storefront-controlplane/internal/health"
	"github.com/leozw/storefront-controlplane/internal/lifecycle"
	"github.com/leozw/storefront-controlplane/internal/metrics"
	"github.com/leozw/storefront-controlplane/internal/thresholds"
	"github.com/leozw/storefront-controlplane/internal/trends"
)

type HealthState string

const (
	// HealthPending means no tick has completed yet.
	HealthPending HealthState = "pending"
	HealthLive    HealthState = "live"
	// HealthDegraded means at least one component is a placeholder built
	// from a failed probe.
	HealthDegraded HealthState = "degraded"
)

type HealthView struct {
	State    HealthState    `json:"state"`
	Overall  core.Level     `json:"overall,omitempty"`
	Snapshot *core.Snapshot `json:"snapshot,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type ListSource string

const (
	SourceNone   ListSource = "none"
	SourceRemote ListSource = "remote"
	// SourceCache means the last sync failed and the list is what was known
	// before that.
	SourceCache ListSource = "cache"
)

type TenantList struct {
	Tenants  []core.Tenant `json:"tenants"`
	Source   ListSource    `json:"source"`
	SyncedAt *time.Time    `json:"synced_at,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type Service struct {
	logger     *zap.Logger
	metrics    *metrics.Collector
	aggregator *health.Aggregator
	trends     *trends.Engine
	tenants    *lifecycle.Manager

	syncInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config, prober health.Prober, remote lifecycle.Remote, collector *metrics.Collector, logger *zap.Logger) (*Service, error) {
	table, err := thresholds.FromConfig(cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	s := &Service{
		logger:       logger.With(zap.String("component", "controlplane")),
		metrics:      collector,
		trends:       trends.NewEngine(),
		tenants:      lifecycle.NewManager(remote, collector, logger),
		syncInterval: cfg.Polling.TenantInterval,
	}
	if s.syncInterval <= 0 {
		s.syncInterval = 15 * time.Second
	}

	s.aggregator = health.NewAggregator(prober, table, collector, logger, health.Options{
		HealthInterval: cfg.Polling.HealthInterval,
		TenantInterval: cfg.Polling.TenantInterval,
		ProbeTimeout:   cfg.Upstream.ProbeTimeout,
		Tenants:        func() []string { return s.tenants.IDs(core.TenantActive) },
	})
	s.aggregator.Subscribe(s.trends.Observe)

	return s, nil
}

// Start runs the health pollers and the tenant sync loop until Stop. The
// first tenant sync runs in the background so Start never waits on the
// provisioning API.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.aggregator.Start(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.tenants.Sync(ctx); err != nil {
			s.logger.Warn("Initial tenant sync failed", zap.Error(err))
		} else {
			// The pollers' first tenant tick may have run before any
			// tenant was known.
			s.aggregator.TickTenants(ctx)
		}

		ticker := time.NewTicker(s.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Sync logs and records its own failures.
				_ = s.tenants.Sync(ctx)
			}
		}
	}()

	s.logger.Info("Control plane started", zap.Duration("sync_interval", s.syncInterval))
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.aggregator.Stop()
	s.wg.Wait()
	s.logger.Info("Control plane stopped")
}

// ApplyThresholds swaps the threshold table used from the next tick on. An
// invalid table is rejected and the current one stays in place.
func (s *Service) ApplyThresholds(cfg config.ThresholdsConfig) error {
	table, err := thresholds.FromConfig(cfg)
	if err != nil {
		s.logger.Error("Rejected threshold update", zap.Error(err))
		return err
	}
	s.aggregator.SetThresholds(table)
	s.logger.Info("Thresholds updated")
	return nil
}

// Ready reports whether the service has any health data and has reached the
// provisioning API at least once.
func (s *Service) Ready() bool {
	return s.aggregator.Snapshot() != nil && s.tenants.SyncState().Synced
}

func (s *Service) GetHealthSnapshot() HealthView {
	return s.view(s.aggregator.Snapshot())
}

func (s *Service) RefreshHealth(ctx context.Context) (HealthView, error) {
	snap, err := s.aggregator.Refresh(ctx)
	return s.view(snap), err
}

func (s *Service) view(snap *core.Snapshot) HealthView {
	if snap == nil {
		return HealthView{State: HealthPending}
	}

	v := HealthView{State: HealthLive, Overall: snap.Overall(), Snapshot: snap}
	for _, c := range snap.Components() {
		if c.Placeholder {
			v.State = HealthDegraded
			break
		}
	}
	if snap.AllFailed {
		v.Error = snap.Error
	}
	return v
}

func (s *Service) GetTenantHealth() *core.TenantHealthSnapshot {
	return s.aggregator.TenantHealth()
}

func (s *Service) GetTrends() []core.MetricTrend {
	return s.trends.Trends()
}

func (s *Service) Subscribe(fn func(*core.Snapshot)) func() {
	return s.aggregator.Subscribe(fn)
}

func (s *Service) SubscribeTenants(fn func(*core.TenantHealthSnapshot)) func() {
	return s.aggregator.SubscribeTenants(fn)
}

func (s *Service) SubscribeTenantEvents(fn func(lifecycle.Event)) func() {
	return s.tenants.Subscribe(fn)
}

func (s *Service) ListTenants() TenantList {
	state := s.tenants.SyncState()
	list := TenantList{
		Tenants:  s.tenants.List(),
		SyncedAt: state.LastSyncAt,
		Error:    state.LastError,
	}
	switch {
	case !state.Synced:
		list.Source = SourceNone
	case state.LastError != "":
		list.Source = SourceCache
	default:
		list.Source = SourceRemote
	}
	return list
}

func (s *Service) SyncTenants(ctx context.Context) (TenantList, error) {
	err := s.tenants.Sync(ctx)
	return s.ListTenants(), err
}

func (s *Service) TenantStats() core.TenantStats {
	return s.tenants.Stats()
}

func (s *Service) GetTenant(id string) (core.Tenant, error) {
	return s.tenants.Get(id)
}

func (s *Service) AllowedActions(id string) ([]lifecycle.ActionOption, error) {
	return s.tenants.AllowedActions(id)
}

func (s *Service) CreateTenant(ctx context.Context, spec core.TenantSpec) (core.Tenant, error) {
	return s.tenants.Create(ctx, spec)
}

func (s *Service) Transition(ctx context.Context, id string, action core.TenantAction) (core.Tenant, error) {
	return s.tenants.Transition(ctx, id, action)
}

func (s *Service) Activate(ctx context.Context, id string) (core.Tenant, error) {
	return s.tenants.Activate(ctx, id)
}

func (s *Service) Suspend(ctx context.Context, id string) (core.Tenant, error) {
	return s.tenants.Suspend(ctx, id)
}

func (s *Service) Resume(ctx context.Context, id string) (core.Tenant, error) {
	return s.tenants.Resume(ctx, id)
}

func (s *Service) Archive(ctx context.Context, id string) (core.Tenant, error) {
	return s.tenants.Archive(ctx, id)
}

func (s *Service) Metrics() *metrics.Collector {
	return s.metrics
}
