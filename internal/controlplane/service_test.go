package controlplane

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/leozw/storefront-controlplane/internal/config"
	"github.com/leozw/storefront-controlplane/internal/core"
	"github.com/leozw/storefront-controlplane/internal/metrics"
)

type stubProber struct {
	mu        sync.Mutex
	latency   float64
	backendUp bool
	probed    map[string]int
}

func (p *stubProber) FetchBackend(ctx context.Context) (*core.ProbeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.backendUp {
		return nil, fmt.Errorf("%w: backend unreachable", core.ErrProbeFailure)
	}
	return &core.ProbeResult{Source: core.SourceBackend, Metrics: core.Metrics{core.MetricLatencyMs: p.latency}}, nil
}

func (p *stubProber) FetchDatabase(ctx context.Context) (*core.ProbeResult, error) {
	return &core.ProbeResult{Source: core.SourceDatabase, Metrics: core.Metrics{core.MetricReplicaLagS: 1}}, nil
}

func (p *stubProber) FetchSystem(ctx context.Context) (*core.ProbeResult, error) {
	return &core.ProbeResult{Source: core.SourceSystem, Metrics: core.Metrics{core.MetricCPUPct: 20}}, nil
}

func (p *stubProber) FetchTenant(ctx context.Context, id string) (*core.ProbeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.probed == nil {
		p.probed = map[string]int{}
	}
	p.probed[id]++
	return &core.ProbeResult{Source: core.SourceTenant, TenantID: id, Metrics: core.Metrics{core.MetricLatencyMs: 50}}, nil
}

func (p *stubProber) set(latency float64, up bool) {
	p.mu.Lock()
	p.latency, p.backendUp = latency, up
	p.mu.Unlock()
}

type stubRemote struct {
	mu      sync.Mutex
	tenants []core.Tenant
	listErr error

	// When set, ListTenants waits on it or on ctx.
	block chan struct{}
}

func (r *stubRemote) ListTenants(ctx context.Context) ([]core.Tenant, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]core.Tenant{}, r.tenants...), nil
}

func (r *stubRemote) CreateTenant(ctx context.Context, spec core.TenantSpec) (*core.Tenant, error) {
	return &core.Tenant{ID: "t-new", Name: spec.Name, Slug: spec.Slug}, nil
}

func (r *stubRemote) TransitionTenant(ctx context.Context, id string, action core.TenantAction) (*core.Tenant, error) {
	return nil, nil
}

func (r *stubRemote) setErr(err error) {
	r.mu.Lock()
	r.listErr = err
	r.mu.Unlock()
}

func testConfig() *config.Config {
	return &config.Config{
		Polling: config.PollingConfig{HealthInterval: time.Hour, TenantInterval: time.Hour},
	}
}

func newTestService(t *testing.T, p *stubProber, r *stubRemote) *Service {
	t.Helper()
	svc, err := New(testConfig(), p, r, metrics.NewCollector(config.MimirConfig{}), zaptest.NewLogger(t))
	require.NoError(t, err)
	return svc
}

func TestHealthViewStates(t *testing.T) {
	p := &stubProber{}
	p.set(100, true)
	svc := newTestService(t, p, &stubRemote{})

	assert.Equal(t, HealthPending, svc.GetHealthSnapshot().State)
	assert.Nil(t, svc.GetHealthSnapshot().Snapshot)

	view, err := svc.RefreshHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthLive, view.State)
	assert.Equal(t, core.LevelOK, view.Overall)

	p.set(0, false)
	view, err = svc.RefreshHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthDegraded, view.State)
	assert.True(t, view.Snapshot.Backend.Placeholder)
	assert.Equal(t, 100.0, view.Snapshot.Backend.Metrics[core.MetricLatencyMs])
	assert.Empty(t, view.Error)
}

func TestTrendsFollowRefresh(t *testing.T) {
	p := &stubProber{}
	p.set(100, true)
	svc := newTestService(t, p, &stubRemote{})

	_, err := svc.RefreshHealth(context.Background())
	require.NoError(t, err)
	p.set(150, true)
	_, err = svc.RefreshHealth(context.Background())
	require.NoError(t, err)

	var latency *core.MetricTrend
	for _, tr := range svc.GetTrends() {
		if tr.Metric == "backend.latency_ms" {
			tr := tr
			latency = &tr
		}
	}
	require.NotNil(t, latency)
	assert.Equal(t, core.DirectionUp, latency.Direction)
	require.NotNil(t, latency.PercentChange)
	assert.Equal(t, 50.0, *latency.PercentChange)
}

func TestTenantListSources(t *testing.T) {
	remote := &stubRemote{}
	svc := newTestService(t, &stubProber{}, remote)
	ctx := context.Background()

	assert.Equal(t, SourceNone, svc.ListTenants().Source)

	remote.setErr(core.ErrRemoteUnavailable)
	list, err := svc.SyncTenants(ctx)
	require.ErrorIs(t, err, core.ErrRemoteUnavailable)
	assert.Equal(t, SourceNone, list.Source)
	assert.NotEmpty(t, list.Error)

	remote.setErr(nil)
	list, err = svc.SyncTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, list.Source)
	assert.Empty(t, list.Tenants)

	remote.mu.Lock()
	remote.tenants = []core.Tenant{{ID: "t-1", Status: core.TenantActive}}
	remote.mu.Unlock()
	_, err = svc.SyncTenants(ctx)
	require.NoError(t, err)

	remote.setErr(core.ErrRemoteUnavailable)
	list, err = svc.SyncTenants(ctx)
	require.Error(t, err)
	assert.Equal(t, SourceCache, list.Source)
	require.Len(t, list.Tenants, 1)
	assert.Equal(t, "t-1", list.Tenants[0].ID)
}

func TestTransitionWithoutBodyKeepsOptimisticRecord(t *testing.T) {
	remote := &stubRemote{tenants: []core.Tenant{{ID: "t-1", Status: core.TenantActive}}}
	svc := newTestService(t, &stubProber{}, remote)
	_, err := svc.SyncTenants(context.Background())
	require.NoError(t, err)

	tenant, err := svc.Suspend(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, core.TenantSuspended, tenant.Status)

	actions, err := svc.AllowedActions("t-1")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, core.ActionResume, actions[0].Action)
}

func TestStartProbesOnlyActiveTenants(t *testing.T) {
	p := &stubProber{}
	p.set(100, true)
	remote := &stubRemote{tenants: []core.Tenant{
		{ID: "t-active", Status: core.TenantActive},
		{ID: "t-suspended", Status: core.TenantSuspended},
	}}
	svc := newTestService(t, p, remote)

	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		th := svc.GetTenantHealth()
		return th != nil && len(th.Tenants) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := svc.GetTenantHealth().Tenants["t-active"]
	assert.True(t, ok)
	require.Eventually(t, svc.Ready, 2*time.Second, 10*time.Millisecond)

	p.mu.Lock()
	assert.Zero(t, p.probed["t-suspended"])
	p.mu.Unlock()
}

func TestStopDoesNotWaitForSlowInitialSync(t *testing.T) {
	p := &stubProber{}
	p.set(100, true)
	remote := &stubRemote{block: make(chan struct{})}
	svc := newTestService(t, p, remote)

	started := make(chan struct{})
	go func() {
		svc.Start(context.Background())
		close(started)
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Start waited on the tenant sync")
	}

	stopped := make(chan struct{})
	go func() {
		svc.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked behind the tenant sync")
	}
	assert.False(t, svc.tenants.SyncState().Synced)
}

func TestApplyThresholds(t *testing.T) {
	p := &stubProber{}
	p.set(100, true)
	svc := newTestService(t, p, &stubRemote{})

	require.NoError(t, svc.ApplyThresholds(config.ThresholdsConfig{
		Backend: []config.ThresholdRule{{Metric: "latency_ms", Warn: 50, Down: 90}},
	}))
	view, err := svc.RefreshHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.LevelDown, view.Snapshot.Backend.Health.Level)

	err = svc.ApplyThresholds(config.ThresholdsConfig{
		Backend: []config.ThresholdRule{{Metric: "latency_ms", Warn: 900, Down: 100}},
	})
	assert.Error(t, err)
}
