package health

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leozw/storefront-controlplane/internal/core"
)

// TickTenants probes every relevant tenant and publishes a fresh tenant
// health snapshot. A tenant whose probe fails is reported down with its
// last known metrics.
func (a *Aggregator) TickTenants(ctx context.Context) (*core.TenantHealthSnapshot, bool) {
	seq := a.tenantSeq.Add(1)

	var ids []string
	if a.opts.Tenants != nil {
		ids = a.opts.Tenants()
	}

	table := a.table.Load()
	prev := a.tenantSnapshot.Load()
	now := a.now()

	var g errgroup.Group
	g.SetLimit(a.opts.TenantConcurrency)

	healths := make([]core.TenantHealth, len(ids))
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			o := a.probe(ctx, core.SourceTenant, func(ctx context.Context) (*core.ProbeResult, error) {
				return a.prober.FetchTenant(ctx, id)
			})

			var prevComp *core.Component
			if prev != nil {
				if th, ok := prev.Tenants[id]; ok {
					prevComp = &th.Component
				}
			}
			healths[i] = core.TenantHealth{
				TenantID:  id,
				Component: component(core.SourceTenant, o, table.EvaluateTenant, prevComp, now),
			}
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		return a.tenantSnapshot.Load(), false
	}

	snap := &core.TenantHealthSnapshot{
		Seq:     seq,
		TakenAt: now,
		Tenants: make(map[string]core.TenantHealth, len(healths)),
	}
	for _, th := range healths {
		snap.Tenants[th.TenantID] = th
	}

	a.tenantPublishMu.Lock()
	if cur := a.tenantSnapshot.Load(); cur != nil && cur.Seq > seq {
		a.tenantPublishMu.Unlock()
		a.metrics.RecordStaleDiscard()
		return cur, false
	}
	a.tenantSnapshot.Store(snap)
	a.tenantPublishMu.Unlock()

	a.metrics.RecordTenantHealth(snap)
	a.tenantUpdates.Publish(snap)

	a.logger.Debug("Tenant health tick completed",
		zap.Uint64("seq", seq),
		zap.Int("tenants", len(ids)),
		zap.Duration("duration", a.now().Sub(now)),
	)
	return snap, true
}
