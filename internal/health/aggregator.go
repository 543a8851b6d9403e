package health

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leozw/storefront-controlplane/internal/core"
	"github.com/leozw/storefront-controlplane/internal/metrics"
	"github.com/leozw/storefront-controlplane/internal/pubsub"
	"github.com/leozw/storefront-controlplane/internal/thresholds"
)

type Prober interface {
	FetchBackend(ctx context.Context) (*core.ProbeResult, error)
	FetchDatabase(ctx context.Context) (*core.ProbeResult, error)
	FetchSystem(ctx context.Context) (*core.ProbeResult, error)
	FetchTenant(ctx context.Context, tenantID string) (*core.ProbeResult, error)
}

type Options struct {
	HealthInterval time.Duration
	TenantInterval time.Duration
	// ProbeTimeout bounds each probe call on top of whatever the Prober does.
	ProbeTimeout time.Duration
	// TenantConcurrency caps parallel tenant probes within one tick.
	TenantConcurrency int
	// Tenants lists the tenants whose health is relevant right now.
	Tenants func() []string
}

// Aggregator polls the platform probes and the per-tenant probes on
// independent timers and publishes whole snapshots. Readers only ever see
// a complete snapshot, and a tick never replaces a snapshot from a later
// tick.
type Aggregator struct {
	prober  Prober
	metrics *metrics.Collector
	logger  *zap.Logger
	opts    Options
	now     func() time.Time

	table atomic.Pointer[thresholds.Table]

	seq       atomic.Uint64
	publishMu sync.Mutex
	snapshot  atomic.Pointer[core.Snapshot]

	tenantSeq       atomic.Uint64
	tenantPublishMu sync.Mutex
	tenantSnapshot  atomic.Pointer[core.TenantHealthSnapshot]

	snapshots     pubsub.Hub[*core.Snapshot]
	tenantUpdates pubsub.Hub[*core.TenantHealthSnapshot]

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAggregator(prober Prober, table *thresholds.Table, collector *metrics.Collector, logger *zap.Logger, opts Options) *Aggregator {
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 5 * time.Second
	}
	if opts.TenantInterval <= 0 {
		opts.TenantInterval = 15 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.TenantConcurrency <= 0 {
		opts.TenantConcurrency = 8
	}
	if table == nil {
		table = thresholds.Default()
	}

	a := &Aggregator{
		prober:  prober,
		metrics: collector,
		logger:  logger.With(zap.String("component", "health_aggregator")),
		opts:    opts,
		now:     time.Now,
	}
	a.table.Store(table)
	return a
}

// Start launches the platform and tenant pollers. Each polls immediately and
// then on its own interval until Stop is called or ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)

	a.logger.Info("Starting health aggregator",
		zap.Duration("health_interval", a.opts.HealthInterval),
		zap.Duration("tenant_interval", a.opts.TenantInterval),
	)

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.poll(ctx, a.opts.HealthInterval, func(ctx context.Context) { a.Tick(ctx) })
	}()
	go func() {
		defer a.wg.Done()
		a.poll(ctx, a.opts.TenantInterval, func(ctx context.Context) { a.TickTenants(ctx) })
	}()
}

func (a *Aggregator) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	a.wg.Wait()
	a.logger.Info("Health aggregator stopped")
}

func (a *Aggregator) poll(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (a *Aggregator) SetThresholds(t *thresholds.Table) {
	if t != nil {
		a.table.Store(t)
	}
}

// Snapshot returns the latest published snapshot, or nil before the first
// tick completes.
func (a *Aggregator) Snapshot() *core.Snapshot {
	return a.snapshot.Load()
}

func (a *Aggregator) TenantHealth() *core.TenantHealthSnapshot {
	return a.tenantSnapshot.Load()
}

// Err is set only when every platform probe failed in the latest tick.
func (a *Aggregator) Err() error {
	snap := a.snapshot.Load()
	if snap == nil || !snap.AllFailed {
		return nil
	}
	return fmt.Errorf("%w: %s", core.ErrAllProbesFailed, snap.Error)
}

func (a *Aggregator) Subscribe(fn func(*core.Snapshot)) func() {
	return a.snapshots.Subscribe(fn)
}

func (a *Aggregator) SubscribeTenants(fn func(*core.TenantHealthSnapshot)) func() {
	return a.tenantUpdates.Subscribe(fn)
}

// Refresh runs a platform tick immediately on the caller's goroutine. The
// poller's schedule is left alone.
func (a *Aggregator) Refresh(ctx context.Context) (*core.Snapshot, error) {
	snap, _ := a.Tick(ctx)
	if err := ctx.Err(); err != nil {
		return snap, err
	}
	return snap, nil
}

type outcome struct {
	result *core.ProbeResult
	err    error
}

// Tick probes backend, database and system concurrently, waits for all of
// them, and publishes the resulting snapshot. It returns the snapshot that
// is current afterwards and whether this tick's snapshot was the one
// published.
func (a *Aggregator) Tick(ctx context.Context) (*core.Snapshot, bool) {
	seq := a.seq.Add(1)
	start := a.now()

	fetchers := []struct {
		source core.ProbeSource
		fetch  func(context.Context) (*core.ProbeResult, error)
	}{
		{core.SourceBackend, a.prober.FetchBackend},
		{core.SourceDatabase, a.prober.FetchDatabase},
		{core.SourceSystem, a.prober.FetchSystem},
	}

	var g errgroup.Group
	results := make([]outcome, len(fetchers))
	for i, f := range fetchers {
		i, f := i, f
		g.Go(func() error {
			results[i] = a.probe(ctx, f.source, f.fetch)
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		return a.snapshot.Load(), false
	}

	snap := a.build(seq, results)

	published, fresh := a.publish(snap)
	a.logger.Debug("Health tick completed",
		zap.Uint64("seq", seq),
		zap.String("overall", string(snap.Overall())),
		zap.Bool("published", fresh),
		zap.Duration("duration", a.now().Sub(start)),
	)
	return published, fresh
}

// probe runs one fetch under its own deadline. A fetch that ignores its
// context is abandoned once the deadline passes.
func (a *Aggregator) probe(ctx context.Context, source core.ProbeSource, fetch func(context.Context) (*core.ProbeResult, error)) outcome {
	ctx, cancel := context.WithTimeout(ctx, a.opts.ProbeTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %s probe panicked: %v", core.ErrProbeFailure, source, r)}
			}
		}()
		res, err := fetch(ctx)
		done <- outcome{result: res, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		o = outcome{err: fmt.Errorf("%w: %s probe: %v", core.ErrProbeFailure, source, ctx.Err())}
	}
	if o.err == nil && o.result == nil {
		o.err = fmt.Errorf("%w: %s probe returned no result", core.ErrProbeFailure, source)
	}

	a.metrics.RecordProbe(source, o.err, time.Since(start))
	if o.err != nil {
		a.logger.Warn("Probe failed", zap.String("source", string(source)), zap.Error(o.err))
	}
	return o
}

func (a *Aggregator) build(seq uint64, results []outcome) *core.Snapshot {
	table := a.table.Load()
	prev := a.snapshot.Load()
	now := a.now()

	var prevBackend, prevDatabase, prevSystem *core.Component
	var prevServers []core.ServerStatus
	if prev != nil {
		prevBackend, prevDatabase, prevSystem = &prev.Backend, &prev.Database, &prev.System
		prevServers = prev.Servers
	}

	snap := &core.Snapshot{
		Seq:      seq,
		TakenAt:  now,
		Backend:  component(core.SourceBackend, results[0], table.EvaluateBackend, prevBackend, now),
		Database: component(core.SourceDatabase, results[1], table.EvaluateDatabase, prevDatabase, now),
		System:   component(core.SourceSystem, results[2], table.EvaluateSystem, prevSystem, now),
	}

	if sys := results[2]; sys.err == nil && sys.result != nil {
		snap.Servers = make([]core.ServerStatus, 0, len(sys.result.Servers))
		for i := range sys.result.Servers {
			s := &sys.result.Servers[i]
			snap.Servers = append(snap.Servers, core.ServerStatus{
				Name:    s.Name,
				Metrics: s.Metrics,
				Health:  table.EvaluateServer(s),
			})
		}
	} else {
		// Keep the last known node list visible, marked down with the reason.
		snap.Servers = make([]core.ServerStatus, 0, len(prevServers))
		for _, s := range prevServers {
			s.Health = snap.System.Health
			snap.Servers = append(snap.Servers, s)
		}
	}

	failed := 0
	var reasons []string
	for i, o := range results {
		if o.err != nil {
			failed++
			reasons = append(reasons, fmt.Sprintf("%s: %v", snap.Components()[i].Source, o.err))
		}
	}
	if failed == len(results) {
		snap.AllFailed = true
		snap.Error = strings.Join(reasons, "; ")
		a.logger.Error("All platform probes failed", zap.Uint64("seq", seq), zap.String("reasons", snap.Error))
	}

	return snap
}

func component(source core.ProbeSource, o outcome, eval func(*core.ProbeResult) core.HealthStatus, prev *core.Component, now time.Time) core.Component {
	if o.err == nil {
		c := core.Component{
			Source: source,
			Health: eval(o.result),
		}
		if o.result != nil {
			fetched := o.result.FetchedAt
			if fetched.IsZero() {
				fetched = now
			}
			c.Metrics = o.result.Metrics
			c.LastError = o.result.LastError
			c.FetchedAt = fetched
			c.LastSuccessAt = &fetched
		}
		return c
	}

	c := core.Component{
		Source:      source,
		Health:      core.HealthStatus{Level: core.LevelDown, Reason: failureReason(o.err)},
		Placeholder: true,
		FetchedAt:   now,
		LastError: &core.ErrorDescriptor{
			Message:   o.err.Error(),
			Timestamp: now,
			Source:    string(source),
			Severity:  "critical",
		},
	}
	if prev != nil {
		c.Metrics = prev.Metrics
		c.LastSuccessAt = prev.LastSuccessAt
	}
	return c
}

func failureReason(err error) string {
	return "service unavailable: " + err.Error()
}

func (a *Aggregator) publish(snap *core.Snapshot) (*core.Snapshot, bool) {
	a.publishMu.Lock()
	if cur := a.snapshot.Load(); cur != nil && cur.Seq > snap.Seq {
		a.publishMu.Unlock()
		a.metrics.RecordStaleDiscard()
		a.logger.Debug("Discarding stale health tick",
			zap.Uint64("seq", snap.Seq),
			zap.Uint64("published_seq", cur.Seq),
		)
		return cur, false
	}
	a.snapshot.Store(snap)
	a.publishMu.Unlock()

	a.metrics.RecordSnapshot(snap)
	a.snapshots.Publish(snap)
	return snap, true
}
