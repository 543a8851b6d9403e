package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/storefront-controlplane/internal/core"
	"github.com/leozw/storefront-controlplane/internal/metrics"
	"github.com/leozw/storefront-controlplane/internal/pubsub"
)

// Remote is the authoritative tenant store.
type Remote interface {
	ListTenants(ctx context.Context) ([]core.Tenant, error)
	CreateTenant(ctx context.Context, spec core.TenantSpec) (*core.Tenant, error)
	TransitionTenant(ctx context.Context, id string, action core.TenantAction) (*core.Tenant, error)
}

// recordGetter is implemented by remotes that can read a single tenant.
type recordGetter interface {
	GetTenant(ctx context.Context, id string) (*core.Tenant, error)
}

type EventKind string

const (
	EventCreated    EventKind = "created"
	EventOptimistic EventKind = "optimistic"
	EventConfirmed  EventKind = "confirmed"
	EventRolledBack EventKind = "rolled_back"
	EventSynced     EventKind = "synced"
)

type Event struct {
	Kind   EventKind         `json:"kind"`
	Tenant core.Tenant       `json:"tenant"`
	Action core.TenantAction `json:"action,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// SyncState tells an empty-but-reachable tenant list apart from an
// unreachable one.
type SyncState struct {
	Synced        bool       `json:"synced"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	Diverged      []string   `json:"diverged,omitempty"`
}

type undoEntry struct {
	tenantID string
	action   core.TenantAction
	prior    core.Tenant
	applied  *core.Tenant
}

// Manager owns the local working copy of tenant records. Records are
// replaced as whole values and never edited in place; every status change
// goes through the transition table.
type Manager struct {
	remote  Remote
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	tenants  map[string]*core.Tenant
	inflight map[string]uuid.UUID
	undo     map[uuid.UUID]undoEntry
	sync     SyncState

	events pubsub.Hub[Event]
}

func NewManager(remote Remote, collector *metrics.Collector, logger *zap.Logger) *Manager {
	return &Manager{
		remote:   remote,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "lifecycle")),
		now:      time.Now,
		tenants:  make(map[string]*core.Tenant),
		inflight: make(map[string]uuid.UUID),
		undo:     make(map[uuid.UUID]undoEntry),
	}
}

func (m *Manager) Subscribe(fn func(Event)) func() {
	return m.events.Subscribe(fn)
}

func (m *Manager) Get(id string) (core.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[id]
	if !ok {
		return core.Tenant{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return *t, nil
}

// List returns copies of all records, oldest first.
func (m *Manager) List() []core.Tenant {
	m.mu.RLock()
	out := make([]core.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, *t)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IDs returns the ids of tenants currently in status.
func (m *Manager) IDs(status core.TenantStatus) []string {
	var ids []string
	for _, t := range m.List() {
		if t.Status == status {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func (m *Manager) SyncState() SyncState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.sync
	s.Diverged = append([]string(nil), m.sync.Diverged...)
	return s
}

func (m *Manager) Stats() core.TenantStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := core.TenantStats{
		Total:        len(m.tenants),
		ByStatus:     make(map[core.TenantStatus]int),
		InFlightOps:  len(m.inflight),
		LastSyncedAt: m.sync.LastSyncAt,
	}
	for _, t := range m.tenants {
		stats.ByStatus[t.Status]++
	}
	return stats
}

func (m *Manager) AllowedActions(id string) ([]ActionOption, error) {
	t, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return Actions(t.Status), nil
}

// Create provisions a tenant remotely and adds the confirmed record. The
// record starts in provisioning unless the remote says otherwise.
func (m *Manager) Create(ctx context.Context, spec core.TenantSpec) (core.Tenant, error) {
	spec, err := NormalizeSpec(spec)
	if err != nil {
		return core.Tenant{}, err
	}

	created, err := m.remote.CreateTenant(ctx, spec)
	if err != nil {
		m.logger.Warn("Tenant provisioning failed", zap.String("slug", spec.Slug), zap.Error(err))
		return core.Tenant{}, remoteError("create", spec.Slug, err)
	}
	if created == nil || created.ID == "" {
		return core.Tenant{}, fmt.Errorf("%w: create %s: response without tenant id", core.ErrRemoteRejected, spec.Slug)
	}

	t := *created
	if t.Status == "" {
		t.Status = core.TenantProvisioning
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.now()
	}

	m.mu.Lock()
	m.tenants[t.ID] = &t
	m.mu.Unlock()

	m.recordCounts()
	m.logger.Info("Tenant created",
		zap.String("tenant_id", t.ID),
		zap.String("slug", t.Slug),
		zap.String("status", string(t.Status)),
	)
	m.events.Publish(Event{Kind: EventCreated, Tenant: t})
	return t, nil
}

func (m *Manager) Activate(ctx context.Context, id string) (core.Tenant, error) {
	return m.transition(ctx, id, core.ActionActivate)
}

func (m *Manager) Suspend(ctx context.Context, id string) (core.Tenant, error) {
	return m.transition(ctx, id, core.ActionSuspend)
}

func (m *Manager) Resume(ctx context.Context, id string) (core.Tenant, error) {
	return m.transition(ctx, id, core.ActionResume)
}

// Archive is irreversible: archived has no outgoing transitions.
func (m *Manager) Archive(ctx context.Context, id string) (core.Tenant, error) {
	return m.transition(ctx, id, core.ActionArchive)
}

func (m *Manager) Transition(ctx context.Context, id string, action core.TenantAction) (core.Tenant, error) {
	if action.Target() == "" {
		return core.Tenant{}, fmt.Errorf("%w: unknown action %q", core.ErrInvalidTransition, action)
	}
	return m.transition(ctx, id, action)
}

func (m *Manager) transition(ctx context.Context, id string, action core.TenantAction) (core.Tenant, error) {
	to := action.Target()

	m.mu.Lock()
	cur, ok := m.tenants[id]
	if !ok {
		m.mu.Unlock()
		return core.Tenant{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if _, busy := m.inflight[id]; busy {
		m.mu.Unlock()
		return core.Tenant{}, fmt.Errorf("%w: tenant %s", core.ErrConflict, id)
	}
	if !CanTransition(cur.Status, to) {
		m.mu.Unlock()
		return core.Tenant{}, &core.TransitionError{TenantID: id, From: cur.Status, To: to}
	}

	opID := uuid.New()
	applied := *cur
	applied.Status = to
	applied.UpdatedAt = m.now()

	m.undo[opID] = undoEntry{tenantID: id, action: action, prior: *cur, applied: &applied}
	m.inflight[id] = opID
	m.tenants[id] = &applied
	m.mu.Unlock()

	log := m.logger.With(
		zap.String("tenant_id", id),
		zap.String("action", string(action)),
		zap.String("op_id", opID.String()),
	)
	log.Debug("Applied optimistic transition", zap.String("from", string(cur.Status)), zap.String("to", string(to)))
	m.events.Publish(Event{Kind: EventOptimistic, Tenant: applied, Action: action})

	confirmed, err := m.remote.TransitionTenant(ctx, id, action)
	if err == nil && confirmed == nil {
		confirmed = m.fetch(ctx, id, log)
	}
	if err != nil {
		restored := m.rollback(opID)
		m.metrics.RecordTransition(action, err)
		m.metrics.RecordRollback(action)
		log.Warn("Transition rejected, rolled back", zap.Error(err))
		m.events.Publish(Event{Kind: EventRolledBack, Tenant: restored, Action: action, Error: err.Error()})
		return core.Tenant{}, remoteError(string(action), id, err)
	}

	final, offTable := m.confirm(opID, confirmed)
	m.metrics.RecordTransition(action, nil)
	m.recordCounts()
	switch {
	case offTable != "":
		log.Warn("Remote confirmed a status outside the transition table, keeping local status",
			zap.String("prior", string(cur.Status)),
			zap.String("confirmed", string(offTable)),
			zap.String("kept", string(final.Status)),
		)
	case final.Status != to:
		log.Warn("Remote confirmed a different status than requested",
			zap.String("requested", string(to)),
			zap.String("confirmed", string(final.Status)),
		)
	default:
		log.Info("Tenant transition confirmed", zap.String("status", string(final.Status)))
	}
	m.events.Publish(Event{Kind: EventConfirmed, Tenant: final, Action: action})
	return final, nil
}

// confirm replaces the optimistic record with the server's version and
// discards the undo entry. A confirmed status the transition table does not
// reach from the prior status is not taken; the optimistic status stays and
// the tenant is flagged as diverged. The off-table status is returned.
func (m *Manager) confirm(opID uuid.UUID, confirmed *core.Tenant) (core.Tenant, core.TenantStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.undo[opID]
	delete(m.undo, opID)
	delete(m.inflight, entry.tenantID)

	final := *entry.applied
	var offTable core.TenantStatus
	if confirmed != nil && confirmed.ID == entry.tenantID && confirmed.Status.Valid() {
		final = *confirmed
		if final.CreatedAt.IsZero() {
			final.CreatedAt = entry.applied.CreatedAt
		}
		if final.Status != entry.applied.Status && !CanTransition(entry.prior.Status, final.Status) {
			offTable = final.Status
			final.Status = entry.applied.Status
			m.markDiverged(entry.tenantID)
		}
	}
	m.tenants[entry.tenantID] = &final
	return final, offTable
}

func (m *Manager) markDiverged(id string) {
	for _, d := range m.sync.Diverged {
		if d == id {
			return
		}
	}
	m.sync.Diverged = append(m.sync.Diverged, id)
}

// fetch reads the authoritative record after a transition answered without a
// body, when the remote supports single-record reads. A failed read leaves
// the optimistic record in place.
func (m *Manager) fetch(ctx context.Context, id string, log *zap.Logger) *core.Tenant {
	getter, ok := m.remote.(recordGetter)
	if !ok {
		return nil
	}
	t, err := getter.GetTenant(ctx, id)
	if err != nil {
		log.Warn("Could not read tenant after transition", zap.Error(err))
		return nil
	}
	return t
}

// rollback restores the record captured before the optimistic apply unless
// something else has replaced the optimistic record since.
func (m *Manager) rollback(opID uuid.UUID) core.Tenant {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.undo[opID]
	delete(m.undo, opID)
	delete(m.inflight, entry.tenantID)

	prior := entry.prior
	if cur := m.tenants[entry.tenantID]; cur != entry.applied {
		return *cur
	}
	m.tenants[entry.tenantID] = &prior
	return prior
}

// Sync reconciles the working copy with the remote list. Records with an
// operation in flight are left alone, records missing remotely are kept, and
// a remote status change is only taken when the transition table allows it.
func (m *Manager) Sync(ctx context.Context) error {
	remote, err := m.remote.ListTenants(ctx)
	now := m.now()

	m.mu.Lock()
	m.sync.LastAttemptAt = &now
	if err != nil {
		m.sync.LastError = err.Error()
		m.mu.Unlock()
		m.metrics.RecordSync(err)
		m.logger.Warn("Tenant sync failed", zap.Error(err))
		return remoteError("sync", "tenants", err)
	}

	var diverged []string
	var changed []core.Tenant
	for i := range remote {
		r := remote[i]
		if _, busy := m.inflight[r.ID]; busy {
			continue
		}
		cur, ok := m.tenants[r.ID]
		switch {
		case !ok:
		case cur.Status == r.Status:
			if *cur == r {
				continue
			}
		case !CanTransition(cur.Status, r.Status):
			diverged = append(diverged, r.ID)
			continue
		}
		rec := r
		m.tenants[r.ID] = &rec
		changed = append(changed, rec)
	}

	m.sync.Synced = true
	m.sync.LastSyncAt = &now
	m.sync.LastError = ""
	m.sync.Diverged = diverged
	m.mu.Unlock()

	m.metrics.RecordSync(nil)
	m.recordCounts()
	if len(diverged) > 0 {
		m.logger.Warn("Remote tenant status diverges from allowed transitions", zap.Strings("tenant_ids", diverged))
	}
	m.logger.Debug("Tenant sync completed", zap.Int("remote", len(remote)), zap.Int("changed", len(changed)))

	for _, t := range changed {
		m.events.Publish(Event{Kind: EventSynced, Tenant: t})
	}
	return nil
}

func (m *Manager) recordCounts() {
	m.metrics.RecordTenantCounts(m.Stats().ByStatus)
}

func remoteError(op, id string, err error) error {
	if errors.Is(err, core.ErrRemoteRejected) || errors.Is(err, core.ErrRemoteUnavailable) {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return fmt.Errorf("%s %s: %w: %w", op, id, core.ErrRemoteUnavailable, err)
}
