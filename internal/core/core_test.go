package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotOverall(t *testing.T) {
	snap := &Snapshot{
		Backend:  Component{Health: HealthStatus{Level: LevelOK}},
		Database: Component{Health: HealthStatus{Level: LevelWarn}},
		System:   Component{Health: HealthStatus{Level: LevelOK}},
	}
	assert.Equal(t, LevelWarn, snap.Overall())

	snap.System.Health.Level = LevelDown
	assert.Equal(t, LevelDown, snap.Overall())
}

func TestTransitionErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("suspend: %w", &TransitionError{TenantID: "t-1", From: TenantArchived, To: TenantSuspended})

	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Contains(t, err.Error(), "archived -> suspended")

	var te *TransitionError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, TenantArchived, te.From)
}

func TestActionTargets(t *testing.T) {
	assert.Equal(t, TenantActive, ActionActivate.Target())
	assert.Equal(t, TenantActive, ActionResume.Target())
	assert.Equal(t, TenantSuspended, ActionSuspend.Target())
	assert.Equal(t, TenantArchived, ActionArchive.Target())
	assert.Equal(t, TenantStatus(""), TenantAction("delete").Target())

	assert.True(t, ActionArchive.Irreversible())
	assert.False(t, ActionSuspend.Irreversible())
	assert.False(t, TenantStatus("deleted").Valid())
}

func TestMetricsGetDistinguishesAbsent(t *testing.T) {
	m := Metrics{MetricErrorRate: 0}

	v, ok := m.Get(MetricErrorRate)
	assert.True(t, ok)
	assert.Zero(t, v)

	_, ok = m.Get(MetricLatencyMs)
	assert.False(t, ok)

	clone := m.Clone()
	clone[MetricLatencyMs] = 1
	_, ok = m.Get(MetricLatencyMs)
	assert.False(t, ok)
}
