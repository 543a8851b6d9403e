package core

import (
	"time"
)

type TenantStatus string

const (
	TenantProvisioning TenantStatus = "provisioning"
	TenantActive       TenantStatus = "active"
	TenantSuspended    TenantStatus = "suspended"
	TenantArchived     TenantStatus = "archived"
)

func (s TenantStatus) Valid() bool {
	switch s {
	case TenantProvisioning, TenantActive, TenantSuspended, TenantArchived:
		return true
	}
	return false
}

// Tenant is one customer's store as last confirmed by the provisioning API.
// Status is only changed through lifecycle transitions.
type Tenant struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Slug        string       `json:"slug"`
	OwnerEmail  string       `json:"owner_email"`
	Status      TenantStatus `json:"status"`
	Plan        string       `json:"plan,omitempty"`
	Region      string       `json:"region,omitempty"`
	Environment string       `json:"environment,omitempty"`

	// Metadata
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
}

// TenantSpec is the payload of a provisioning request.
type TenantSpec struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	OwnerEmail  string `json:"owner_email"`
	Plan        string `json:"plan,omitempty"`
	Region      string `json:"region,omitempty"`
	Environment string `json:"environment,omitempty"`
}

type TenantAction string

const (
	ActionActivate TenantAction = "activate"
	ActionSuspend  TenantAction = "suspend"
	ActionResume   TenantAction = "resume"
	ActionArchive  TenantAction = "archive"
)

// Target is the status an action moves a tenant into.
func (a TenantAction) Target() TenantStatus {
	switch a {
	case ActionActivate, ActionResume:
		return TenantActive
	case ActionSuspend:
		return TenantSuspended
	case ActionArchive:
		return TenantArchived
	}
	return ""
}

// Irreversible reports whether the action leads into a terminal status.
func (a TenantAction) Irreversible() bool {
	return a == ActionArchive
}

type TenantStats struct {
	Total        int                  `json:"total"`
	ByStatus     map[TenantStatus]int `json:"by_status"`
	InFlightOps  int                  `json:"in_flight_ops"`
	LastSyncedAt *time.Time           `json:"last_synced_at,omitempty"`
}
