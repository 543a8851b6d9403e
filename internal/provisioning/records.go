package provisioning

import (
	"fmt"
	"strings"
	"time"

	"github.com/leozw/storefront-controlplane/internal/core"
)

type tenantRecord struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Slug         string     `json:"slug"`
	OwnerEmail   string     `json:"ownerEmail"`
	Status       string     `json:"status"`
	Plan         string     `json:"plan"`
	Region       string     `json:"region"`
	Environment  string     `json:"environment"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastActiveAt *time.Time `json:"lastActiveAt"`
}

type createRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	OwnerEmail  string `json:"ownerEmail"`
	Plan        string `json:"plan,omitempty"`
	Region      string `json:"region,omitempty"`
	Environment string `json:"environment,omitempty"`
}

func (r tenantRecord) toTenant() (core.Tenant, error) {
	status := core.TenantStatus(strings.ToLower(strings.TrimSpace(r.Status)))
	if !status.Valid() {
		return core.Tenant{}, fmt.Errorf("%w: tenant %s has unknown status %q", core.ErrRemoteRejected, r.ID, r.Status)
	}
	if r.ID == "" {
		return core.Tenant{}, fmt.Errorf("%w: tenant record without id", core.ErrRemoteRejected)
	}

	return core.Tenant{
		ID:           r.ID,
		Name:         r.Name,
		Slug:         r.Slug,
		OwnerEmail:   r.OwnerEmail,
		Status:       status,
		Plan:         r.Plan,
		Region:       r.Region,
		Environment:  r.Environment,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastActiveAt: r.LastActiveAt,
	}, nil
}
