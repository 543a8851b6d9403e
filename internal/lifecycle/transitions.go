package lifecycle

import (
	"github.com/leozw/storefront-controlplane/internal/core"
)

// transitions is the only source of allowed status changes. Archived has no
// outgoing edges.
var transitions = map[core.TenantStatus][]core.TenantStatus{
	core.TenantProvisioning: {core.TenantActive},
	core.TenantActive:       {core.TenantSuspended, core.TenantArchived},
	core.TenantSuspended:    {core.TenantActive, core.TenantArchived},
	core.TenantArchived:     nil,
}

func CanTransition(from, to core.TenantStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type ActionOption struct {
	Action       core.TenantAction `json:"action"`
	Target       core.TenantStatus `json:"target"`
	Irreversible bool              `json:"irreversible"`
}

// Actions lists what can be requested from status. Reaching active is
// offered as activate from provisioning and as resume otherwise.
func Actions(status core.TenantStatus) []ActionOption {
	var out []ActionOption
	for _, to := range transitions[status] {
		var action core.TenantAction
		switch to {
		case core.TenantActive:
			action = core.ActionResume
			if status == core.TenantProvisioning {
				action = core.ActionActivate
			}
		case core.TenantSuspended:
			action = core.ActionSuspend
		case core.TenantArchived:
			action = core.ActionArchive
		default:
			continue
		}
		out = append(out, ActionOption{Action: action, Target: to, Irreversible: action.Irreversible()})
	}
	return out
}
