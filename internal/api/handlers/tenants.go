package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/leozw/storefront-controlplane/internal/core"
)

type CreateTenantRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Slug        string `json:"slug" binding:"omitempty,max=63"`
	OwnerEmail  string `json:"owner_email" binding:"omitempty,email"`
	Plan        string `json:"plan"`
	Region      string `json:"region"`
	Environment string `json:"environment"`
}

func (h *Handler) ListTenants(c *gin.Context) {
	list := h.svc.ListTenants()

	if status := c.Query("status"); status != "" {
		if !core.TenantStatus(status).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status filter"})
			return
		}
		filtered := make([]core.Tenant, 0, len(list.Tenants))
		for _, t := range list.Tenants {
			if t.Status == core.TenantStatus(status) {
				filtered = append(filtered, t)
			}
		}
		list.Tenants = filtered
	}

	c.JSON(http.StatusOK, list)
}

func (h *Handler) TenantStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.TenantStats())
}

func (h *Handler) GetTenant(c *gin.Context) {
	tenant, err := h.svc.GetTenant(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenant)
}

func (h *Handler) AllowedActions(c *gin.Context) {
	actions, err := h.svc.AllowedActions(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

func (h *Handler) CreateTenant(c *gin.Context) {
	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenant, err := h.svc.CreateTenant(c.Request.Context(), core.TenantSpec{
		Name:        req.Name,
		Slug:        req.Slug,
		OwnerEmail:  req.OwnerEmail,
		Plan:        req.Plan,
		Region:      req.Region,
		Environment: req.Environment,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("Tenant created",
		zap.String("tenant_id", tenant.ID),
		zap.String("operator", c.GetString("operator")),
	)
	c.JSON(http.StatusCreated, tenant)
}

// Transition returns a handler applying action to the tenant in the path.
func (h *Handler) Transition(action core.TenantAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		tenant, err := h.svc.Transition(c.Request.Context(), id, action)
		if err != nil {
			h.respondError(c, err)
			return
		}

		h.logger.Info("Tenant transition applied",
			zap.String("tenant_id", id),
			zap.String("action", string(action)),
			zap.String("status", string(tenant.Status)),
			zap.String("operator", c.GetString("operator")),
		)
		c.JSON(http.StatusOK, tenant)
	}
}

func (h *Handler) SyncTenants(c *gin.Context) {
	list, err := h.svc.SyncTenants(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
