package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health is the liveness probe of this service, unrelated to platform health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) Ready(c *gin.Context) {
	if !h.svc.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"health":  h.svc.GetHealthSnapshot().State,
			"tenants": h.svc.ListTenants().Source,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) GetHealthSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.GetHealthSnapshot())
}

func (h *Handler) RefreshHealth(c *gin.Context) {
	view, err := h.svc.RefreshHealth(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Refresh cancelled", "health": view})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) GetTenantHealth(c *gin.Context) {
	snap := h.svc.GetTenantHealth()
	if snap == nil {
		c.JSON(http.StatusOK, gin.H{"state": "pending", "tenants": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) GetTrends(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"trends": h.svc.GetTrends()})
}
