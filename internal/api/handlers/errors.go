package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/leozw/storefront-controlplane/internal/core"
)

// respondError maps domain errors onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var te *core.TransitionError
	switch {
	case errors.As(err, &te):
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
			"from":  te.From,
			"to":    te.To,
		})
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Another operation is in progress for this tenant"})
	case errors.Is(err, core.ErrInvalidTransition), errors.Is(err, core.ErrInvalidSpec):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrRemoteRejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrRemoteUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Provisioning service unavailable"})
	default:
		h.logger.Error("Unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
