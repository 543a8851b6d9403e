package handlers

import (
	"go.uber.org/zap"

	"github.com/leozw/storefront-controlplane/internal/controlplane"
)

type Handler struct {
	svc    *controlplane.Service
	logger *zap.Logger
}

func NewHandler(svc *controlplane.Service, logger *zap.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}
