package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leozw/storefront-controlplane/internal/api/handlers"
	"github.com/leozw/storefront-controlplane/internal/api/middleware"
	"github.com/leozw/storefront-controlplane/internal/config"
	"github.com/leozw/storefront-controlplane/internal/controlplane"
	"github.com/leozw/storefront-controlplane/internal/core"
)

type Server struct {
	Config *config.Config
	Router *gin.Engine
	svc    *controlplane.Service
	logger *zap.Logger
}

func NewServer(cfg *config.Config, svc *controlplane.Service, logger *zap.Logger) *Server {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	server := &Server{
		Config: cfg,
		Router: router,
		svc:    svc,
		logger: logger,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	h := handlers.NewHandler(s.svc, s.logger)

	s.Router.GET("/healthz", h.Health)
	s.Router.GET("/readyz", h.Ready)
	s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.svc.Metrics().Registry(), promhttp.HandlerOpts{})))

	api := s.Router.Group("/api/v1")
	if s.Config.Auth.JWTSecret != "" {
		api.Use(middleware.AuthRequired(s.Config.Auth.JWTSecret))
	} else {
		s.logger.Warn("JWT secret not configured, API is unauthenticated")
	}
	api.Use(middleware.Operator())

	// Tenant routes
	{
		api.GET("/tenants", h.ListTenants)
		api.POST("/tenants", h.CreateTenant)
		api.GET("/tenants/stats", h.TenantStats)
		api.POST("/tenants/sync", h.SyncTenants)
		api.GET("/tenants/:id", h.GetTenant)
		api.GET("/tenants/:id/actions", h.AllowedActions)
		api.POST("/tenants/:id/activate", h.Transition(core.ActionActivate))
		api.POST("/tenants/:id/suspend", h.Transition(core.ActionSuspend))
		api.POST("/tenants/:id/resume", h.Transition(core.ActionResume))
		api.POST("/tenants/:id/archive", h.Transition(core.ActionArchive))
	}

	// Health routes
	limit := rate.Inf
	if s.Config.Refresh.PerSecond > 0 {
		limit = rate.Limit(s.Config.Refresh.PerSecond)
	}
	refresh := rate.NewLimiter(limit, max(s.Config.Refresh.Burst, 1))
	{
		api.GET("/health", h.GetHealthSnapshot)
		api.POST("/health/refresh", middleware.RateLimit(refresh), h.RefreshHealth)
		api.GET("/health/tenants", h.GetTenantHealth)
		api.GET("/health/trends", h.GetTrends)
		api.GET("/health/stream", h.Stream)
	}
}
