// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mavgate/internal/config"
	"mavgate/internal/handler"
	"mavgate/internal/middleware"
	"mavgate/internal/service"
	"mavgate/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config      *config.Config
	logger      *zap.Logger
	linkService *service.LinkService
	eventBus    *handler.EventBus
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	linkService *service.LinkService,
	eventBus *handler.EventBus,
) *Router {
	return &Router{
		config:      config,
		logger:      logger,
		linkService: linkService,
		eventBus:    eventBus,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Server))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	wsHandler := handler.NewWebSocketHandler(r.eventBus, r.logger)
	healthHandler := handler.NewHealthHandler(r.config, r.linkService, wsHandler, r.logger)
	linkHandler := handler.NewLinkHandler(r.linkService, r.logger)

	// Health check routes
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	r.addLinkRoutes(apiV1, linkHandler)

	// WebSocket routes
	ws := router.Group("/ws")
	ws.GET("/events", wsHandler.HandleEventConnection)

	r.logger.Info("All routes configured successfully")
}

// addLinkRoutes sets up link management routes
func (r *Router) addLinkRoutes(api *gin.RouterGroup, linkHandler *handler.LinkHandler) {
	links := api.Group("/links")
	{
		links.POST("", linkHandler.OpenLink)
		links.GET("", linkHandler.ListLinks)

		link := links.Group("/:link_id")
		{
			link.GET("", linkHandler.GetLink)
			link.GET("/stats", linkHandler.GetLinkStats)
			link.DELETE("", linkHandler.CloseLink)
		}
	}

	api.GET("/stats", linkHandler.GetGatewayStats)
}
