// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"calibrator-service/internal/config"
	"calibrator-service/internal/discovery"
	"calibrator-service/internal/fluke5440b"
	"calibrator-service/internal/handler"
	"calibrator-service/internal/middleware"
	"calibrator-service/internal/service"
)

// Router holds all dependencies for routing
type Router struct {
	config     *config.Config
	logger     *zap.Logger
	device     *fluke5440b.Device
	operations *service.OperationService
	events     *service.EventBus
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	device *fluke5440b.Device,
	operations *service.OperationService,
	events *service.EventBus,
) *Router {
	return &Router{
		config:     config,
		logger:     logger,
		device:     device,
		operations: operations,
		events:     events,
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
	router.Use(middleware.LoggingMiddleware(r.logger))
	router.Use(middleware.CORSMiddleware(r.config.Server.AllowedOrigins))
}

// addRoutes adds all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.device, r.config)
	healthHandler.RegisterRoutes(router)

	v1 := router.Group("/api/v1")
	{
		deviceHandler := handler.NewDeviceHandler(r.device, r.logger)
		deviceHandler.RegisterRoutes(v1)

		operationHandler := handler.NewOperationHandler(r.operations, r.logger)
		operationHandler.RegisterRoutes(v1)

		discoveryHandler := handler.NewDiscoveryHandler(discovery.NewScanner(r.logger), r.logger)
		discoveryHandler.RegisterRoutes(v1)
	}

	ws := router.Group("/ws")
	{
		wsHandler := handler.NewWebSocketHandler(r.events, r.logger)
		wsHandler.RegisterRoutes(ws)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Route not found",
			"path":    c.Request.URL.Path,
		})
	})
}
