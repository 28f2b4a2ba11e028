// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"calibrator-service/internal/config"
	"calibrator-service/internal/fluke5440b"
	"calibrator-service/internal/utils"
)

// HealthHandler reports service liveness and the GPIB link state.
type HealthHandler struct {
	device    *fluke5440b.Device
	config    *config.Config
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(device *fluke5440b.Device, cfg *config.Config) *HealthHandler {
	return &HealthHandler{
		device:    device,
		config:    cfg,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

// Health reports process liveness.
func (h *HealthHandler) Health(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Service is healthy", gin.H{
		"service": h.config.App.Name,
		"version": h.config.App.Version,
		"uptime":  time.Since(h.startTime).String(),
	})
}

// Ready reports whether the instrument link is up. Load balancers route
// traffic away while the calibrator is disconnected.
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.device.IsConnected() {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Device is not connected", nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Service is ready", gin.H{
		"device_connected": true,
	})
}
