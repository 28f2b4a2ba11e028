// internal/handler/discovery_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"calibrator-service/internal/discovery"
	"calibrator-service/internal/utils"
)

// DiscoveryHandler helps an operator locate the GPIB adapter on the host.
type DiscoveryHandler struct {
	scanner *discovery.Scanner
	logger  *zap.Logger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(scanner *discovery.Scanner, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		scanner: scanner,
		logger:  logger.With(zap.String("component", "discovery-handler")),
	}
}

// RegisterRoutes registers discovery-related routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/discovery")
	{
		group.GET("/serial-ports", h.ListSerialPorts)
	}
}

// ListSerialPorts returns the serial ports found on the host.
func (h *DiscoveryHandler) ListSerialPorts(c *gin.Context) {
	ports, err := h.scanner.SerialPorts()
	if err != nil {
		h.logger.Error("Serial port scan failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to scan serial ports", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Serial ports retrieved", gin.H{
		"ports": ports,
		"count": len(ports),
	})
}
