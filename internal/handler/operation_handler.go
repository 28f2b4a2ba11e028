// internal/handler/operation_handler.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"calibrator-service/internal/model"
	"calibrator-service/internal/service"
	"calibrator-service/internal/utils"
)

// OperationHandler exposes long-running instrument operations over HTTP.
// Self tests and internal calibration keep the instrument busy for minutes,
// so they run in the background and are tracked by ID.
type OperationHandler struct {
	operations *service.OperationService
	logger     *zap.Logger
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(operations *service.OperationService, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{
		operations: operations,
		logger:     logger.With(zap.String("component", "operation-handler")),
	}
}

// RegisterRoutes registers operation-related routes
func (h *OperationHandler) RegisterRoutes(router *gin.RouterGroup) {
	operations := router.Group("/operations")
	{
		operations.POST("", h.StartOperation)
		operations.GET("", h.ListOperations)
		operations.GET("/:id", h.GetOperation)
		operations.POST("/:id/cancel", h.CancelOperation)
	}
}

// StartOperation launches a self test or internal calibration in the
// background and returns the tracking record.
func (h *OperationHandler) StartOperation(c *gin.Context) {
	var req model.StartOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	opType := service.OperationType(req.Type)
	if !opType.IsValid() {
		utils.ErrorResponse(c, http.StatusBadRequest, "Unknown operation type", errors.New(req.Type))
		return
	}

	op, err := h.operations.Start(opType)
	if err != nil {
		h.logger.Warn("Failed to start operation",
			zap.String("type", req.Type),
			zap.Error(err),
		)
		utils.ErrorResponse(c, http.StatusConflict, "Failed to start operation", err)
		return
	}

	h.logger.Info("Operation started",
		zap.String("operation_id", op.ID.String()),
		zap.String("type", req.Type),
	)
	utils.SuccessResponse(c, http.StatusAccepted, "Operation started", op)
}

// ListOperations returns all operation records of this process.
func (h *OperationHandler) ListOperations(c *gin.Context) {
	ops := h.operations.List()
	utils.SuccessResponse(c, http.StatusOK, "Operations retrieved", gin.H{
		"operations": ops,
		"count":      len(ops),
	})
}

// GetOperation returns one operation record.
func (h *OperationHandler) GetOperation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid operation ID", err)
		return
	}

	op, err := h.operations.Get(id)
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Operation not found", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Operation retrieved", op)
}

// CancelOperation abandons the wait for a running operation. The instrument
// finishes its routine on its own; only the status polling stops.
func (h *OperationHandler) CancelOperation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid operation ID", err)
		return
	}

	if err := h.operations.Cancel(id); err != nil {
		utils.ErrorResponse(c, http.StatusConflict, "Failed to cancel operation", err)
		return
	}

	h.logger.Info("Operation wait cancelled", zap.String("operation_id", id.String()))
	utils.SuccessResponse(c, http.StatusOK, "Operation wait cancelled", nil)
}
