// internal/handler/device_handler.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"calibrator-service/internal/fluke5440b"
	"calibrator-service/internal/model"
	"calibrator-service/internal/utils"
)

// DeviceHandler exposes the calibrator driver over HTTP.
type DeviceHandler struct {
	device *fluke5440b.Device
	logger *zap.Logger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(device *fluke5440b.Device, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		device: device,
		logger: logger.With(zap.String("component", "device-handler")),
	}
}

// RegisterRoutes registers device-related routes
func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	device := router.Group("/device")
	{
		device.GET("/id", h.GetID)
		device.GET("/status", h.GetStatus)
		device.GET("/state", h.GetState)
		device.GET("/error", h.GetError)

		device.GET("/output", h.GetOutput)
		device.POST("/output", h.SetOutput)
		device.POST("/output/enable", h.SetOutputEnabled)
		device.POST("/mode", h.SetMode)

		device.GET("/voltage-limit", h.GetVoltageLimit)
		device.PUT("/voltage-limit", h.SetVoltageLimit)
		device.GET("/current-limit", h.GetCurrentLimit)
		device.PUT("/current-limit", h.SetCurrentLimit)

		device.POST("/sense", h.SetSense)
		device.POST("/guard", h.SetGuard)
		device.POST("/divider", h.SetDivider)

		device.POST("/reset", h.Reset)
		device.POST("/local", h.Local)

		device.GET("/srq-mask", h.GetSrqMask)
		device.PUT("/srq-mask", h.SetSrqMask)
		device.GET("/terminator", h.GetTerminator)
		device.GET("/separator", h.GetSeparator)

		device.GET("/rs232/baud-rate", h.GetBaudRate)
		device.PUT("/rs232/baud-rate", h.SetBaudRate)
		device.POST("/rs232/enable", h.SetRS232Enabled)

		device.GET("/calibration", h.GetCalibrationConstants)
	}
}

// GetID returns the instrument identification, split into fields.
func (h *DeviceHandler) GetID(c *gin.Context) {
	manufacturer, deviceModel, serial, version, err := h.device.GetID(c.Request.Context())
	if err != nil {
		h.deviceError(c, "Failed to read device identification", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device identification retrieved", model.DeviceIdentification{
		Manufacturer: manufacturer,
		Model:        deviceModel,
		SerialNumber: serial,
		Version:      version,
	})
}

// GetStatus returns the decoded instrument status byte.
func (h *DeviceHandler) GetStatus(c *gin.Context) {
	status, err := h.device.GetStatus(c.Request.Context())
	if err != nil {
		h.deviceError(c, "Failed to read device status", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device status retrieved", model.DeviceStatus{
		Raw:               int(status),
		Flags:             status.Names(),
		VoltageMode:       status.Has(fluke5440b.StatusVoltageMode),
		CurrentBoostMode:  status.Has(fluke5440b.StatusCurrentBoostMode),
		VoltageBoostMode:  status.Has(fluke5440b.StatusVoltageBoostMode),
		DividerEnabled:    status.Has(fluke5440b.StatusDividerEnabled),
		InternalSense:     status.Has(fluke5440b.StatusInternalSense),
		OutputEnabled:     status.Has(fluke5440b.StatusOutputEnabled),
		InternalGuard:     status.Has(fluke5440b.StatusInternalGuard),
		RearOutputEnabled: status.Has(fluke5440b.StatusRearOutputEnabled),
	})
}

// GetState returns the instrument's current activity state.
func (h *DeviceHandler) GetState(c *gin.Context) {
	state, err := h.device.GetState(c.Request.Context())
	if err != nil {
		h.deviceError(c, "Failed to read device state", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device state retrieved", model.DeviceStateInfo{
		Value: int(state),
		Name:  state.String(),
	})
}

// GetError pops and returns the oldest queued instrument error.
func (h *DeviceHandler) GetError(c *gin.Context) {
	code, err := h.device.GetError(c.Request.Context())
	if err != nil {
		h.deviceError(c, "Failed to read device error", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device error retrieved", model.DeviceErrorInfo{
		Code:    int(code),
		Message: code.String(),
	})
}

// GetOutput returns the programmed output value.
func (h *DeviceHandler) GetOutput(c *gin.Context) {
	value, err := h.device.GetOutput(c.Request.Context())
	if err != nil {
		h.deviceError(c, "Failed to read output value", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Output value retrieved", model.OutputInfo{Value: value})
}

// SetOutput programs the output value.
func (h *DeviceHandler) SetOutput(c *gin.Context) {
	var req model.SetOutputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	verify := true
	if req.Verify != nil {
		verify = *req.Verify
	}

	if err := h.device.SetOutput(c.Request.Context(), req.Value, verify); err != nil {
		h.deviceError(c, "Failed to set output value", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Output value set", model.OutputInfo{Value: req.Value})
}

// SetOutputEnabled switches between operate and standby.
func (h *DeviceHandler) SetOutputEnabled(c *gin.Context) {
	var req model.SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.device.SetOutputEnabled(c.Request.Context(), *req.Enabled); err != nil {
		h.deviceError(c, "Failed to switch output", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Output switched", gin.H{"enabled": *req.Enabled})
}

// SetMode selects the output mode.
func (h *DeviceHandler) SetMode(c *gin.Context) {
	var req model.SetModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	mode, ok := parseMode(req.Mode)
	if !ok {
		utils.ErrorResponse(c, http.StatusBadRequest, "Unknown output mode", errors.New(req.Mode))
		return
	}

	if err := h.device.SetMode(c.Request.Context(), mode); err != nil {
		h.deviceError(c, "Failed to set output mode", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Output mode set", gin.H{"mode": req.Mode})
}

// GetVoltageLimit returns the positive and negative voltage limits.
func (h *DeviceHandler) GetVoltageLimit(c *gin.Context) {
	pos, neg, err := h.device.GetVoltageLimit(c.Request.Context())
	if err != nil {
		h.deviceError(c, "Failed to read voltage limits", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Voltage limits retrieved", model.VoltageLimits{
		Positive: pos,
		Negative: neg,
	})
}

// SetVoltageLimit programs one or both voltage limits.
func (h *DeviceHandler) SetVoltageLimit(c *gin.Context) {
	var req model.SetLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.device.SetVoltageLimit(c.Request.Context(), req.Limits...); err != nil {
		h.deviceError(c, "Failed to set voltage limits", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Voltage limits set", req)
}

// GetCurrentLimit returns the programmed current limits.
func (h *DeviceHandler) GetCurrentLimit(c *gin.Context) {
	limits, err := h.device.GetCurrentLimit(c.Request.Context())
	if err != nil {
		h.deviceError(c, "Failed to read current limits", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Current limits retrieved", model.CurrentLimits{Limits: limits})
}

// SetCurrentLimit programs one or both current limits.
func (h *DeviceHandler) SetCurrentLimit(c *gin.Context) {
	var req model.SetLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.device.SetCurrentLimit(c.Request.Context(), req.Limits...); err != nil {
		h.deviceError(c, "Failed to set current limits", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Current limits set", req)
}

// SetSense selects internal or external sense.
func (h *DeviceHandler) SetSense(c *gin.Context) {
	var req model.SetInternalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.device.SetInternalSense(c.Request.Context(), *req.Internal); err != nil {
		h.deviceError(c, "Failed to set sense", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Sense set", gin.H{"internal": *req.Internal})
}

// SetGuard selects internal or external guard.
func (h *DeviceHandler) SetGuard(c *gin.Context) {
	var req model.SetInternalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.device.SetInternalGuard(c.Request.Context(), *req.Internal); err != nil {
		h.deviceError(c, "Failed to set guard", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Guard set", gin.H{"internal": *req.Internal})
}

// SetDivider enables or disables the output divider.
func (h *DeviceHandler) SetDivider(c *gin.Context) {
	var req model.SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.device.SetDivider(c.Request.Context(), *req.Enabled); err != nil {
		h.deviceError(c, "Failed to set divider", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Divider set", gin.H{"enabled": *req.Enabled})
}

// Reset issues a device clear and re-runs the connection handshake.
func (h *DeviceHandler) Reset(c *gin.Context) {
	if err := h.device.Reset(c.Request.Context()); err != nil {
		h.deviceError(c, "Failed to reset device", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device reset", nil)
}

// Local returns the instrument to front panel control.
func (h *DeviceHandler) Local(c *gin.Context) {
	if err := h.device.Local(c.Request.Context()); err != nil {
		h.deviceError(c, "Failed to return device to local", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device returned to local control", nil)
}

// GetSrqMask returns the service request mask.
func (h *DeviceHandler) GetSrqMask(c *gin.Context) {
	mask, err := h.device.GetSrqMask(c.Request.Context())
	if err != nil {
		h.deviceError(c, "Failed to read SRQ mask", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "SRQ mask retrieved", model.SrqMaskInfo{
		Value: int(mask),
		Name:  mask.String(),
	})
}

// SetSrqMask programs the service request mask.
func (h *DeviceHandler) SetSrqMask(c *gin.Context) {
	var req model.SetSrqMaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	mask := fluke5440b.SrqMask(*req.Value)
	if err := h.device.SetSrqMask(c.Request.Context(), mask); err != nil {
		h.deviceError(c, "Failed to set SRQ mask", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "SRQ mask set", model.SrqMaskInfo{
		Value: int(mask),
		Name:  mask.String(),
	})
}

// GetTerminator returns the configured response terminator.
func (h *DeviceHandler) GetTerminator(c *gin.Context) {
	term, err := h.device.GetTerminator(c.Request.Context())
	if err != nil {
		h.deviceError(c, "Failed to read terminator", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Terminator retrieved", gin.H{
		"value": int(term),
		"name":  term.String(),
	})
}

// GetSeparator returns the configured response separator.
func (h *DeviceHandler) GetSeparator(c *gin.Context) {
	sep, err := h.device.GetSeparator(c.Request.Context())
	if err != nil {
		h.deviceError(c, "Failed to read separator", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Separator retrieved", gin.H{
		"value": int(sep),
		"name":  sep.String(),
	})
}

// GetBaudRate returns the RS-232 printer port baud rate.
func (h *DeviceHandler) GetBaudRate(c *gin.Context) {
	rate, err := h.device.GetRS232BaudRate(c.Request.Context())
	if err != nil {
		h.deviceError(c, "Failed to read baud rate", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Baud rate retrieved", model.BaudRateInfo{BaudRate: rate})
}

// SetBaudRate programs the RS-232 printer port baud rate and waits for the
// NVRAM write to finish.
func (h *DeviceHandler) SetBaudRate(c *gin.Context) {
	var req model.SetBaudRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.device.SetRS232BaudRate(c.Request.Context(), req.BaudRate); err != nil {
		h.deviceError(c, "Failed to set baud rate", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Baud rate set", model.BaudRateInfo{BaudRate: req.BaudRate})
}

// SetRS232Enabled enables or disables the RS-232 printer port.
func (h *DeviceHandler) SetRS232Enabled(c *gin.Context) {
	var req model.SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.device.SetRS232Enabled(c.Request.Context(), *req.Enabled); err != nil {
		h.deviceError(c, "Failed to switch RS-232 port", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "RS-232 port switched", gin.H{"enabled": *req.Enabled})
}

// GetCalibrationConstants returns the full calibration constant set.
func (h *DeviceHandler) GetCalibrationConstants(c *gin.Context) {
	constants, err := h.device.GetCalibrationConstants(c.Request.Context())
	if err != nil {
		h.deviceError(c, "Failed to read calibration constants", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Calibration constants retrieved", constants)
}

// deviceError maps driver errors onto HTTP status codes.
func (h *DeviceHandler) deviceError(c *gin.Context, message string, err error) {
	var deviceErr *fluke5440b.DeviceError
	var parseErr *fluke5440b.ParseError

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, fluke5440b.ErrNotConnected):
		status = http.StatusServiceUnavailable
	case errors.Is(err, fluke5440b.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, fluke5440b.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.As(err, &deviceErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &parseErr):
		status = http.StatusBadGateway
	}

	h.logger.Error(message,
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	utils.ErrorResponse(c, status, message, err)
}

func parseMode(s string) (fluke5440b.ModeType, bool) {
	switch s {
	case "NORMAL":
		return fluke5440b.ModeNormal, true
	case "VOLTAGE_BOOST":
		return fluke5440b.ModeVoltageBoost, true
	case "CURRENT_BOOST":
		return fluke5440b.ModeCurrentBoost, true
	default:
		return "", false
	}
}
