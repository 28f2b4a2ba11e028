// internal/model/api.go
package model

import (
	"github.com/shopspring/decimal"
)

// DeviceIdentification is the parsed GID reply.
type DeviceIdentification struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number"`
	Version      string `json:"version"`
}

// DeviceStatus reports the decoded GSTS status byte.
type DeviceStatus struct {
	Raw               int      `json:"raw"`
	Flags             []string `json:"flags"`
	VoltageMode       bool     `json:"voltage_mode"`
	CurrentBoostMode  bool     `json:"current_boost_mode"`
	VoltageBoostMode  bool     `json:"voltage_boost_mode"`
	DividerEnabled    bool     `json:"divider_enabled"`
	InternalSense     bool     `json:"internal_sense"`
	OutputEnabled     bool     `json:"output_enabled"`
	InternalGuard     bool     `json:"internal_guard"`
	RearOutputEnabled bool     `json:"rear_output_enabled"`
}

// DeviceStateInfo reports the GDNG state register.
type DeviceStateInfo struct {
	Value int    `json:"value"`
	Name  string `json:"name"`
}

// DeviceErrorInfo reports the error queue head read via GERR.
type DeviceErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OutputInfo reports the programmed output value.
type OutputInfo struct {
	Value decimal.Decimal `json:"value"`
}

// SetOutputRequest programs the output value. Verify defaults to true; it
// trades a round trip for immediate rejection feedback.
type SetOutputRequest struct {
	Value  decimal.Decimal `json:"value" binding:"required"`
	Verify *bool           `json:"verify"`
}

// SetEnabledRequest toggles a boolean instrument setting.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetInternalRequest selects between internal and external sense or guard.
type SetInternalRequest struct {
	Internal *bool `json:"internal" binding:"required"`
}

// SetModeRequest selects the output mode.
type SetModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// VoltageLimits carries the positive and negative voltage limit pair.
type VoltageLimits struct {
	Positive decimal.Decimal `json:"positive"`
	Negative decimal.Decimal `json:"negative"`
}

// SetLimitsRequest programs one or two limit values. One value bounds the
// polarity it carries; two values must carry opposite signs.
type SetLimitsRequest struct {
	Limits []decimal.Decimal `json:"limits" binding:"required,min=1,max=2"`
}

// CurrentLimits carries the programmed current limit values, one or two.
type CurrentLimits struct {
	Limits []decimal.Decimal `json:"limits"`
}

// SrqMaskInfo reports the service request mask.
type SrqMaskInfo struct {
	Value int    `json:"value"`
	Name  string `json:"name"`
}

// SetSrqMaskRequest programs the service request mask.
type SetSrqMaskRequest struct {
	Value *int `json:"value" binding:"required"`
}

// BaudRateInfo reports the RS-232 printer port baud rate.
type BaudRateInfo struct {
	BaudRate decimal.Decimal `json:"baud_rate"`
}

// SetBaudRateRequest programs the RS-232 printer port baud rate. Only the
// thirteen rates of the instrument's table are accepted.
type SetBaudRateRequest struct {
	BaudRate decimal.Decimal `json:"baud_rate" binding:"required"`
}

// StartOperationRequest launches a long-running operation.
type StartOperationRequest struct {
	Type string `json:"type" binding:"required"`
}
