// internal/fluke5440b/errors.go
package fluke5440b

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes callers are expected to branch on
// with errors.Is.
var (
	// ErrNotConnected is returned when an operation is attempted before
	// Connect or after Disconnect.
	ErrNotConnected = errors.New("device not connected")

	// ErrTimeout is returned when a transport round trip or a long
	// operation's overall deadline elapses.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidParameter is returned when a caller-supplied parameter is
	// outside the documented instrument limits. It is raised before any
	// bus traffic.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ParseError is returned when an instrument reply cannot be decoded into the
// requested type. Undocumented firmware replies are surfaced, never silently
// mapped to a default.
type ParseError struct {
	Input string // the offending token
	Want  string // what the caller expected, e.g. "integer"
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid reply: expected %s, received %q", e.Want, e.Input)
}

// DeviceError is returned when the instrument reports a nonzero error code,
// either through the verify round trip after a write or through an explicit
// GetError query.
type DeviceError struct {
	Command string    // the command that triggered the error, if known
	Code    ErrorCode // the instrument error code
	Message string    // reply the instrument had queued alongside the error, if any
}

func (e *DeviceError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("device error: %s (%d)", e.Code, int(e.Code))
	}
	if e.Message != "" {
		return fmt.Sprintf("device error on command %q: %s (%d), message: %s",
			e.Command, e.Code, int(e.Code), e.Message)
	}
	return fmt.Sprintf("device error on command %q: %s (%d)", e.Command, e.Code, int(e.Code))
}

// SelftestError is returned when a self-test or internal calibration reports
// a fault during its busy window. Code carries the raw error number from the
// GERR query; the self-test numbering overlaps the regular ErrorCode space
// and is not fully documented, so it is kept as reported.
type SelftestError struct {
	Step string // which test failed: "digital", "analog", "high voltage", "acal"
	Code int
}

func (e *SelftestError) Error() string {
	return fmt.Sprintf("%s self-test failed with code %d", e.Step, e.Code)
}
