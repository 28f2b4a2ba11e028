// internal/fluke5440b/flags.go
package fluke5440b

import "strings"

// SerialPollFlags is the status byte returned by a GPIB serial poll. Bit
// positions are fixed by the instrument and decoding never fails: undocumented
// bit combinations are preserved as-is.
type SerialPollFlags byte

const (
	SerialPollDoingStateChange SerialPollFlags = 1 << 2
	SerialPollMsgReady         SerialPollFlags = 1 << 3
	SerialPollOutputSettled    SerialPollFlags = 1 << 4
	SerialPollErrorCondition   SerialPollFlags = 1 << 5
	SerialPollSRQ              SerialPollFlags = 1 << 6
)

// DecodeSerialPoll maps a raw serial-poll byte to its flag set.
func DecodeSerialPoll(b byte) SerialPollFlags {
	return SerialPollFlags(b)
}

// Has reports whether all bits of flag are set.
func (f SerialPollFlags) Has(flag SerialPollFlags) bool {
	return f&flag == flag
}

func (f SerialPollFlags) String() string {
	if f == 0 {
		return "none"
	}
	names := []struct {
		flag SerialPollFlags
		name string
	}{
		{SerialPollDoingStateChange, "doing state change"},
		{SerialPollMsgReady, "message ready"},
		{SerialPollOutputSettled, "output settled"},
		{SerialPollErrorCondition, "error condition"},
		{SerialPollSRQ, "service request"},
	}
	var parts []string
	for _, n := range names {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// SrqMask selects which serial-poll conditions assert the SRQ line, written
// via SSRQ and read back via GSRQ. The bit positions mirror SerialPollFlags
// minus the SRQ bit itself.
type SrqMask byte

const (
	SrqNone             SrqMask = 0
	SrqDoingStateChange SrqMask = 1 << 2
	SrqMsgReady         SrqMask = 1 << 3
	SrqOutputSettled    SrqMask = 1 << 4
	SrqErrorCondition   SrqMask = 1 << 5
)

// Has reports whether all bits of mask are set.
func (m SrqMask) Has(mask SrqMask) bool {
	return m&mask == mask
}

func (m SrqMask) String() string {
	return SerialPollFlags(m).String()
}

// StatusFlags is the persistent configuration register returned by the GSTS
// query. Several flags are legitimately set at once, e.g. divider plus
// internal sense.
type StatusFlags byte

const (
	StatusVoltageMode       StatusFlags = 1 << 0
	StatusCurrentBoostMode  StatusFlags = 1 << 1
	StatusVoltageBoostMode  StatusFlags = 1 << 2
	StatusDividerEnabled    StatusFlags = 1 << 3
	StatusInternalSense     StatusFlags = 1 << 4
	StatusOutputEnabled     StatusFlags = 1 << 5
	StatusInternalGuard     StatusFlags = 1 << 6
	StatusRearOutputEnabled StatusFlags = 1 << 7
)

// Has reports whether all bits of flag are set.
func (f StatusFlags) Has(flag StatusFlags) bool {
	return f&flag == flag
}

// Names returns the names of every set flag.
func (f StatusFlags) Names() []string {
	names := []struct {
		flag StatusFlags
		name string
	}{
		{StatusVoltageMode, "voltage mode"},
		{StatusCurrentBoostMode, "current boost mode"},
		{StatusVoltageBoostMode, "voltage boost mode"},
		{StatusDividerEnabled, "divider enabled"},
		{StatusInternalSense, "internal sense"},
		{StatusOutputEnabled, "output enabled"},
		{StatusInternalGuard, "internal guard"},
		{StatusRearOutputEnabled, "rear output enabled"},
	}
	var parts []string
	for _, n := range names {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return parts
}

func (f StatusFlags) String() string {
	parts := f.Names()
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
