// internal/fluke5440b/flags_test.go
package fluke5440b

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeSerialPoll(t *testing.T) {
	flags := DecodeSerialPoll(0b00100000)
	assert.True(t, flags.Has(SerialPollErrorCondition))
	assert.False(t, flags.Has(SerialPollMsgReady))
	assert.False(t, flags.Has(SerialPollDoingStateChange))
	assert.False(t, flags.Has(SerialPollOutputSettled))
	assert.False(t, flags.Has(SerialPollSRQ))

	flags = DecodeSerialPoll(0b01101000)
	assert.True(t, flags.Has(SerialPollSRQ))
	assert.True(t, flags.Has(SerialPollErrorCondition))
	assert.True(t, flags.Has(SerialPollMsgReady))
	assert.False(t, flags.Has(SerialPollOutputSettled))

	// Undocumented bits are preserved, not dropped.
	flags = DecodeSerialPoll(0b10000001)
	assert.Equal(t, byte(0b10000001), byte(flags))
}

func TestSerialPollString(t *testing.T) {
	assert.Equal(t, "none", DecodeSerialPoll(0).String())
	assert.Equal(t, "error condition", DecodeSerialPoll(0b00100000).String())
	assert.Equal(t, "message ready|service request",
		DecodeSerialPoll(0b01001000).String())
}

func TestSrqMask(t *testing.T) {
	assert.Equal(t, SrqMask(0), SrqNone)
	assert.True(t, (SrqDoingStateChange | SrqErrorCondition).Has(SrqDoingStateChange))
	assert.False(t, SrqDoingStateChange.Has(SrqErrorCondition))
	assert.Equal(t, "doing state change", SrqDoingStateChange.String())
}

func TestStatusFlags(t *testing.T) {
	status := StatusVoltageMode | StatusInternalSense | StatusOutputEnabled

	assert.True(t, status.Has(StatusVoltageMode))
	assert.True(t, status.Has(StatusInternalSense))
	assert.False(t, status.Has(StatusDividerEnabled))
	assert.ElementsMatch(t,
		[]string{"voltage mode", "internal sense", "output enabled"},
		status.Names())
	assert.Equal(t, "none", StatusFlags(0).String())
}

func TestErrorCodeNames(t *testing.T) {
	assert.Equal(t, "none", ErrorNone.String())
	assert.Equal(t, "output outside limits", ErrorOutputOutsideLimits.String())
	assert.True(t, ErrorInvalidParameter.IsValid())
	assert.False(t, ErrorCode(42).IsValid())
	assert.Equal(t, "error code 42", ErrorCode(42).String())
}

func TestDeviceStateNames(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "writing to NVRAM", StateWritingToNVRAM.String())
	assert.False(t, DeviceState(97).IsValid())
	assert.Equal(t, "state 97", DeviceState(97).String())
}
