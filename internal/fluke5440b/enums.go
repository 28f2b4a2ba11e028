// internal/fluke5440b/enums.go
package fluke5440b

import "fmt"

// ErrorCode is an error number reported by the instrument via the GERR query.
// The values are fixed by the 5440B firmware and must not be renumbered.
type ErrorCode int

const (
	ErrorNone                      ErrorCode = 0
	ErrorBoostInterfaceConnection  ErrorCode = 144
	ErrorBoostInterfaceMissing     ErrorCode = 145
	ErrorBoostInterfaceVoltageTrip ErrorCode = 146
	ErrorBoostInterfaceCurrentTrip ErrorCode = 147
	ErrorGPIBHandshake             ErrorCode = 152
	ErrorTerminator                ErrorCode = 153
	ErrorSeparator                 ErrorCode = 154
	ErrorUnknownCommand            ErrorCode = 155
	ErrorInvalidParameter          ErrorCode = 156
	ErrorBufferOverflow            ErrorCode = 157
	ErrorInvalidCharacter          ErrorCode = 158
	ErrorRS232                     ErrorCode = 160
	ErrorParameterOutOfRange       ErrorCode = 168
	ErrorOutputOutsideLimits       ErrorCode = 169
	ErrorLimitOutOfRange           ErrorCode = 170
	ErrorDividerOutOfRange         ErrorCode = 171
	ErrorInvalidSenseMode          ErrorCode = 172
	ErrorInvalidGuardMode          ErrorCode = 173
	ErrorInvalidCommand            ErrorCode = 175
)

var errorCodeNames = map[ErrorCode]string{
	ErrorNone:                      "none",
	ErrorBoostInterfaceConnection:  "boost interface connection error",
	ErrorBoostInterfaceMissing:     "boost interface missing",
	ErrorBoostInterfaceVoltageTrip: "boost interface voltage trip",
	ErrorBoostInterfaceCurrentTrip: "boost interface current trip",
	ErrorGPIBHandshake:             "GPIB handshake error",
	ErrorTerminator:                "terminator error",
	ErrorSeparator:                 "separator error",
	ErrorUnknownCommand:            "unknown command",
	ErrorInvalidParameter:          "invalid parameter",
	ErrorBufferOverflow:            "buffer overflow",
	ErrorInvalidCharacter:          "invalid character",
	ErrorRS232:                     "RS-232 interface error",
	ErrorParameterOutOfRange:       "parameter out of range",
	ErrorOutputOutsideLimits:       "output outside limits",
	ErrorLimitOutOfRange:           "limit out of range",
	ErrorDividerOutOfRange:         "divider out of range",
	ErrorInvalidSenseMode:          "invalid sense mode",
	ErrorInvalidGuardMode:          "invalid guard mode",
	ErrorInvalidCommand:            "invalid command",
}

// IsValid reports whether the code is one of the documented error numbers.
func (e ErrorCode) IsValid() bool {
	_, ok := errorCodeNames[e]
	return ok
}

func (e ErrorCode) String() string {
	if name, ok := errorCodeNames[e]; ok {
		return name
	}
	// The GERR reply is ambiguous: after a self-test it may carry a
	// self-test error number instead of a regular error code.
	return fmt.Sprintf("error code %d", int(e))
}

// DeviceState is the operating state reported by the GDNG query. IDLE is the
// only state in which the instrument accepts new configuration commands.
type DeviceState int

const (
	StateIdle                  DeviceState = 0
	StateCalibratingADC        DeviceState = 16
	StateZeroing10VPos         DeviceState = 32
	StateZeroing10VNeg         DeviceState = 33
	StateZeroing20VPos         DeviceState = 34
	StateZeroing20VNeg         DeviceState = 35
	StateZeroing250VPos        DeviceState = 36
	StateZeroing250VNeg        DeviceState = 37
	StateZeroing1000VPos       DeviceState = 38
	StateZeroing1000VNeg       DeviceState = 39
	StateCalGain10VPos         DeviceState = 48
	StateCalGain20VPos         DeviceState = 49
	StateCalGainHVPos          DeviceState = 50
	StateCalGainHVNeg          DeviceState = 51
	StateCalGain20VNeg         DeviceState = 52
	StateCalGain10VNeg         DeviceState = 53
	StateExtCal10V             DeviceState = 64
	StateExtCal20V             DeviceState = 65
	StateExtCal250V            DeviceState = 66
	StateExtCal1000V           DeviceState = 67
	StateExtCal2V              DeviceState = 68
	StateExtCal02V             DeviceState = 69
	StateExtCal10VNull         DeviceState = 80
	StateExtCal20VNull         DeviceState = 81
	StateExtCal250VNull        DeviceState = 82
	StateExtCal1000VNull       DeviceState = 83
	StateExtCal2VNull          DeviceState = 84
	StateExtCal02VNull         DeviceState = 85
	StateCalN1N2Ratio          DeviceState = 96
	StateSelfTestMainCPU       DeviceState = 112
	StateSelfTestFrontpanelCPU DeviceState = 113
	StateSelfTestGuardCPU      DeviceState = 114
	StateSelfTestLowVoltage    DeviceState = 128
	StateSelfTestHighVoltage   DeviceState = 129
	StateSelfTestOven          DeviceState = 130
	StatePrinting              DeviceState = 208
	StateWritingToNVRAM        DeviceState = 224
	StateResetting             DeviceState = 240
)

var deviceStateNames = map[DeviceState]string{
	StateIdle:                  "idle",
	StateCalibratingADC:        "calibrating ADC",
	StateZeroing10VPos:         "zeroing +10V range",
	StateZeroing10VNeg:         "zeroing -10V range",
	StateZeroing20VPos:         "zeroing +20V range",
	StateZeroing20VNeg:         "zeroing -20V range",
	StateZeroing250VPos:        "zeroing +250V range",
	StateZeroing250VNeg:        "zeroing -250V range",
	StateZeroing1000VPos:       "zeroing +1000V range",
	StateZeroing1000VNeg:       "zeroing -1000V range",
	StateCalGain10VPos:         "calibrating gain +10V range",
	StateCalGain20VPos:         "calibrating gain +20V range",
	StateCalGainHVPos:          "calibrating gain +HV range",
	StateCalGainHVNeg:          "calibrating gain -HV range",
	StateCalGain20VNeg:         "calibrating gain -20V range",
	StateCalGain10VNeg:         "calibrating gain -10V range",
	StateExtCal10V:             "external calibration 10V",
	StateExtCal20V:             "external calibration 20V",
	StateExtCal250V:            "external calibration 250V",
	StateExtCal1000V:           "external calibration 1000V",
	StateExtCal2V:              "external calibration 2V",
	StateExtCal02V:             "external calibration 0.2V",
	StateExtCal10VNull:         "external calibration 10V null",
	StateExtCal20VNull:         "external calibration 20V null",
	StateExtCal250VNull:        "external calibration 250V null",
	StateExtCal1000VNull:       "external calibration 1000V null",
	StateExtCal2VNull:          "external calibration 2V null",
	StateExtCal02VNull:         "external calibration 0.2V null",
	StateCalN1N2Ratio:          "calibrating N1/N2 ratio",
	StateSelfTestMainCPU:       "self-test main CPU",
	StateSelfTestFrontpanelCPU: "self-test frontpanel CPU",
	StateSelfTestGuardCPU:      "self-test guard CPU",
	StateSelfTestLowVoltage:    "self-test low voltage",
	StateSelfTestHighVoltage:   "self-test high voltage",
	StateSelfTestOven:          "self-test oven",
	StatePrinting:              "printing",
	StateWritingToNVRAM:        "writing to NVRAM",
	StateResetting:             "resetting",
}

// IsValid reports whether the value is a documented device state.
func (s DeviceState) IsValid() bool {
	_, ok := deviceStateNames[s]
	return ok
}

func (s DeviceState) String() string {
	if name, ok := deviceStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state %d", int(s))
}

// ModeType selects the output mode. Voltage boost drives an external Fluke
// 5205A power amplifier, current boost a Fluke 5220A transconductance
// amplifier. The values are the command mnemonics sent on the wire.
type ModeType string

const (
	ModeNormal       ModeType = "BSTO"
	ModeVoltageBoost ModeType = "BSTV"
	ModeCurrentBoost ModeType = "BSTC"
)

// IsValid reports whether the mode is one of the three documented modes.
func (m ModeType) IsValid() bool {
	switch m {
	case ModeNormal, ModeVoltageBoost, ModeCurrentBoost:
		return true
	}
	return false
}

// SeparatorType is the token separator the instrument places between multiple
// reply values, negotiated via SSEP/GSEP.
type SeparatorType int

const (
	SeparatorComma SeparatorType = 0
	SeparatorColon SeparatorType = 1
)

// Rune returns the separator character used on the wire.
func (s SeparatorType) Rune() rune {
	if s == SeparatorColon {
		return ':'
	}
	return ','
}

// IsValid reports whether the value is a documented separator.
func (s SeparatorType) IsValid() bool {
	return s == SeparatorComma || s == SeparatorColon
}

func (s SeparatorType) String() string {
	switch s {
	case SeparatorComma:
		return "comma"
	case SeparatorColon:
		return "colon"
	}
	return fmt.Sprintf("separator %d", int(s))
}

// TerminatorType is the line terminator appended to instrument replies,
// negotiated via STRM/GTRM.
type TerminatorType int

const (
	TerminatorEOI     TerminatorType = 0
	TerminatorCRLFEOI TerminatorType = 1
	TerminatorLFEOI   TerminatorType = 2
	TerminatorCRLF    TerminatorType = 3
	TerminatorLF      TerminatorType = 4
)

// IsValid reports whether the value is a documented terminator.
func (t TerminatorType) IsValid() bool {
	return t >= TerminatorEOI && t <= TerminatorLF
}

func (t TerminatorType) String() string {
	switch t {
	case TerminatorEOI:
		return "EOI"
	case TerminatorCRLFEOI:
		return "CR LF EOI"
	case TerminatorLFEOI:
		return "LF EOI"
	case TerminatorCRLF:
		return "CR LF"
	case TerminatorLF:
		return "LF"
	}
	return fmt.Sprintf("terminator %d", int(t))
}
