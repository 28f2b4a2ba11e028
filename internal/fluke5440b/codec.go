// internal/fluke5440b/codec.go
package fluke5440b

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Command mnemonics of the 5440B. Queries start with G, setters with S where
// the firmware follows that convention; the boolean toggles encode the value
// in the mnemonic itself.
const (
	cmdGetVersion      = "GVRS"
	cmdGetOutput       = "GOUT"
	cmdSetOutput       = "SOUT"
	cmdGetState        = "GDNG"
	cmdGetError        = "GERR"
	cmdGetStatus       = "GSTS"
	cmdGetTerminator   = "GTRM"
	cmdSetTerminator   = "STRM"
	cmdGetSeparator    = "GSEP"
	cmdSetSeparator    = "SSEP"
	cmdGetSrqMask      = "GSRQ"
	cmdSetSrqMask      = "SSRQ"
	cmdGetVoltLimit    = "GVLM"
	cmdSetVoltLimit    = "SVLM"
	cmdGetCurrLimit    = "GCLM"
	cmdSetCurrLimit    = "SCLM"
	cmdGetBaudRate     = "GBDR"
	cmdSetBaudRate     = "SBDR"
	cmdGetCalConst     = "GCAL"
	cmdOperate         = "OPER"
	cmdStandby         = "STBY"
	cmdInternalSense   = "ISNS"
	cmdExternalSense   = "ESNS"
	cmdInternalGuard   = "IGRD"
	cmdExternalGuard   = "EGRD"
	cmdDividerOn       = "DIVY"
	cmdDividerOff      = "DIVN"
	cmdMonitorOn       = "MONY"
	cmdMonitorOff      = "MONN"
	cmdSelftestDigital = "TSTD"
	cmdSelftestAnalog  = "TSTA"
	cmdSelftestHV      = "TSTH"
	cmdCalibrate       = "CALI"
)

// maxCommandLen is the size of the instrument's input buffer. Longer commands
// are rejected locally instead of overflowing it.
const maxCommandLen = 127

// formatNumeric renders a decimal the way the instrument wants it (operator
// manual page 4-5): fixed 8 decimal places, and at most 8 significant digits,
// so values at or above 1 are truncated to 9 characters (decimal point plus
// 8 digits). 10 nV is the finest resolution the hardware resolves.
func formatNumeric(value decimal.Decimal) string {
	result := value.StringFixed(8)
	if value.Abs().GreaterThanOrEqual(decimal.New(1, 0)) && len(result) > 9 {
		result = result[:9]
	}
	return result
}

// encodeSet builds a setter command with a numeric argument.
func encodeSet(mnemonic string, value decimal.Decimal) string {
	return fmt.Sprintf("%s %s", mnemonic, formatNumeric(value))
}

// encodeSetInt builds a setter command with a small integer argument.
func encodeSetInt(mnemonic string, value int) string {
	return fmt.Sprintf("%s %d", mnemonic, value)
}

// splitResponse strips the trailing terminator framing and splits a raw reply
// into its tokens at the currently negotiated separator.
func splitResponse(raw []byte, sep SeparatorType) []string {
	trimmed := strings.TrimRight(string(raw), "\r\n \t")
	if trimmed == "" {
		return nil
	}
	tokens := strings.Split(trimmed, string(sep.Rune()))
	for i, t := range tokens {
		tokens[i] = strings.TrimSpace(t)
	}
	return tokens
}

// parseDecimal converts a reply token to an arbitrary-precision decimal. The
// instrument's accuracy reaches parts per million, so binary floats are never
// used for instrument-facing values.
func parseDecimal(token string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(token)
	if err != nil {
		return decimal.Decimal{}, &ParseError{Input: token, Want: "decimal number"}
	}
	return value, nil
}

// parseInt converts a reply token to an integer.
func parseInt(token string) (int, error) {
	value, err := strconv.Atoi(token)
	if err != nil {
		return 0, &ParseError{Input: token, Want: "integer"}
	}
	return value, nil
}

// parseTerminator decodes a GTRM reply.
func parseTerminator(token string) (TerminatorType, error) {
	value, err := parseInt(token)
	if err != nil {
		return 0, err
	}
	term := TerminatorType(value)
	if !term.IsValid() {
		return 0, &ParseError{Input: token, Want: "terminator type"}
	}
	return term, nil
}

// parseSeparator decodes a GSEP reply.
func parseSeparator(token string) (SeparatorType, error) {
	value, err := parseInt(token)
	if err != nil {
		return 0, err
	}
	sep := SeparatorType(value)
	if !sep.IsValid() {
		return 0, &ParseError{Input: token, Want: "separator type"}
	}
	return sep, nil
}

// parseState decodes a GDNG reply. Undocumented states are surfaced as a
// ParseError rather than being coerced to idle.
func parseState(token string) (DeviceState, error) {
	value, err := parseInt(token)
	if err != nil {
		return 0, err
	}
	state := DeviceState(value)
	if !state.IsValid() {
		return 0, &ParseError{Input: token, Want: "device state"}
	}
	return state, nil
}
