// internal/fluke5440b/device.go
package fluke5440b

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"calibrator-service/internal/transport"
)

// baudRates is the RS-232 rate table of the instrument. The wire value of the
// SBDR/GBDR commands is the index into this table. 134.5 baud is why the
// table holds decimals.
var baudRates = func() []decimal.Decimal {
	raw := []string{"50", "75", "110", "134.5", "150", "200", "300", "600",
		"1200", "1800", "2400", "4800", "9600"}
	rates := make([]decimal.Decimal, len(raw))
	for i, r := range raw {
		rates[i] = decimal.RequireFromString(r)
	}
	return rates
}()

// Config holds the protocol timing knobs. The zero value is usable; every
// field has a default applied by New.
type Config struct {
	// VerifyDelay is the pause between writing a command and the verify
	// serial poll. The instrument parses commands slowly; polling earlier
	// returns stale status.
	VerifyDelay time.Duration `mapstructure:"verify_delay"`
	// PollInterval is the minimum spacing of state queries during long
	// operations. The instrument reacts badly to over-frequent polls.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// StateChangeDelay is the spacing of serial polls while waiting for a
	// settings change to be applied.
	StateChangeDelay time.Duration `mapstructure:"state_change_delay"`

	// Overall deadlines per long operation, set generously above the
	// documented durations (digital ≈5 s, HV ≈1 min, analog ≈4 min,
	// acal ≈6.5 min, NVRAM write ≈1.5 min).
	SelftestDigitalTimeout time.Duration `mapstructure:"selftest_digital_timeout"`
	SelftestAnalogTimeout  time.Duration `mapstructure:"selftest_analog_timeout"`
	SelftestHVTimeout      time.Duration `mapstructure:"selftest_hv_timeout"`
	ACalTimeout            time.Duration `mapstructure:"acal_timeout"`
	NVRAMTimeout           time.Duration `mapstructure:"nvram_timeout"`
}

func (c Config) withDefaults() Config {
	if c.VerifyDelay <= 0 {
		c.VerifyDelay = 200 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.StateChangeDelay <= 0 {
		c.StateChangeDelay = 500 * time.Millisecond
	}
	if c.SelftestDigitalTimeout <= 0 {
		c.SelftestDigitalTimeout = 30 * time.Second
	}
	if c.SelftestAnalogTimeout <= 0 {
		c.SelftestAnalogTimeout = 10 * time.Minute
	}
	if c.SelftestHVTimeout <= 0 {
		c.SelftestHVTimeout = 5 * time.Minute
	}
	if c.ACalTimeout <= 0 {
		c.ACalTimeout = 15 * time.Minute
	}
	if c.NVRAMTimeout <= 0 {
		c.NVRAMTimeout = 3 * time.Minute
	}
	return c
}

// Device is the protocol driver for the Fluke 5440B voltage calibrator. All
// operations issued through one Device are serialized: the bus is half-duplex
// and interleaved transactions would misattribute responses.
type Device struct {
	transport transport.Transport
	logger    *zap.Logger
	cfg       Config

	mu            sync.Mutex // serializes bus transactions
	connected     bool
	separator     SeparatorType
	stateListener func(DeviceState)
}

// New creates a driver on the given transport. The transport is shared, not
// owned: Connect opens it and Disconnect closes it, but other collaborators
// may hold a reference.
func New(t transport.Transport, cfg Config, logger *zap.Logger) *Device {
	return &Device{
		transport: t,
		cfg:       cfg.withDefaults(),
		logger:    logger.With(zap.String("driver", "fluke5440b")),
		separator: SeparatorComma,
	}
}

// SetStateListener registers a callback invoked with every device state
// observed while a long operation polls. Used to stream progress; may be nil.
func (d *Device) SetStateListener(fn func(DeviceState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateListener = fn
}

func (d *Device) notifyState(state DeviceState) {
	if d.stateListener != nil {
		d.stateListener(state)
	}
}

// Connect opens the transport and initializes the instrument side: pending
// boot messages are drained, stale error flags cleared, and the LF+EOI
// terminator, comma separator and an empty SRQ mask are negotiated.
func (d *Device) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return nil
	}

	if err := d.transport.Open(ctx); err != nil {
		return fmt.Errorf("failed to open transport: %w", err)
	}
	d.connected = true
	d.separator = SeparatorComma

	if err := d.initLocked(ctx); err != nil {
		d.connected = false
		d.transport.Close()
		return fmt.Errorf("instrument initialization failed: %w", err)
	}

	d.logger.Info("calibrator connected")
	return nil
}

func (d *Device) initLocked(ctx context.Context) error {
	// Clear the SRQ bit and drain whatever the instrument queued before we
	// attached, e.g. power-on self-test chatter.
	spoll, err := d.serialPollLocked(ctx)
	if err != nil {
		return err
	}
	for spoll.Has(SerialPollMsgReady) {
		msg, err := d.readRawLocked(ctx)
		if err != nil {
			return err
		}
		d.logger.Debug("calibrator message at boot", zap.ByteString("message", msg))
		if spoll, err = d.serialPollLocked(ctx); err != nil {
			return err
		}
	}
	if spoll.Has(SerialPollErrorCondition) {
		// Clear error flags we did not produce.
		code, err := d.errorLocked(ctx)
		if err != nil {
			return err
		}
		d.logger.Debug("calibrator error at boot", zap.Stringer("code", ErrorCode(code)))
	}

	state, err := d.stateLocked(ctx)
	if err != nil {
		return err
	}
	d.logger.Debug("calibrator state at boot", zap.Stringer("state", state))
	if state != StateIdle {
		if err := d.waitForIdleLocked(ctx); err != nil {
			return err
		}
	}

	if err := d.setTerminatorLocked(ctx, TerminatorLFEOI); err != nil {
		return err
	}
	if err := d.setSeparatorLocked(ctx, SeparatorComma); err != nil {
		return err
	}
	return d.setSrqMaskLocked(ctx, SrqNone)
}

// Disconnect releases the instrument. It clears local lockout by returning
// the front panel to local control, then closes the transport. Calling it
// again, or without a prior Connect, is harmless.
func (d *Device) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	// Give the front panel back before dropping the bus; a failure here
	// must not keep us from closing.
	if err := d.transport.Local(ctx); err != nil {
		d.logger.Debug("failed to return instrument to local", zap.Error(err))
	}
	if err := d.transport.Close(); err != nil {
		d.logger.Error("failed to close transport", zap.Error(err))
	}

	d.connected = false
	d.logger.Info("calibrator disconnected")
	return nil
}

// IsConnected reports whether Connect has completed successfully.
func (d *Device) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// GetID identifies the instrument in *IDN? style: manufacturer, model,
// serial number (always zero, the 5440B does not report one) and the
// firmware version from the GVRS query.
func (d *Device) GetID(ctx context.Context) (manufacturer, model, serial, version string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	version, err = d.queryOneLocked(ctx, cmdGetVersion, true)
	if err != nil {
		return "", "", "", "", err
	}
	return "Fluke", "5440B", "0", version, nil
}

// Write sends a raw command. With verify set, the engine performs the
// verify-accepted round trip: a serial poll after the command, and a GERR
// query when the error bit is set, doubling the bus traffic in exchange for
// immediate failure on a rejected command.
func (d *Device) Write(ctx context.Context, cmd string, verify bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeLocked(ctx, cmd, verify)
}

// Read receives one reply and splits it at the negotiated separator.
func (d *Device) Read(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readLocked(ctx)
}

// Query combines Write and Read in one serialized transaction.
func (d *Device) Query(ctx context.Context, cmd string, verify bool) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryLocked(ctx, cmd, verify)
}

// SerialPoll reads and decodes the serial-poll status byte. Reading it also
// clears the instrument's SRQ bit.
func (d *Device) SerialPoll(ctx context.Context) (SerialPollFlags, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.serialPollLocked(ctx)
}

func (d *Device) writeLocked(ctx context.Context, cmd string, verify bool) error {
	if !d.connected {
		return ErrNotConnected
	}
	if len(cmd) > maxCommandLen {
		return fmt.Errorf("command exceeds the %d byte instrument input buffer: %w",
			maxCommandLen, ErrInvalidParameter)
	}

	if err := d.transport.Write(ctx, []byte(cmd)); err != nil {
		return mapTransportErr("write", err)
	}
	if !verify {
		return nil
	}

	// The instrument is slow to parse; polling immediately reads status
	// from before the command was consumed.
	if err := sleepCtx(ctx, d.cfg.VerifyDelay); err != nil {
		return err
	}
	spoll, err := d.serialPollLocked(ctx)
	if err != nil {
		return err
	}
	if !spoll.Has(SerialPollErrorCondition) {
		return nil
	}

	d.logger.Debug("error condition after command",
		zap.String("command", cmd),
		zap.Stringer("serial_poll", spoll),
	)
	var msg string
	if spoll.Has(SerialPollMsgReady) {
		// The command produced a reply; it must be read before the
		// error query or the queues get out of step.
		raw, err := d.readRawLocked(ctx)
		if err != nil {
			return err
		}
		msg = strings.TrimRight(string(raw), "\r\n")
	}
	code, err := d.errorLocked(ctx)
	if err != nil {
		return err
	}
	return &DeviceError{Command: cmd, Code: ErrorCode(code), Message: msg}
}

func (d *Device) readRawLocked(ctx context.Context) ([]byte, error) {
	if !d.connected {
		return nil, ErrNotConnected
	}
	raw, err := d.transport.Read(ctx)
	if err != nil {
		return nil, mapTransportErr("read", err)
	}
	return raw, nil
}

func (d *Device) readLocked(ctx context.Context) ([]string, error) {
	raw, err := d.readRawLocked(ctx)
	if err != nil {
		return nil, err
	}
	return splitResponse(raw, d.separator), nil
}

func (d *Device) queryLocked(ctx context.Context, cmd string, verify bool) ([]string, error) {
	if err := d.writeLocked(ctx, cmd, verify); err != nil {
		return nil, err
	}
	return d.readLocked(ctx)
}

func (d *Device) queryOneLocked(ctx context.Context, cmd string, verify bool) (string, error) {
	tokens, err := d.queryLocked(ctx, cmd, verify)
	if err != nil {
		return "", err
	}
	if len(tokens) != 1 {
		return "", &ParseError{Input: fmt.Sprintf("%v", tokens), Want: "single value"}
	}
	return tokens[0], nil
}

func (d *Device) serialPollLocked(ctx context.Context) (SerialPollFlags, error) {
	if !d.connected {
		return 0, ErrNotConnected
	}
	b, err := d.transport.SerialPoll(ctx)
	if err != nil {
		return 0, mapTransportErr("serial poll", err)
	}
	return DecodeSerialPoll(b), nil
}

// errorLocked runs the GERR query. It never verifies: verifying the error
// query with another error query would recurse forever.
func (d *Device) errorLocked(ctx context.Context) (int, error) {
	token, err := d.queryOneLocked(ctx, cmdGetError, false)
	if err != nil {
		return 0, err
	}
	return parseInt(token)
}

func (d *Device) stateLocked(ctx context.Context) (DeviceState, error) {
	token, err := d.queryOneLocked(ctx, cmdGetState, true)
	if err != nil {
		return 0, err
	}
	return parseState(token)
}

// Reset places the instrument in standby with voltage mode, zero output and
// divider, external guard and external sense disabled. It is issued as a
// Selected Device Clear so it bypasses the input buffer, then the line
// settings are negotiated again because the reset wiped them.
func (d *Device) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return ErrNotConnected
	}
	if err := d.transport.Clear(ctx); err != nil {
		return mapTransportErr("device clear", err)
	}

	// The device does not accept commands while restoring its settings:
	// wait on the status byte first, then poll the state query.
	if err := d.waitForStateChangeLocked(ctx); err != nil {
		return err
	}
	if err := d.waitForIdleLocked(ctx); err != nil {
		return err
	}

	if err := d.setTerminatorLocked(ctx, TerminatorLFEOI); err != nil {
		return err
	}
	if err := d.setSeparatorLocked(ctx, SeparatorComma); err != nil {
		return err
	}
	return d.setSrqMaskLocked(ctx, SrqNone)
}

// Local re-enables the front panel buttons if the instrument is in local
// lockout.
func (d *Device) Local(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return ErrNotConnected
	}
	return d.transport.Local(ctx)
}

// GetTerminator returns the line terminator the instrument appends to
// replies.
func (d *Device) GetTerminator(ctx context.Context) (TerminatorType, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	token, err := d.queryOneLocked(ctx, cmdGetTerminator, true)
	if err != nil {
		return 0, err
	}
	return parseTerminator(token)
}

func (d *Device) setTerminatorLocked(ctx context.Context, value TerminatorType) error {
	if err := d.writeLocked(ctx, encodeSetInt(cmdSetTerminator, int(value)), true); err != nil {
		return err
	}
	return d.waitForStateChangeLocked(ctx)
}

// GetSeparator returns the separator the instrument places between multiple
// reply values.
func (d *Device) GetSeparator(ctx context.Context) (SeparatorType, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	token, err := d.queryOneLocked(ctx, cmdGetSeparator, true)
	if err != nil {
		return 0, err
	}
	return parseSeparator(token)
}

func (d *Device) setSeparatorLocked(ctx context.Context, value SeparatorType) error {
	if err := d.writeLocked(ctx, encodeSetInt(cmdSetSeparator, int(value)), true); err != nil {
		return err
	}
	d.separator = value
	return d.waitForStateChangeLocked(ctx)
}

// SetMode selects normal output or one of the boost modes driven by an
// external amplifier.
func (d *Device) SetMode(ctx context.Context, mode ModeType) error {
	if !mode.IsValid() {
		return fmt.Errorf("unknown mode %q: %w", string(mode), ErrInvalidParameter)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeLocked(ctx, string(mode), true)
}

// SetOutputEnabled switches between OPERATE and STANDBY.
func (d *Device) SetOutputEnabled(ctx context.Context, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmd := cmdStandby
	if enabled {
		cmd = cmdOperate
	}
	return d.writeLocked(ctx, cmd, true)
}

// GetOutput returns the programmed output voltage.
func (d *Device) GetOutput(ctx context.Context) (decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	token, err := d.queryOneLocked(ctx, cmdGetOutput, true)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return parseDecimal(token)
}

// SetOutput programs the output value. Values beyond the ±1500 V hard limit
// are rejected locally regardless of verify. Setting an output beyond ±22 V
// makes the instrument drop to standby for safety; the caller has to re-enable
// the output with SetOutputEnabled afterwards. That is instrument behavior,
// not an error, and it is not hidden here.
func (d *Device) SetOutput(ctx context.Context, value decimal.Decimal, verify bool) error {
	if value.Abs().GreaterThan(decimal.NewFromInt(1500)) {
		return fmt.Errorf("output %s V exceeds the ±1500 V hard limit: %w",
			value.String(), ErrInvalidParameter)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.writeLocked(ctx, encodeSet(cmdSetOutput, value), verify)
	var devErr *DeviceError
	if errors.As(err, &devErr) && devErr.Code == ErrorOutputOutsideLimits {
		return fmt.Errorf("output %s V outside the programmed limits: %w",
			value.String(), ErrInvalidParameter)
	}
	return err
}

// SetInternalSense selects 2-wire (internal) or 4-wire (external) sensing.
// Internal sense is for loads above 1 MΩ where cable resistance is
// negligible.
func (d *Device) SetInternalSense(ctx context.Context, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmd := cmdExternalSense
	if enabled {
		cmd = cmdInternalSense
	}
	err := d.writeLocked(ctx, cmd, true)
	var devErr *DeviceError
	if errors.As(err, &devErr) && devErr.Code == ErrorInvalidSenseMode {
		return fmt.Errorf("sense mode not allowed in the current configuration: %w",
			ErrInvalidParameter)
	}
	return err
}

// SetInternalGuard connects the guard to the output LO terminal (for floating
// loads) or releases it for external guarding of grounded loads.
func (d *Device) SetInternalGuard(ctx context.Context, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmd := cmdExternalGuard
	if enabled {
		cmd = cmdInternalGuard
	}
	err := d.writeLocked(ctx, cmd, true)
	var devErr *DeviceError
	if errors.As(err, &devErr) && devErr.Code == ErrorInvalidGuardMode {
		return fmt.Errorf("guard mode not allowed in the current configuration: %w",
			ErrInvalidParameter)
	}
	return err
}

// SetDivider toggles the internal 1:10 / 1:100 divider used for low-noise
// outputs between -2.2 V and 2.2 V.
func (d *Device) SetDivider(ctx context.Context, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmd := cmdDividerOff
	if enabled {
		cmd = cmdDividerOn
	}
	return d.writeLocked(ctx, cmd, true)
}

// GetVoltageLimit returns the positive and negative voltage limit. The
// instrument reports them negative-first; this returns positive-first.
func (d *Device) GetVoltageLimit(ctx context.Context) (pos, neg decimal.Decimal, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tokens, err := d.queryLocked(ctx, cmdGetVoltLimit, true)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	if len(tokens) != 2 {
		return decimal.Decimal{}, decimal.Decimal{}, &ParseError{
			Input: fmt.Sprintf("%v", tokens), Want: "two values",
		}
	}
	if neg, err = parseDecimal(tokens[0]); err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	if pos, err = parseDecimal(tokens[1]); err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	return pos, neg, nil
}

// SetVoltageLimit sets one or both voltage limits. With a single value the
// polarity slot is inferred from its sign and the other limit is left
// unchanged. With two values one must be positive and one negative (zero
// counts for either).
func (d *Device) SetVoltageLimit(ctx context.Context, limits ...decimal.Decimal) error {
	if err := validateLimits(limits, decimal.NewFromInt(1500), "voltage"); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeLimitsLocked(ctx, cmdSetVoltLimit, limits)
}

// GetCurrentLimit returns the programmed current limits. Depending on the
// mode the instrument reports one or two values; both are returned as given.
func (d *Device) GetCurrentLimit(ctx context.Context) ([]decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tokens, err := d.queryLocked(ctx, cmdGetCurrLimit, true)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, &ParseError{Input: "", Want: "at least one value"}
	}
	limits := make([]decimal.Decimal, len(tokens))
	for i, t := range tokens {
		if limits[i], err = parseDecimal(t); err != nil {
			return nil, err
		}
	}
	if len(limits) == 2 {
		// Same wire order as GVLM: negative first.
		limits[0], limits[1] = limits[1], limits[0]
	}
	return limits, nil
}

// SetCurrentLimit sets one or both current limits, bounded at ±20 A. The
// polarity rules match SetVoltageLimit.
func (d *Device) SetCurrentLimit(ctx context.Context, limits ...decimal.Decimal) error {
	if err := validateLimits(limits, decimal.NewFromInt(20), "current"); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeLimitsLocked(ctx, cmdSetCurrLimit, limits)
}

// validateLimits enforces the documented limit rules before any bus traffic.
func validateLimits(limits []decimal.Decimal, bound decimal.Decimal, kind string) error {
	switch len(limits) {
	case 1, 2:
	default:
		return fmt.Errorf("%s limit takes one or two values, got %d: %w",
			kind, len(limits), ErrInvalidParameter)
	}
	for _, l := range limits {
		if l.Abs().GreaterThan(bound) {
			return fmt.Errorf("%s limit %s exceeds ±%s: %w",
				kind, l.String(), bound.String(), ErrInvalidParameter)
		}
	}
	if len(limits) == 2 && limits[0].Mul(limits[1]).IsPositive() {
		return fmt.Errorf("%s limits must have opposite polarity: %w",
			kind, ErrInvalidParameter)
	}
	return nil
}

// writeLimitsLocked issues the limit setter once per value, second value
// first, the way the firmware expects paired updates.
func (d *Device) writeLimitsLocked(ctx context.Context, mnemonic string, limits []decimal.Decimal) error {
	if len(limits) == 2 {
		if err := d.writeLocked(ctx, encodeSet(mnemonic, limits[1]), true); err != nil {
			return d.mapLimitErr(err)
		}
	}
	return d.mapLimitErr(d.writeLocked(ctx, encodeSet(mnemonic, limits[0]), true))
}

func (d *Device) mapLimitErr(err error) error {
	var devErr *DeviceError
	if errors.As(err, &devErr) && devErr.Code == ErrorLimitOutOfRange {
		return fmt.Errorf("limit rejected by the instrument: %w", ErrInvalidParameter)
	}
	return err
}

// GetStatus returns the persistent configuration register: mode, divider,
// sense, guard, output and rear-output state.
func (d *Device) GetStatus(ctx context.Context) (StatusFlags, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	token, err := d.queryOneLocked(ctx, cmdGetStatus, true)
	if err != nil {
		return 0, err
	}
	value, err := parseInt(token)
	if err != nil {
		return 0, err
	}
	return StatusFlags(value), nil
}

// GetError returns the last error reported by the instrument. ErrorNone is a
// regular, expected result. Checking it is the caller's responsibility when
// commands are written without the verify round trip.
func (d *Device) GetError(ctx context.Context) (ErrorCode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	code, err := d.errorLocked(ctx)
	if err != nil {
		return 0, err
	}
	return ErrorCode(code), nil
}

// GetState returns the operating state. Anything other than StateIdle means
// the instrument is busy and will not take configuration commands.
func (d *Device) GetState(ctx context.Context) (DeviceState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked(ctx)
}

// GetSrqMask returns the conditions that assert the SRQ line.
func (d *Device) GetSrqMask(ctx context.Context) (SrqMask, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	token, err := d.queryOneLocked(ctx, cmdGetSrqMask, true)
	if err != nil {
		return 0, err
	}
	value, err := parseInt(token)
	if err != nil {
		return 0, err
	}
	return SrqMask(value), nil
}

// SetSrqMask selects which serial-poll conditions assert the SRQ line.
func (d *Device) SetSrqMask(ctx context.Context, mask SrqMask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setSrqMaskLocked(ctx, mask)
}

func (d *Device) setSrqMaskLocked(ctx context.Context, mask SrqMask) error {
	return d.writeLocked(ctx, encodeSetInt(cmdSetSrqMask, int(mask)), true)
}

// GetRS232BaudRate returns the RS-232 printer port baud rate.
func (d *Device) GetRS232BaudRate(ctx context.Context) (decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	token, err := d.queryOneLocked(ctx, cmdGetBaudRate, true)
	if err != nil {
		return decimal.Decimal{}, err
	}
	index, err := parseInt(token)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if index < 0 || index >= len(baudRates) {
		return decimal.Decimal{}, &ParseError{Input: token, Want: "baud rate index"}
	}
	return baudRates[index], nil
}

// SetRS232BaudRate programs the printer port baud rate. The instrument
// persists the setting to NVRAM, which keeps it busy for about 1.5 minutes;
// this call waits for the write to finish.
func (d *Device) SetRS232BaudRate(ctx context.Context, rate decimal.Decimal) error {
	index := -1
	for i, r := range baudRates {
		if r.Equal(rate) {
			index = i
			break
		}
	}
	if index < 0 {
		return fmt.Errorf("baud rate %s not supported (available: %s): %w",
			rate.String(), baudRateList(), ErrInvalidParameter)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info("setting RS-232 baud rate, NVRAM write takes about 1.5 minutes",
		zap.String("baud_rate", rate.String()))

	if err := d.writeLocked(ctx, encodeSetInt(cmdSetBaudRate, index), true); err != nil {
		return err
	}
	return d.waitForNVRAMLocked(ctx)
}

// SetRS232Enabled toggles the RS-232 printer port.
func (d *Device) SetRS232Enabled(ctx context.Context, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmd := cmdMonitorOff
	if enabled {
		cmd = cmdMonitorOn
	}
	return d.writeLocked(ctx, cmd, true)
}

func baudRateList() string {
	s := ""
	for i, r := range baudRates {
		if i > 0 {
			s += ", "
		}
		s += r.String()
	}
	return s
}

// mapTransportErr folds transport deadline failures into ErrTimeout so
// callers branch on one sentinel for the whole taxonomy.
func mapTransportErr(op string, err error) error {
	if errors.Is(err, transport.ErrTimeout) {
		return fmt.Errorf("bus %s timed out: %w", op, ErrTimeout)
	}
	return fmt.Errorf("bus %s failed: %w", op, err)
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, transport.ErrTimeout)
}

// sleepCtx pauses without stalling unrelated work, honoring cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
