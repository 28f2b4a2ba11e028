// internal/fluke5440b/poller.go
package fluke5440b

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// longOperation describes a command that blocks the instrument hardware for
// seconds to minutes. Completion is only observable by polling the state
// query until it returns to idle.
type longOperation struct {
	name    string
	start   string
	timeout time.Duration
	// allowed is the set of states the instrument legitimately passes
	// through. An unexpected state is logged, not treated as failure: the
	// failure signal is the error condition bit.
	allowed map[DeviceState]bool
}

// runLongOperation drives start-poll-finish for one long operation. It holds
// the transaction lock for the whole run; the instrument cannot service other
// commands while busy anyway.
//
// The SRQ mask is set to doing-state-change for the duration, matching the
// front-panel-initiated behavior, and restored on every exit path.
// Cancellation stops the polling only: the hardware continues its operation,
// and a later GetState can resume observation because the state lives in the
// instrument, not in this driver.
func (d *Device) runLongOperation(ctx context.Context, op longOperation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return ErrNotConnected
	}

	if err := d.setSrqMaskLocked(ctx, SrqDoingStateChange); err != nil {
		return err
	}
	defer func() {
		// Best effort with a fresh context: the operation context may
		// already be cancelled.
		restoreCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.setSrqMaskLocked(restoreCtx, SrqNone); err != nil {
			d.logger.Warn("failed to restore SRQ mask",
				zap.String("operation", op.name), zap.Error(err))
		}
	}()

	d.logger.Info("starting long operation",
		zap.String("operation", op.name),
		zap.Duration("timeout", op.timeout))

	if err := d.waitForIdleLocked(ctx); err != nil {
		return err
	}
	if err := d.writeLocked(ctx, op.start, true); err != nil {
		return fmt.Errorf("failed to start %s: %w", op.name, err)
	}

	pollCtx, cancel := context.WithTimeout(ctx, op.timeout)
	defer cancel()

	timeoutTolerated := false
	for {
		if err := sleepCtx(pollCtx, d.cfg.PollInterval); err != nil {
			return d.mapPollErr(ctx, pollCtx, op, err)
		}

		spoll, err := d.serialPollLocked(pollCtx)
		if err != nil {
			// Transient bus errors are documented as tolerable: a
			// single timeout gets one more poll before giving up.
			if isTimeout(err) && !timeoutTolerated {
				timeoutTolerated = true
				d.logger.Warn("transient bus timeout while polling, retrying",
					zap.String("operation", op.name))
				continue
			}
			return d.mapPollErr(ctx, pollCtx, op, err)
		}
		if spoll.Has(SerialPollErrorCondition) {
			code, err := d.errorLocked(pollCtx)
			if err != nil {
				return err
			}
			d.logger.Error("long operation reported a fault",
				zap.String("operation", op.name), zap.Int("code", code))
			return &SelftestError{Step: op.name, Code: code}
		}

		state, err := d.stateLocked(pollCtx)
		if err != nil {
			if isTimeout(err) && !timeoutTolerated {
				timeoutTolerated = true
				continue
			}
			return d.mapPollErr(ctx, pollCtx, op, err)
		}
		timeoutTolerated = false
		d.notifyState(state)

		if state == StateIdle {
			d.logger.Info("long operation finished", zap.String("operation", op.name))
			return nil
		}
		if !op.allowed[state] {
			d.logger.Warn("unexpected state during long operation",
				zap.String("operation", op.name), zap.Stringer("state", state))
		} else {
			d.logger.Info("long operation progress",
				zap.String("operation", op.name), zap.Stringer("state", state))
		}
	}
}

// mapPollErr distinguishes the overall deadline from caller cancellation:
// hitting the deadline is a timeout failure, abandonment is not an instrument
// failure and is passed through unchanged.
func (d *Device) mapPollErr(ctx, pollCtx context.Context, op longOperation, err error) error {
	if errors.Is(pollCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%s did not reach idle within %v: %w", op.name, op.timeout, ErrTimeout)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		d.logger.Info("long operation wait abandoned, instrument continues",
			zap.String("operation", op.name))
		return ctxErr
	}
	return err
}

// waitForIdleLocked polls the state query until the instrument reports idle.
func (d *Device) waitForIdleLocked(ctx context.Context) error {
	for {
		state, err := d.stateLocked(ctx)
		if err != nil {
			return err
		}
		if state == StateIdle {
			return nil
		}
		d.logger.Info("calibrator busy", zap.Stringer("state", state))
		d.notifyState(state)
		if err := sleepCtx(ctx, d.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// waitForStateChangeLocked waits until the doing-state-change bit clears,
// i.e. a settings change has been applied.
func (d *Device) waitForStateChangeLocked(ctx context.Context) error {
	for {
		spoll, err := d.serialPollLocked(ctx)
		if err != nil {
			return err
		}
		if !spoll.Has(SerialPollDoingStateChange) {
			return nil
		}
		if err := sleepCtx(ctx, d.cfg.StateChangeDelay); err != nil {
			return err
		}
	}
}

// waitForNVRAMLocked waits out an NVRAM write with the doing-state-change SRQ
// mask set, restoring it afterwards.
func (d *Device) waitForNVRAMLocked(ctx context.Context) error {
	if err := d.setSrqMaskLocked(ctx, SrqDoingStateChange); err != nil {
		return err
	}
	defer func() {
		restoreCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.setSrqMaskLocked(restoreCtx, SrqNone); err != nil {
			d.logger.Warn("failed to restore SRQ mask", zap.Error(err))
		}
	}()

	// The write begins shortly after the command is accepted.
	if err := sleepCtx(ctx, d.cfg.StateChangeDelay); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.cfg.NVRAMTimeout)
	defer cancel()
	if err := d.waitForIdleLocked(waitCtx); err != nil {
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("NVRAM write did not finish within %v: %w",
				d.cfg.NVRAMTimeout, ErrTimeout)
		}
		return err
	}
	return nil
}

// SelftestDigital tests the main, front panel and guard CPUs. Takes about
// five seconds; the instrument hardware is blocked throughout.
func (d *Device) SelftestDigital(ctx context.Context) error {
	return d.runLongOperation(ctx, longOperation{
		name:    "digital self-test",
		start:   cmdSelftestDigital,
		timeout: d.cfg.SelftestDigitalTimeout,
		allowed: map[DeviceState]bool{
			StateSelfTestMainCPU:       true,
			StateSelfTestFrontpanelCPU: true,
			StateSelfTestGuardCPU:      true,
		},
	})
}

// SelftestAnalog tests the ADC, the low-voltage section and the reference
// oven. Takes about four minutes.
func (d *Device) SelftestAnalog(ctx context.Context) error {
	return d.runLongOperation(ctx, longOperation{
		name:    "analog self-test",
		start:   cmdSelftestAnalog,
		timeout: d.cfg.SelftestAnalogTimeout,
		allowed: map[DeviceState]bool{
			StateCalibratingADC:     true,
			StateSelfTestLowVoltage: true,
			StateSelfTestOven:       true,
		},
	})
}

// SelftestHV tests the ADC and the high-voltage section. Takes about one
// minute.
func (d *Device) SelftestHV(ctx context.Context) error {
	return d.runLongOperation(ctx, longOperation{
		name:    "high voltage self-test",
		start:   cmdSelftestHV,
		timeout: d.cfg.SelftestHVTimeout,
		allowed: map[DeviceState]bool{
			StateCalibratingADC:      true,
			StateSelfTestHighVoltage: true,
		},
	})
}

// SelftestAll runs the digital, analog and high-voltage self-tests in
// sequence, stopping at the first failure.
func (d *Device) SelftestAll(ctx context.Context) error {
	if err := d.SelftestDigital(ctx); err != nil {
		return err
	}
	if err := d.SelftestAnalog(ctx); err != nil {
		return err
	}
	return d.SelftestHV(ctx)
}

// ACal runs the internal calibration routine, recalculating the internal gain
// and offset constants. Takes about 6.5 minutes.
func (d *Device) ACal(ctx context.Context) error {
	return d.runLongOperation(ctx, longOperation{
		name:    "internal calibration",
		start:   cmdCalibrate,
		timeout: d.cfg.ACalTimeout,
		allowed: map[DeviceState]bool{
			StateCalibratingADC:  true,
			StateZeroing10VPos:   true,
			StateCalN1N2Ratio:    true,
			StateZeroing10VNeg:   true,
			StateZeroing20VPos:   true,
			StateZeroing20VNeg:   true,
			StateZeroing250VPos:  true,
			StateZeroing250VNeg:  true,
			StateZeroing1000VPos: true,
			StateZeroing1000VNeg: true,
			StateCalGain10VPos:   true,
			StateCalGain20VPos:   true,
			StateCalGainHVPos:    true,
			StateCalGainHVNeg:    true,
			StateCalGain20VNeg:   true,
			StateCalGain10VNeg:   true,
			StateWritingToNVRAM:  true,
		},
	})
}
