// internal/transport/serial.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.bug.st/serial"
)

// SerialDialer opens the virtual COM port a Prologix GPIB-USB controller
// enumerates as.
func SerialDialer(port string, baudRate int, readTimeout time.Duration) Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mode := &serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		p, err := serial.Open(port, mode)
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
		}
		if err := p.SetReadTimeout(readTimeout); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
		return &serialStream{port: p}, nil
	}
}

// serialStream adapts a serial port to the stream contract: a read that
// returns no data within the port timeout is a timeout error, not a silent
// empty read.
type serialStream struct {
	port serial.Port
}

func (s *serialStream) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		// go.bug.st/serial signals an expired read timeout with a
		// zero-length read.
		return 0, ErrTimeout
	}
	return n, nil
}

func (s *serialStream) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *serialStream) Close() error {
	return s.port.Close()
}

// translateTimeout folds the various deadline errors of the stream
// implementations into ErrTimeout.
func translateTimeout(err error) error {
	if errors.Is(err, ErrTimeout) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, io.ErrNoProgress) {
		return ErrTimeout
	}
	return err
}
