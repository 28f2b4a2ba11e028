// internal/transport/transport.go
package transport

import (
	"context"
	"errors"
	"time"
)

// Transport is the byte-oriented bus the protocol engine talks through. One
// Write or Read moves exactly one terminator-delimited message; SerialPoll is
// the cheap single-byte status side channel of the GPIB bus. Implementations
// are not safe for concurrent transactions, the engine serializes access.
type Transport interface {
	// Open establishes the bus connection and configures the controller.
	Open(ctx context.Context) error
	// Close tears the connection down. Safe to call when already closed.
	Close() error
	// IsOpen reports whether the connection is usable.
	IsOpen() bool

	// Write sends one command to the addressed instrument.
	Write(ctx context.Context, data []byte) error
	// Read receives one terminator-delimited message from the instrument.
	Read(ctx context.Context) ([]byte, error)
	// SerialPoll reads the instrument's serial-poll status byte.
	SerialPoll(ctx context.Context) (byte, error)
	// Clear sends a Selected Device Clear, resetting the instrument's
	// input buffer without going through it.
	Clear(ctx context.Context) error
	// Local returns the instrument front panel to local control.
	Local(ctx context.Context) error
}

// ErrTimeout is returned when the instrument does not answer within the
// configured read timeout.
var ErrTimeout = errors.New("transport timeout")

// ErrClosed is returned when an operation is attempted on a closed transport.
var ErrClosed = errors.New("transport closed")

// ConnectionType selects how the GPIB controller is reached.
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "SERIAL"
	ConnectionTypeTCP    ConnectionType = "TCP"
)

// Config describes the bus connection.
type Config struct {
	Type        ConnectionType `mapstructure:"type"`
	GPIBAddress int            `mapstructure:"gpib_address"`
	ReadTimeout time.Duration  `mapstructure:"read_timeout"`

	// Serial settings (Prologix GPIB-USB enumerates as a VCP).
	SerialPort string `mapstructure:"serial_port"`
	BaudRate   int    `mapstructure:"baud_rate"`

	// TCP settings (Prologix GPIB-Ethernet listens on port 1234).
	TCPHost string `mapstructure:"tcp_host"`
	TCPPort int    `mapstructure:"tcp_port"`
}
