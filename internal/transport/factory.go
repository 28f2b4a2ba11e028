// internal/transport/factory.go
package transport

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// New creates a Transport from configuration. Both connection types end up at
// a Prologix controller; they differ only in how the byte stream is opened.
func New(cfg *Config, logger *zap.Logger) (Transport, error) {
	switch ConnectionType(strings.ToUpper(string(cfg.Type))) {
	case ConnectionTypeSerial:
		if cfg.SerialPort == "" {
			return nil, fmt.Errorf("serial transport requires a port")
		}
		baud := cfg.BaudRate
		if baud == 0 {
			baud = 115200
		}
		dial := SerialDialer(cfg.SerialPort, baud, cfg.ReadTimeout)
		return NewPrologix(dial, cfg.GPIBAddress, cfg.ReadTimeout, logger)

	case ConnectionTypeTCP:
		if cfg.TCPHost == "" {
			return nil, fmt.Errorf("tcp transport requires a host")
		}
		port := cfg.TCPPort
		if port == 0 {
			port = 1234
		}
		dial := TCPDialer(cfg.TCPHost, port, cfg.ReadTimeout)
		return NewPrologix(dial, cfg.GPIBAddress, cfg.ReadTimeout, logger)

	default:
		return nil, fmt.Errorf("unsupported connection type: %s", cfg.Type)
	}
}
