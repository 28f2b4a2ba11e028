// internal/discovery/scanner.go
package discovery

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// Prologix GPIB-USB controllers enumerate as FTDI serial converters.
const (
	ftdiVendorID = "0403"
)

// SerialPort describes one serial port found on the host.
type SerialPort struct {
	Name         string `json:"name"`
	USB          bool   `json:"usb"`
	VendorID     string `json:"vendor_id,omitempty"`
	ProductID    string `json:"product_id,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
	LikelyGPIB   bool   `json:"likely_gpib"`
}

// Scanner enumerates the host's serial ports so an operator can find which
// one the GPIB adapter is plugged into.
type Scanner struct {
	logger *zap.Logger
	list   func() ([]*enumerator.PortDetails, error)
}

// NewScanner creates a new serial port scanner
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{
		logger: logger.With(zap.String("component", "discovery")),
		list:   enumerator.GetDetailedPortsList,
	}
}

// SerialPorts lists all serial ports on the host. Ports backed by an FTDI
// converter are flagged as likely GPIB adapters.
func (s *Scanner) SerialPorts() ([]SerialPort, error) {
	details, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]SerialPort, 0, len(details))
	for _, d := range details {
		port := SerialPort{
			Name:         d.Name,
			USB:          d.IsUSB,
			VendorID:     d.VID,
			ProductID:    d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
			LikelyGPIB:   d.IsUSB && strings.EqualFold(d.VID, ftdiVendorID),
		}
		ports = append(ports, port)
	}

	s.logger.Debug("Serial port scan completed", zap.Int("count", len(ports)))
	return ports, nil
}
