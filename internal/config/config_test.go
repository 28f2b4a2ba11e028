// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calibrator-service/internal/transport"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8084", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, transport.ConnectionTypeSerial, cfg.GPIB.Type)
	assert.Equal(t, 7, cfg.GPIB.GPIBAddress)
	assert.Equal(t, "/dev/ttyUSB0", cfg.GPIB.SerialPort)
	assert.Equal(t, 115200, cfg.GPIB.BaudRate)
	assert.Equal(t, 200*time.Millisecond, cfg.Driver.VerifyDelay)
	assert.Equal(t, time.Second, cfg.Driver.PollInterval)
	assert.Equal(t, 15*time.Minute, cfg.Driver.ACalTimeout)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "0.0.0.0:8084", cfg.Address())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CALIBRATOR_GPIB_TYPE", "TCP")
	t.Setenv("CALIBRATOR_GPIB_TCP_HOST", "192.168.1.50")
	t.Setenv("CALIBRATOR_GPIB_GPIB_ADDRESS", "12")
	t.Setenv("CALIBRATOR_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, transport.ConnectionTypeTCP, cfg.GPIB.Type)
	assert.Equal(t, "192.168.1.50", cfg.GPIB.TCPHost)
	assert.Equal(t, 12, cfg.GPIB.GPIBAddress)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown connection type", "CALIBRATOR_GPIB_TYPE", "HPIB"},
		{"gpib address out of range", "CALIBRATOR_GPIB_GPIB_ADDRESS", "31"},
		{"bad log level", "CALIBRATOR_LOGGING_LEVEL", "verbose"},
		{"tcp without host", "CALIBRATOR_GPIB_TYPE", "TCP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
