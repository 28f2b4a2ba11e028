// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"calibrator-service/internal/fluke5440b"
	"calibrator-service/internal/transport"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig      `mapstructure:"server"`
	Logging LoggingConfig     `mapstructure:"logging"`
	GPIB    transport.Config  `mapstructure:"gpib"`
	Driver  fluke5440b.Config `mapstructure:"driver"`
	App     AppConfig         `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/calibrator-service")

	// Environment variable support
	viper.SetEnvPrefix("CALIBRATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// The config file is optional; env variables and defaults are enough
	// to run against a local Prologix adapter.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8084")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.allowed_origins", []string{})

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("logging.compress", true)

	// GPIB transport defaults: a Prologix GPIB-USB adapter on the first
	// port, instrument at address 7.
	viper.SetDefault("gpib.type", "SERIAL")
	viper.SetDefault("gpib.gpib_address", 7)
	viper.SetDefault("gpib.read_timeout", "3s")
	viper.SetDefault("gpib.serial_port", "/dev/ttyUSB0")
	viper.SetDefault("gpib.baud_rate", 115200)
	viper.SetDefault("gpib.tcp_host", "")
	viper.SetDefault("gpib.tcp_port", 1234)

	// Protocol timing defaults
	viper.SetDefault("driver.verify_delay", "200ms")
	viper.SetDefault("driver.poll_interval", "1s")
	viper.SetDefault("driver.state_change_delay", "500ms")
	viper.SetDefault("driver.selftest_digital_timeout", "30s")
	viper.SetDefault("driver.selftest_analog_timeout", "10m")
	viper.SetDefault("driver.selftest_hv_timeout", "5m")
	viper.SetDefault("driver.acal_timeout", "15m")
	viper.SetDefault("driver.nvram_timeout", "3m")

	// App defaults
	viper.SetDefault("app.name", "calibrator-service")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Address returns the host:port the HTTP server binds to.
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

// validate checks configuration values
func validate(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch transport.ConnectionType(strings.ToUpper(string(config.GPIB.Type))) {
	case transport.ConnectionTypeSerial:
		if config.GPIB.SerialPort == "" {
			return fmt.Errorf("gpib.serial_port is required for a serial connection")
		}
	case transport.ConnectionTypeTCP:
		if config.GPIB.TCPHost == "" {
			return fmt.Errorf("gpib.tcp_host is required for a tcp connection")
		}
	default:
		return fmt.Errorf("unsupported gpib connection type: %s", config.GPIB.Type)
	}

	if config.GPIB.GPIBAddress < 0 || config.GPIB.GPIBAddress > 30 {
		return fmt.Errorf("gpib address %d out of range (0-30)", config.GPIB.GPIBAddress)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[config.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", config.Logging.Level)
	}

	return nil
}
