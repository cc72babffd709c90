// Package config loads rc-host settings from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"xlr8rc/core"
	"xlr8rc/host/serial"
)

// Backends
const (
	BackendSerial = "serial" // Firmware on an XLR8 board over UART
	BackendSoft   = "soft"   // Local registry on Linux GPIO lines
)

// ReadTimeoutBlocking in read_timeout_ms selects blocking serial reads.
// 0 means unset and takes the default.
const ReadTimeoutBlocking = -1

// HostConfig holds everything rc-host needs to reach a receiver
type HostConfig struct {
	Backend      string `json:"backend"`
	Device       string `json:"device"`
	Baud         int    `json:"baud"`
	ReadTimeout  int    `json:"read_timeout_ms"`
	PollInterval int    `json:"poll_interval_ms"`
	Debug        bool   `json:"debug"`

	// Soft backend: GPIO chip and the line sampled by each slot
	Chip  string `json:"chip"`
	Lines []int  `json:"lines"`
}

// LoadConfig parses a JSON configuration and applies defaults
func LoadConfig(jsonData []byte) (*HostConfig, error) {
	var config HostConfig
	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadConfigFile reads and parses a configuration file
func LoadConfigFile(path string) (*HostConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := LoadConfig(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used without a config file
func DefaultConfig() *HostConfig {
	config := &HostConfig{}
	applyDefaults(config)
	return config
}

// applyDefaults fills in missing configuration values
func applyDefaults(config *HostConfig) {
	if config.Backend == "" {
		config.Backend = BackendSerial
	}
	if config.Device == "" {
		config.Device = "/dev/ttyUSB0"
	}
	if config.Baud == 0 {
		config.Baud = serial.DefaultBaud
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 100
	}
	if config.PollInterval == 0 {
		config.PollInterval = 50 // 20 Hz
	}
	if config.Chip == "" {
		config.Chip = "gpiochip0"
	}
}

// Validate checks values that have no sensible default
func (c *HostConfig) Validate() error {
	switch c.Backend {
	case BackendSerial, BackendSoft:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.ReadTimeout < ReadTimeoutBlocking {
		return fmt.Errorf("invalid read timeout %d ms", c.ReadTimeout)
	}

	if len(c.Lines) > core.MaxRCChannels {
		return fmt.Errorf("%d lines configured, receiver has %d slots", len(c.Lines), core.MaxRCChannels)
	}
	seen := make(map[int]bool)
	for _, line := range c.Lines {
		if line < 0 {
			return fmt.Errorf("invalid gpio line %d", line)
		}
		if seen[line] {
			return fmt.Errorf("gpio line %d used twice", line)
		}
		seen[line] = true
	}
	if c.Backend == BackendSoft && len(c.Lines) == 0 {
		return fmt.Errorf("soft backend needs at least one gpio line")
	}
	return nil
}

// SerialConfig returns the serial port settings
func (c *HostConfig) SerialConfig() *serial.Config {
	timeout := c.ReadTimeout
	if timeout == ReadTimeoutBlocking {
		timeout = 0
	}
	return &serial.Config{
		Device:      c.Device,
		Baud:        c.Baud,
		ReadTimeout: timeout,
	}
}
