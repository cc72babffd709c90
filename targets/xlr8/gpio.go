//go:build avr

package main

import (
	"machine"

	"xlr8rc/core"
)

// AVRGPIODriver configures pins through the TinyGo machine package
type AVRGPIODriver struct{}

// ConfigureInput implements core.GPIODriver
func (AVRGPIODriver) ConfigureInput(pin core.GPIOPin) error {
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinInput})
	return nil
}
