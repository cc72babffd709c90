package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the pin configuration interface the RC registry uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureInput configures a pin as a plain digital input
	// (no pull resistor). Returns error if the pin is invalid.
	ConfigureInput(pin GPIOPin) error
}
