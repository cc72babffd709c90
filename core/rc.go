// RC receiver support
// Drives the XLR8 RC XB: a bank of 32 pulse-width capture channels that share
// one control register and one pair of pulse-width read-back registers.
package core

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

const (
	MaxRCChannels = 32  // Slots in the peripheral (matches RCMask)
	InvalidRC     = 255 // Slot index of a handle that failed allocation
	RCPin         = 3   // Receive pin on XLR8 boards
)

var (
	ErrSlotsExhausted = errors.New("rc: all receiver slots allocated")
	ErrInvalidChannel = errors.New("rc: channel has no receiver slot")
)

// rcSlot is the driver-side state of one hardware channel
type rcSlot struct {
	pulse   uint16 // Last pulse width read through this slot
	enabled bool   // Last enable/disable issued through this slot
}

// RCRegistry owns the slot table and the register file shared by all
// channels. Slots are handed out in ascending order and never released.
//
// The control register and the pulse-width registers are shared: a read
// returns the width of whichever channel was armed last. Callers that
// interleave channels from more than one execution context will see one
// channel's width cached under another. That is how the peripheral works;
// the registry does not lock.
type RCRegistry struct {
	regs  RCRegisterFile
	gpio  GPIODriver
	pin   GPIOPin
	slots [MaxRCChannels]rcSlot
	count uint8 // Next slot to hand out
}

// NewRCRegistry creates a registry for one RC peripheral.
// pin is configured as an input on every successful allocation.
func NewRCRegistry(regs RCRegisterFile, gpio GPIODriver, pin GPIOPin) *RCRegistry {
	return &RCRegistry{
		regs: regs,
		gpio: gpio,
		pin:  pin,
	}
}

// Allocate binds a new channel to the next free slot.
// Returns ErrSlotsExhausted once all slots are in use. A pin configuration
// error is returned as is; the slot stays consumed.
func (r *RCRegistry) Allocate() (*RCChannel, error) {
	if r.count >= MaxRCChannels {
		RecordEvent(EvtRCExhausted, InvalidRC, uint16(r.count))
		DebugPrintln("[RC] allocate: no free slot")
		return nil, ErrSlotsExhausted
	}

	index := r.count
	r.count++
	r.slots[index] = rcSlot{}

	if r.gpio != nil {
		if err := r.gpio.ConfigureInput(r.pin); err != nil {
			return nil, err
		}
	}

	RecordEvent(EvtRCAlloc, index, 0)
	return &RCChannel{registry: r, index: index}, nil
}

// NewChannel is Allocate for callers that do not check errors.
// On failure it returns an inert channel whose operations all
// report ErrInvalidChannel.
func (r *RCRegistry) NewChannel() *RCChannel {
	ch, err := r.Allocate()
	if err != nil {
		return &RCChannel{registry: r, index: InvalidRC}
	}
	return ch
}

// Channel returns a handle for an already allocated slot
func (r *RCRegistry) Channel(index uint8) (*RCChannel, bool) {
	if index >= r.count {
		return nil, false
	}
	return &RCChannel{registry: r, index: index}, true
}

// Allocated returns the number of slots handed out so far
func (r *RCRegistry) Allocated() int {
	return int(r.count)
}

// Capacity returns the number of slots in the peripheral
func (r *RCRegistry) Capacity() int {
	return MaxRCChannels
}

// RCChannel is one logical receiver channel
type RCChannel struct {
	registry *RCRegistry
	index    uint8
}

// Index returns the slot index, or InvalidRC for an inert channel
func (c *RCChannel) Index() uint8 {
	return c.index
}

// Valid reports whether the channel owns a hardware slot
func (c *RCChannel) Valid() bool {
	return c.registry != nil && c.index < MaxRCChannels
}

// Enable arms the channel
func (c *RCChannel) Enable() error {
	if !c.Valid() {
		RecordEvent(EvtRCInvalid, c.index, 0)
		return ErrInvalidChannel
	}
	c.registry.slots[c.index].enabled = true
	c.registry.regs.WriteRegister(RCCR, RCEnableCommand(c.index))
	RecordEvent(EvtRCEnable, c.index, 0)
	return nil
}

// Disable disarms the channel. The pulse-width registers are not touched.
func (c *RCChannel) Disable() error {
	if !c.Valid() {
		RecordEvent(EvtRCInvalid, c.index, 0)
		return ErrInvalidChannel
	}
	c.registry.slots[c.index].enabled = false
	c.registry.regs.WriteRegister(RCCR, RCDisableCommand(c.index))
	RecordEvent(EvtRCDisable, c.index, 0)
	return nil
}

// Pulse arms the channel and reads back its latest pulse width in
// microsecond ticks. The peripheral only routes a channel to RCPWH/RCPWL
// after it has been selected through RCCR, so every read re-enables.
// The value is returned as the hardware reports it, zero or stale included.
func (c *RCChannel) Pulse() (uint16, error) {
	if err := c.Enable(); err != nil {
		return 0, err
	}

	regs := c.registry.regs
	high := regs.ReadRegister(RCPWH)
	low := regs.ReadRegister(RCPWL)
	width := uint16(high)<<8 | uint16(low)

	c.registry.slots[c.index].pulse = width
	RecordEvent(EvtRCRead, c.index, width)
	return width, nil
}

// IsEnabled returns the cached enable flag. It does not query hardware.
func (c *RCChannel) IsEnabled() bool {
	if !c.Valid() {
		return false
	}
	return c.registry.slots[c.index].enabled
}

// LastPulse returns the width cached by the last Pulse call
func (c *RCChannel) LastPulse() uint16 {
	if !c.Valid() {
		return 0
	}
	return c.registry.slots[c.index].pulse
}

// Update implements drivers.Sensor. Any measurement request latches a
// fresh pulse width, readable afterwards with LastPulse.
func (c *RCChannel) Update(which drivers.Measurement) error {
	_, err := c.Pulse()
	return err
}

var _ drivers.Sensor = (*RCChannel)(nil)

// PulseMicros converts a pulse width in ticks to a duration
func PulseMicros(width uint16) time.Duration {
	return time.Duration(width) * time.Microsecond
}
