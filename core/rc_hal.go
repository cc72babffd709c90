package core

// RCRegister is the offset of an 8-bit register inside the RC peripheral block
type RCRegister uint8

// RC peripheral register map. Absolute addresses on XLR8 boards are
// RCRegisterBase + offset.
const (
	RCCR  RCRegister = 0 // Control (write only)
	RCPWH RCRegister = 1 // Pulse width bits [15:8] of the selected channel
	RCPWL RCRegister = 2 // Pulse width bits [7:0] of the selected channel
)

// RCRegisterBase is the data-space address of RCCR on XLR8 boards
const RCRegisterBase = 0xE4

// Control register bit layout
const (
	RCEN   = 7    // Enable opcode bit
	RCDIS  = 6    // Disable opcode bit
	RCMask = 0x1F // Target slot index bits [4:0]
)

// RCRegisterFile is the memory-mapped register block of the RC receiver.
// Accesses are single byte transactions; implementations must not
// reorder or merge them.
type RCRegisterFile interface {
	// ReadRegister reads one 8-bit register
	ReadRegister(reg RCRegister) uint8

	// WriteRegister writes one 8-bit register
	WriteRegister(reg RCRegister, value uint8)
}

// RCEnableCommand returns the RCCR value that arms channel index
func RCEnableCommand(index uint8) uint8 {
	return 1<<RCEN | index&RCMask
}

// RCDisableCommand returns the RCCR value that disarms channel index
func RCDisableCommand(index uint8) uint8 {
	return 1<<RCDIS | index&RCMask
}
